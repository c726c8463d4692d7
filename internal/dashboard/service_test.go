package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/imagecrypt"
	"github.com/starford/evolve/internal/models"
	"github.com/starford/evolve/internal/roster"
	"github.com/starford/evolve/internal/sse"
)

const testHexKey = "29cd3a5128416c678ac33b459f5c466c23913446d8666463b5d867c94c6bf944"

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 'x'}

type fakeSource struct {
	clients []models.Client
	err     error
}

func (f *fakeSource) FetchClients(context.Context) ([]models.Client, error) {
	return f.clients, f.err
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	b, ok := m[url]
	if !ok {
		return nil, apperr.ErrFetch
	}
	return b, nil
}

type recorder struct {
	mu      sync.Mutex
	events  []sse.Event
	avatars []sse.AvatarUpdate
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) PublishAvatar(u sse.AvatarUpdate) {
	r.mu.Lock()
	r.avatars = append(r.avatars, u)
	r.mu.Unlock()
}

func strPtr(s string) *string { return &s }

func fixture(t *testing.T) (*Service, *fakeSource, *recorder) {
	t.Helper()
	key, err := imagecrypt.DecodeKey(testHexKey)
	require.NoError(t, err)
	blob, err := imagecrypt.Seal(pngBytes, key)
	require.NoError(t, err)

	src := &fakeSource{clients: []models.Client{
		{ClientID: 1, Name: "Charlie", PhoneNumber: "111", Status: "active", Gender: "m", EndDate: strPtr("15-Mar-2024"), ImageRef: "good"},
		{ClientID: 2, Name: "alice", PhoneNumber: "222", Status: "inactive", Gender: "f", EndDate: strPtr("01-Jan-2024"), ImageRef: "broken"},
		{ClientID: 3, Name: "Bob", PhoneNumber: "333", Status: "active", Gender: "m"},
	}}
	fetcher := mapFetcher{
		"http://cdn.test/images/good.enc":   blob,
		"http://cdn.test/images/broken.enc": []byte("too short"),
	}
	rec := &recorder{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	pipeline := imagecrypt.NewPipeline(fetcher, imagecrypt.NewObjectStore(), logger)
	svc := NewService(src, pipeline, rec, Options{HexKey: testHexKey, ImageBaseURL: "http://cdn.test/images/"}, logger)
	return svc, src, rec
}

func TestImageURL(t *testing.T) {
	svc, _, _ := fixture(t)
	assert.Equal(t, "http://cdn.test/images/abc.enc", svc.ImageURL("abc"))
}

func TestReload_DecryptsAvatars(t *testing.T) {
	svc, _, rec := fixture(t)

	n, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	svc.WaitAvatars()

	good, err := svc.Avatar(0)
	require.NoError(t, err)
	assert.Equal(t, AvatarReady, good.State)
	assert.Equal(t, imagecrypt.MIMEPNG, good.Source.MIME)

	bad, _ := svc.Avatar(1)
	assert.Equal(t, AvatarFailed, bad.State)
	missing, _ := svc.Avatar(2)
	assert.Equal(t, AvatarMissing, missing.State)

	assert.Equal(t, Progress{Done: 2, Failed: 1, Total: 2}, svc.Progress())

	obj, state, err := svc.AvatarImage(0)
	require.NoError(t, err)
	assert.Equal(t, AvatarReady, state)
	assert.Equal(t, pngBytes, obj.Data)

	obj, state, err = svc.AvatarImage(1)
	require.NoError(t, err)
	assert.Equal(t, AvatarFailed, state)
	assert.Equal(t, imagecrypt.Placeholder(), obj)

	_, _, err = svc.AvatarImage(99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	assert.Equal(t, sse.TypeClientsReloaded, rec.events[0].Type)
	assert.Len(t, rec.avatars, 2)
}

func TestReload_FetchFailureLeavesTableEmpty(t *testing.T) {
	svc, src, _ := fixture(t)
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)
	svc.WaitAvatars()
	require.Len(t, svc.Items(), 3)

	src.err = apperr.ErrFetch
	_, err = svc.Reload(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrFetch))
	svc.WaitAvatars()

	assert.Empty(t, svc.Items())
	assert.Equal(t, 0, svc.Snapshot("s1").Total)
}

func TestReload_RevokesOldObjects(t *testing.T) {
	svc, _, _ := fixture(t)
	_, _ = svc.Reload(context.Background())
	svc.WaitAvatars()
	first, _ := svc.Avatar(0)
	require.Equal(t, AvatarReady, first.State)
	require.NotEmpty(t, first.Source.URL)

	_, _ = svc.Reload(context.Background())
	svc.WaitAvatars()

	_, ok := svc.pipeline.Objects().Get(first.Source.URL)
	assert.False(t, ok, "object from previous load should be revoked")
	assert.Equal(t, 1, svc.pipeline.Objects().Len())
}

func TestSessionsHaveIndependentViews(t *testing.T) {
	svc, _, _ := fixture(t)
	_, _ = svc.Reload(context.Background())
	svc.WaitAvatars()

	snap, dir := svc.Sort("a", roster.SortByName)
	assert.Equal(t, roster.Ascending, dir)
	names := func(s roster.Snapshot) []string {
		var out []string
		for _, r := range s.VisibleRows() {
			out = append(out, r.Item.Name)
		}
		return out
	}
	assert.Equal(t, []string{"alice", "Bob", "Charlie"}, names(snap))
	assert.Equal(t, roster.Descending, svc.Direction("a", roster.SortByName))

	// Session b still sees fetched order and an ascending toggle.
	assert.Equal(t, []string{"Charlie", "alice", "Bob"}, names(svc.Snapshot("b")))
	assert.Equal(t, roster.Ascending, svc.Direction("b", roster.SortByName))

	filtered := svc.Filter("b", roster.FilterSpec{Status: "active"})
	assert.Equal(t, 2, filtered.Visible)
	assert.Equal(t, 3, svc.Snapshot("a").Visible)

	svc.DropSession("a")
	assert.Equal(t, roster.Ascending, svc.Direction("a", roster.SortByName))
}

func TestReload_KeepsSessionFilter(t *testing.T) {
	svc, src, _ := fixture(t)
	_, _ = svc.Reload(context.Background())
	svc.WaitAvatars()

	svc.Filter("s", roster.FilterSpec{Gender: "m"})
	src.clients = append(src.clients, models.Client{ClientID: 4, Name: "Dev", Status: "active", Gender: "M"})
	_, err := svc.Reload(context.Background())
	require.NoError(t, err)
	svc.WaitAvatars()

	snap := svc.Snapshot("s")
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 3, snap.Visible)
	var serials []int
	for _, r := range snap.VisibleRows() {
		serials = append(serials, r.Serial)
	}
	assert.Equal(t, []int{1, 2, 3}, serials)
}

func TestDecryptRef(t *testing.T) {
	svc, _, _ := fixture(t)

	src, err := svc.DecryptRef(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, imagecrypt.MIMEPNG, src.MIME)
	assert.Equal(t, len(pngBytes), src.Size)
	assert.Equal(t, 0, svc.pipeline.Objects().Len())

	_, err = svc.DecryptRef(context.Background(), "broken")
	assert.ErrorIs(t, err, apperr.ErrMalformedPayload)

	_, err = svc.DecryptRef(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrFetch)

	_, err = svc.DecryptRef(context.Background(), " ")
	assert.Error(t, err)
}
