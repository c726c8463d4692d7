package imagecrypt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/evolve/internal/apperr"
)

const testHexKey = "29cd3a5128416c678ac33b459f5c466c23913446d8666463b5d867c94c6bf944"

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 'd', 'a', 't', 'a'}

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DecodeKey(testHexKey)
	require.NoError(t, err)
	return key
}

// swapToTagFirst rewrites an iv|cipher|tag blob as iv|tag|cipher.
func swapToTagFirst(blob []byte) []byte {
	iv := blob[:IVSize]
	ct := blob[IVSize : len(blob)-TagSize]
	tag := blob[len(blob)-TagSize:]
	out := append([]byte{}, iv...)
	out = append(out, tag...)
	return append(out, ct...)
}

func TestDecodeKey(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		key, err := DecodeKey(testHexKey[:n*2])
		require.NoError(t, err)
		assert.Len(t, key, n)
	}

	for _, bad := range []string{"", "abc", "zz" + testHexKey[2:], testHexKey[:20]} {
		_, err := DecodeKey(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidKey, "key %q", bad)
	}
}

func TestOpen_PrimaryLayout(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(pngBytes, key)
	require.NoError(t, err)
	require.Len(t, blob, IVSize+len(pngBytes)+TagSize)

	plain, layout, err := Open(blob, key)
	require.NoError(t, err)
	assert.Equal(t, LayoutIVCipherTag, layout)
	assert.Equal(t, pngBytes, plain)
}

func TestOpen_FallbackLayout(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(pngBytes, key)
	require.NoError(t, err)

	plain, layout, err := Open(swapToTagFirst(blob), key)
	require.NoError(t, err)
	assert.Equal(t, LayoutIVTagCipher, layout)
	assert.Equal(t, pngBytes, plain)
}

func TestOpen_ShortPayload(t *testing.T) {
	_, _, err := Open(make([]byte, 20), testKey(t))
	assert.ErrorIs(t, err, apperr.ErrMalformedPayload)

	_, _, err = Open(make([]byte, 27), testKey(t))
	assert.ErrorIs(t, err, apperr.ErrMalformedPayload)
}

func TestOpen_WrongKey(t *testing.T) {
	blob, err := Seal(pngBytes, testKey(t))
	require.NoError(t, err)

	other, err := DecodeKey("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	_, _, err = Open(blob, other)
	assert.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestOpen_TamperedPayload(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(pngBytes, key)
	require.NoError(t, err)
	blob[IVSize] ^= 0xFF

	plain, _, err := Open(blob, key)
	assert.ErrorIs(t, err, apperr.ErrDecryption)
	assert.Nil(t, plain)
}

func TestOpen_EmptyPlaintext(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(nil, key)
	require.NoError(t, err)
	require.Len(t, blob, minPayload)

	plain, layout, err := Open(blob, key)
	require.NoError(t, err)
	assert.Empty(t, plain)
	assert.Equal(t, LayoutIVCipherTag, layout)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, MIMEPNG, DetectMIME(pngBytes))
	assert.Equal(t, MIMEJPEG, DetectMIME([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, MIMEUnknown, DetectMIME([]byte("GIF89a")))
	assert.Equal(t, MIMEUnknown, DetectMIME(nil))
	assert.Equal(t, MIMEPNG, Placeholder().MIME)
	assert.Equal(t, MIMEPNG, DetectMIME(Placeholder().Data))
}

func TestObjectStore(t *testing.T) {
	s := NewObjectStore()
	url := s.Create([]byte("x"), MIMEPNG)
	assert.Contains(t, url, ObjectPrefix)

	obj, ok := s.Get(url)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), obj.Data)

	s.Revoke(url)
	_, ok = s.Get(url)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	b, ok := m[url]
	if !ok {
		return nil, apperr.ErrFetch
	}
	return b, nil
}

func TestPipeline_Decrypt(t *testing.T) {
	blob, err := Seal(pngBytes, testKey(t))
	require.NoError(t, err)

	p := NewPipeline(mapFetcher{"good": blob, "short": make([]byte, 20)}, NewObjectStore(), nil)

	src, err := p.Decrypt(context.Background(), "good", testHexKey)
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, src.MIME)
	obj, ok := p.Objects().Get(src.URL)
	require.True(t, ok)
	assert.Equal(t, pngBytes, obj.Data)

	_, err = p.Decrypt(context.Background(), "missing", testHexKey)
	assert.ErrorIs(t, err, apperr.ErrFetch)

	_, err = p.Decrypt(context.Background(), "short", testHexKey)
	assert.ErrorIs(t, err, apperr.ErrMalformedPayload)

	_, err = p.Decrypt(context.Background(), "good", "abcd")
	assert.ErrorIs(t, err, apperr.ErrInvalidKey)

	assert.Equal(t, 1, p.Objects().Len(), "failures must not register objects")
}

func TestPipeline_DecryptAllIsolatesFailures(t *testing.T) {
	blob, err := Seal(pngBytes, testKey(t))
	require.NoError(t, err)
	p := NewPipeline(mapFetcher{"a": blob, "c": swapToTagFirst(blob)}, NewObjectStore(), nil)

	var mu sync.Mutex
	got := map[int]Result{}
	wait := p.DecryptAll(context.Background(), []Job{{0, "a"}, {1, "b"}, {2, "c"}}, testHexKey, func(r Result) {
		mu.Lock()
		got[r.Index] = r
		mu.Unlock()
	})
	wait()

	require.Len(t, got, 3)
	assert.NoError(t, got[0].Err)
	assert.True(t, errors.Is(got[1].Err, apperr.ErrFetch))
	assert.NoError(t, got[2].Err)
	assert.Equal(t, LayoutIVTagCipher, got[2].Source.Layout)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.enc" {
			_, _ = w.Write([]byte("payload"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)

	data, err := f.Fetch(context.Background(), srv.URL+"/ok.enc")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.enc")
	assert.ErrorIs(t, err, apperr.ErrFetch)

	_, err = f.Fetch(context.Background(), "ftp://example.com/x.enc")
	assert.ErrorIs(t, err, apperr.ErrFetch)
}
