// Package dashboard coordinates the record source, per-session table views
// and avatar decryption.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/imagecrypt"
	"github.com/starford/evolve/internal/models"
	"github.com/starford/evolve/internal/roster"
	"github.com/starford/evolve/internal/sse"
)

// RecordSource supplies the client list.
type RecordSource interface {
	FetchClients(ctx context.Context) ([]models.Client, error)
}

// Publisher receives dashboard events. *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
	PublishAvatar(u sse.AvatarUpdate)
}

// AvatarState is the decryption state of one row's avatar.
type AvatarState string

const (
	AvatarPending AvatarState = "pending"
	AvatarReady   AvatarState = "ready"
	AvatarFailed  AvatarState = "failed"
	AvatarMissing AvatarState = "missing"
)

// Avatar is the decryption outcome for one item.
type Avatar struct {
	State  AvatarState       `json:"state"`
	Source imagecrypt.Source `json:"source"`
}

// Progress counts finished avatar decryptions in the current batch.
type Progress struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Options configures a Service.
type Options struct {
	HexKey       string
	ImageBaseURL string
}

// Service owns the fetched items, the view of every session and the avatar
// table.
type Service struct {
	src      RecordSource
	pipeline *imagecrypt.Pipeline
	events   Publisher
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	items      []roster.Item
	generation int
	views      map[string]*roster.View
	avatars    map[int]Avatar
	progress   Progress
	wait       func()
}

// NewService creates a dashboard service. events may be nil.
func NewService(src RecordSource, pipeline *imagecrypt.Pipeline, events Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		src:      src,
		pipeline: pipeline,
		events:   events,
		opts:     opts,
		logger:   logger,
		views:    make(map[string]*roster.View),
		avatars:  make(map[int]Avatar),
		wait:     func() {},
	}
}

// ImageURL returns the CDN URL of the encrypted blob for ref.
func (s *Service) ImageURL(ref string) string {
	return strings.TrimRight(s.opts.ImageBaseURL, "/") + "/" + ref + ".enc"
}

// Reload fetches the record list, replaces the items of every view and
// starts decrypting avatars. On fetch failure the table is left empty and
// the error is returned.
func (s *Service) Reload(ctx context.Context) (int, error) {
	clients, fetchErr := s.src.FetchClients(ctx)
	if fetchErr != nil {
		s.logger.Error("dashboard: fetch clients failed", slog.String("error", fetchErr.Error()))
		clients = nil
	}
	items := roster.NewItems(clients, s.ImageURL)

	s.mu.Lock()
	s.generation++
	gen := s.generation
	for _, a := range s.avatars {
		if a.State == AvatarReady {
			s.pipeline.Objects().Revoke(a.Source.URL)
		}
	}
	s.items = items
	s.avatars = make(map[int]Avatar, len(items))
	for _, v := range s.views {
		v.Replace(items)
	}

	var jobs []imagecrypt.Job
	for _, it := range items {
		if it.ImageURL == "" {
			s.avatars[it.Index] = Avatar{State: AvatarMissing}
			continue
		}
		s.avatars[it.Index] = Avatar{State: AvatarPending}
		jobs = append(jobs, imagecrypt.Job{Index: it.Index, URL: it.ImageURL})
	}
	s.progress = Progress{Total: len(jobs)}
	s.mu.Unlock()

	s.logger.Info("dashboard: clients loaded",
		slog.Int("count", len(items)),
		slog.Int("avatars", len(jobs)))
	if s.events != nil {
		s.events.Publish(sse.Event{Type: sse.TypeClientsReloaded, Data: map[string]int{
			"total": len(items), "avatars": len(jobs),
		}})
	}

	// Decryption outlives the request that triggered the reload.
	wait := s.pipeline.DecryptAll(context.WithoutCancel(ctx), jobs, s.opts.HexKey, func(r imagecrypt.Result) {
		s.finishAvatar(gen, r)
	})
	s.mu.Lock()
	s.wait = wait
	s.mu.Unlock()

	if fetchErr != nil {
		return 0, fetchErr
	}
	return len(items), nil
}

func (s *Service) finishAvatar(gen int, r imagecrypt.Result) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if r.Err == nil {
			s.pipeline.Objects().Revoke(r.Source.URL)
		}
		return
	}
	a := Avatar{State: AvatarReady, Source: r.Source}
	if r.Err != nil {
		a = Avatar{State: AvatarFailed}
		s.progress.Failed++
	}
	s.avatars[r.Index] = a
	s.progress.Done++
	p := s.progress
	s.mu.Unlock()

	if s.events != nil {
		s.events.PublishAvatar(sse.AvatarUpdate{
			Index: r.Index,
			OK:    r.Err == nil,
			URL:   r.Source.URL,
			MIME:  r.Source.MIME,
			Done:  p.Done,
			Total: p.Total,
		})
	}
}

// WaitAvatars blocks until the most recently started decryption batch is done.
func (s *Service) WaitAvatars() {
	s.mu.Lock()
	wait := s.wait
	s.mu.Unlock()
	wait()
}

// Items returns a copy of the current items in fetched order.
func (s *Service) Items() []roster.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roster.Item(nil), s.items...)
}

// Progress returns the avatar counters of the current batch.
func (s *Service) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// view returns the session's view, creating it over the current items.
func (s *Service) view(session string) *roster.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[session]
	if !ok {
		v = roster.NewView(s.items)
		s.views[session] = v
	}
	return v
}

// Snapshot returns the session's table as currently rendered.
func (s *Service) Snapshot(session string) roster.Snapshot {
	return s.view(session).Snapshot()
}

// Filter applies spec to the session's table.
func (s *Service) Filter(session string, spec roster.FilterSpec) roster.Snapshot {
	return s.view(session).Filter(spec)
}

// Sort sorts the session's table by key and returns the direction used.
func (s *Service) Sort(session string, key roster.SortKey) (roster.Snapshot, roster.Direction) {
	return s.view(session).Sort(key)
}

// Direction reports the direction the session's next sort on key will use.
func (s *Service) Direction(session string, key roster.SortKey) roster.Direction {
	return s.view(session).Direction(key)
}

// DropSession forgets the session's view.
func (s *Service) DropSession(session string) {
	s.mu.Lock()
	delete(s.views, session)
	s.mu.Unlock()
}

// Avatar returns the decryption state for the item at index.
func (s *Service) Avatar(index int) (Avatar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.avatars[index]
	if !ok {
		return Avatar{}, apperr.ErrNotFound
	}
	return a, nil
}

// AvatarImage returns the decrypted image for index, or the placeholder
// while it is pending, missing or failed.
func (s *Service) AvatarImage(index int) (imagecrypt.Object, AvatarState, error) {
	a, err := s.Avatar(index)
	if err != nil {
		return imagecrypt.Object{}, "", err
	}
	if a.State == AvatarReady {
		if obj, ok := s.pipeline.Objects().Get(a.Source.URL); ok {
			return obj, a.State, nil
		}
	}
	return imagecrypt.Placeholder(), a.State, nil
}

// DecryptRef fetches and decrypts the blob for an image reference without
// touching the avatar table. The registered object is revoked before
// returning.
func (s *Service) DecryptRef(ctx context.Context, ref string) (imagecrypt.Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return imagecrypt.Source{}, errors.New("dashboard: empty image ref")
	}
	src, err := s.pipeline.Decrypt(ctx, s.ImageURL(ref), s.opts.HexKey)
	if err != nil {
		return imagecrypt.Source{}, err
	}
	s.pipeline.Objects().Revoke(src.URL)
	return src, nil
}

// Object returns a decrypted image registered by the current avatar batch.
func (s *Service) Object(ref string) (imagecrypt.Object, bool) {
	return s.pipeline.Objects().Get(ref)
}
