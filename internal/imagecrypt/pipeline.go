package imagecrypt

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Source is a decrypted image ready to display.
type Source struct {
	URL    string `json:"url"`
	MIME   string `json:"mime"`
	Layout Layout `json:"layout"`
	Size   int    `json:"size"`
}

// Pipeline fetches, decrypts and registers avatars.
type Pipeline struct {
	fetcher Fetcher
	objects *ObjectStore
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline. A nil logger falls back to slog.Default.
func NewPipeline(fetcher Fetcher, objects *ObjectStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, objects: objects, logger: logger}
}

// Objects returns the store that holds decrypted images.
func (p *Pipeline) Objects() *ObjectStore {
	return p.objects
}

// Decrypt fetches the blob at url, decrypts it with hexKey and registers the
// plaintext in the object store. On error nothing is registered.
func (p *Pipeline) Decrypt(ctx context.Context, url, hexKey string) (Source, error) {
	payload, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return Source{}, err
	}
	key, err := DecodeKey(hexKey)
	if err != nil {
		return Source{}, err
	}
	plain, layout, err := Open(payload, key)
	if err != nil {
		return Source{}, err
	}
	if layout != LayoutIVCipherTag {
		p.logger.Debug("avatar decrypted with fallback layout", slog.String("layout", string(layout)))
	}
	mime := DetectMIME(plain)
	return Source{
		URL:    p.objects.Create(plain, mime),
		MIME:   mime,
		Layout: layout,
		Size:   len(plain),
	}, nil
}

// Job is one avatar to decrypt.
type Job struct {
	Index int
	URL   string
}

// Result reports the outcome of one Job. Err is nil on success.
type Result struct {
	Index  int
	Source Source
	Err    error
}

// DecryptAll starts one goroutine per job without waiting between them and
// calls done as each finishes, in completion order. done may be called
// concurrently. Failures are reported per job and never stop the others.
// The returned function blocks until every job has reported.
func (p *Pipeline) DecryptAll(ctx context.Context, jobs []Job, hexKey string, done func(Result)) (wait func()) {
	var g errgroup.Group
	for _, job := range jobs {
		g.Go(func() error {
			res := Result{Index: job.Index}
			res.Source, res.Err = p.Decrypt(ctx, job.URL, hexKey)
			if res.Err != nil {
				p.logger.Warn("avatar decrypt failed",
					slog.Int("index", job.Index),
					slog.String("error", res.Err.Error()))
			}
			if done != nil {
				done(res)
			}
			return nil
		})
	}
	return func() { _ = g.Wait() }
}

// String implements fmt.Stringer for log output.
func (s Source) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", s.URL, s.MIME, s.Size)
}
