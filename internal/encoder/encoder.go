// Package encoder encrypts plaintext PNG avatars into .enc blobs and keeps
// the phone-number-to-blob mapping up to date.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/evolve/internal/checksum"
	"github.com/starford/evolve/internal/imagecrypt"
	"github.com/starford/evolve/internal/models"
	"github.com/starford/evolve/internal/storage"
	"github.com/starford/evolve/internal/store"
)

// Encrypted blobs are named <ref>.enc.
const (
	InputExt  = ".png"
	OutputExt = ".enc"
)

// Encoder turns every unmapped PNG in the input directory into an encrypted
// blob in the output directory.
type Encoder struct {
	in      storage.Provider
	out     storage.Provider
	images  store.ImageMap
	key     []byte
	workers int
	logger  *slog.Logger

	mu sync.Mutex // one run at a time
}

// New creates an Encoder. hexKey must decode to an AES key.
func New(in, out storage.Provider, images store.ImageMap, hexKey string, workers int, logger *slog.Logger) (*Encoder, error) {
	key, err := imagecrypt.DecodeKey(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if workers <= 0 {
		workers = 4
	}
	return &Encoder{in: in, out: out, images: images, key: key, workers: workers, logger: logger}, nil
}

// Report summarizes one run.
type Report struct {
	Encrypted []models.ImageMapping
	Skipped   int
	Updated   int64
}

// Run encrypts PNGs whose stem has no mapping yet, records the new mappings
// and then points matching clients at their blobs. Files that fail are
// logged and skipped; the run only fails on mapping or database errors.
func (e *Encoder) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	files, err := e.in.List(InputExt)
	if err != nil {
		return nil, err
	}
	mapped, err := e.images.ImageMappings(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var (
		resMu sync.Mutex
		g     errgroup.Group
	)
	g.SetLimit(e.workers)

	for _, f := range files {
		if _, ok := mapped[f.Stem]; ok {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			m, err := e.encryptFile(f)
			if err != nil {
				e.logger.Warn("encoder: encrypt failed", slog.String("file", f.Path), slog.String("error", err.Error()))
				return nil
			}
			resMu.Lock()
			report.Encrypted = append(report.Encrypted, m)
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, m := range report.Encrypted {
		if err := e.images.PutImageMapping(ctx, m); err != nil {
			return report, err
		}
		e.logger.Debug("encoder: mapped", slog.String("phone", m.PhoneNumber), slog.String("ref", m.ImageRef))
	}

	report.Updated, err = e.images.ApplyImageRefs(ctx)
	if err != nil {
		return report, err
	}

	e.logger.Info("encoder: run complete",
		slog.Int("encrypted", len(report.Encrypted)),
		slog.Int("skipped", report.Skipped),
		slog.Int64("clients_updated", report.Updated))
	return report, nil
}

func (e *Encoder) encryptFile(f models.FileMeta) (models.ImageMapping, error) {
	plain, err := e.in.Read(f.Path)
	if err != nil {
		return models.ImageMapping{}, err
	}
	blob, err := imagecrypt.Seal(plain, e.key)
	if err != nil {
		return models.ImageMapping{}, err
	}
	ref := NewRef()
	if err := e.out.Write(ref+OutputExt, blob); err != nil {
		return models.ImageMapping{}, err
	}
	return models.ImageMapping{
		PhoneNumber: f.Stem,
		ImageRef:    ref,
		Checksum:    checksum.Sum(blob),
	}, nil
}

// NewRef returns a fresh 32-character hex image reference.
func NewRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
