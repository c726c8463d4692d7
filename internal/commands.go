package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/evolve/internal/encoder"
	"github.com/starford/evolve/internal/mcpserver"
	"github.com/starford/evolve/internal/source"
)

// Import upserts the records of a JSON file into the store and returns how
// many were written.
func Import(ctx context.Context, path string, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	clients, err := source.ReadFile(f)
	if err != nil {
		return 0, err
	}

	res, err := openResources(app.config)
	if err != nil {
		return 0, err
	}
	defer res.db.Close()

	for i, c := range clients {
		if err := res.db.UpsertClient(ctx, c); err != nil {
			return i, fmt.Errorf("import client %d: %w", c.ClientID, err)
		}
	}
	// Mappings recorded before the records existed.
	applied, err := res.db.ApplyImageRefs(ctx)
	if err != nil {
		return len(clients), err
	}

	app.logger.Info("import finished",
		slog.String("file", path),
		slog.Int("clients", len(clients)),
		slog.Int64("image_refs", applied))
	return len(clients), nil
}

// Encrypt encrypts the plaintext avatars in the input directory once, or
// keeps watching it when watch is set.
func Encrypt(ctx context.Context, watch bool, opts ...Option) (*encoder.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg, logger := app.config, app.logger

	res, err := openResources(cfg)
	if err != nil {
		return nil, err
	}
	defer res.db.Close()

	enc, err := newEncoder(cfg, res, logger)
	if err != nil {
		return nil, err
	}

	if !watch {
		rep, err := enc.Run(ctx)
		if err != nil {
			return nil, err
		}
		logger.Info("encode finished",
			slog.Int("encrypted", len(rep.Encrypted)),
			slog.Int("skipped", rep.Skipped),
			slog.Int64("updated", rep.Updated))
		return rep, nil
	}

	logger.Info("watching for avatars", slog.String("dir", cfg.Images.InputDir))
	err = enc.Watch(ctx, cfg.Images.InputDir, cfg.Encoder.Debounce, func(rep *encoder.Report, err error) {
		if err == nil {
			logger.Info("encode finished", slog.Int("encrypted", len(rep.Encrypted)))
		}
	})
	return nil, err
}

// ServeMCP serves the roster tools over stdio until stdin closes. Logs go to
// stderr since stdout carries the protocol.
func ServeMCP(opts ...Option) error {
	app, err := newApplication(append(opts, WithLogOutput(os.Stderr)))
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	res, err := openResources(cfg)
	if err != nil {
		return err
	}
	defer res.db.Close()

	enc, err := newEncoder(cfg, res, logger)
	if err != nil {
		return err
	}

	srv := mcpserver.New(mcpserver.Deps{
		Clients: res.db,
		Avatars: newDashboard(cfg, nil, logger),
		Uploads: res.inputs,
		Encoder: enc,
	})

	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
