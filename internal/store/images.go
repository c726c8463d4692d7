package store

import (
	"context"
	"fmt"

	"github.com/starford/evolve/internal/models"
)

// ImageMappings returns every phone-to-image mapping keyed by phone number.
func (db *DB) ImageMappings(ctx context.Context) (map[string]models.ImageMapping, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT phone_number, image_ref, checksum FROM image_map`)
	if err != nil {
		return nil, fmt.Errorf("store: image mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.ImageMapping)
	for rows.Next() {
		var m models.ImageMapping
		if err := rows.Scan(&m.PhoneNumber, &m.ImageRef, &m.Checksum); err != nil {
			return nil, err
		}
		out[m.PhoneNumber] = m
	}
	return out, rows.Err()
}

// PutImageMapping records the encrypted blob for a phone number, replacing
// any earlier one.
func (db *DB) PutImageMapping(ctx context.Context, m models.ImageMapping) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO image_map (phone_number, image_ref, checksum)
		VALUES (?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET
			image_ref = excluded.image_ref,
			checksum  = excluded.checksum
	`, m.PhoneNumber, m.ImageRef, m.Checksum)
	if err != nil {
		return fmt.Errorf("store: put image mapping %s: %w", m.PhoneNumber, err)
	}
	return nil
}

// ApplyImageRefs copies mapped image refs onto clients with the same phone
// number inside one transaction and returns how many rows changed.
func (db *DB) ApplyImageRefs(ctx context.Context) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `
		UPDATE clients
		SET image_url = (SELECT m.image_ref FROM image_map m WHERE m.phone_number = clients.phone_number)
		WHERE phone_number IN (SELECT phone_number FROM image_map)
		  AND image_url IS NOT (SELECT m.image_ref FROM image_map m WHERE m.phone_number = clients.phone_number)
	`)
	if err != nil {
		return 0, fmt.Errorf("store: apply image refs: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return n, nil
}
