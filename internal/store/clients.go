package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/caldate"
	"github.com/starford/evolve/internal/models"
)

// Stored end dates are ISO; the source API hands them out as 15-Mar-2024.
const (
	storedDateLayout = "2006-01-02"
	outputDateLayout = "02-Jan-2006"
)

const clientColumns = `id, client_id, name, phone_number, end_date, status, gender, image_url`

// ClientQuery narrows FindClients. Zero fields are ignored; Name matches
// case-insensitively.
type ClientQuery struct {
	ID          int64
	Name        string
	PhoneNumber string
}

// ListClients returns every client ordered by status.
func (db *DB) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY status, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	return scanClients(rows)
}

// GetClient returns the client with the given client_id or apperr.ErrNotFound.
func (db *DB) GetClient(ctx context.Context, clientID int64) (*models.Client, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get client: %w", err)
	}
	return &c, nil
}

// FindClients returns clients matching every set field of q.
func (db *DB) FindClients(ctx context.Context, q ClientQuery) ([]models.Client, error) {
	var (
		where []string
		args  []any
	)
	if q.ID != 0 {
		where = append(where, "id = ?")
		args = append(args, q.ID)
	}
	if q.Name != "" {
		where = append(where, "LOWER(name) = LOWER(?)")
		args = append(args, q.Name)
	}
	if q.PhoneNumber != "" {
		where = append(where, "phone_number = ?")
		args = append(args, q.PhoneNumber)
	}

	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1=1`
	for _, w := range where {
		query += " AND " + w
	}
	query += " ORDER BY id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find clients: %w", err)
	}
	return scanClients(rows)
}

// UpsertClient inserts or replaces a client keyed by client_id. The end date
// may be in any form caldate understands; unparseable dates are stored as NULL.
// An empty image ref leaves an existing one in place.
func (db *DB) UpsertClient(ctx context.Context, c models.Client) error {
	var endDate any
	if c.EndDate != nil {
		if d, ok := caldate.Parse(*c.EndDate); ok {
			endDate = d.Time().Format(storedDateLayout)
		}
	}
	status := strings.ToLower(strings.TrimSpace(c.Status))
	if status == "" {
		status = "inactive"
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO clients (client_id, name, phone_number, end_date, status, gender, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			name         = excluded.name,
			phone_number = excluded.phone_number,
			end_date     = excluded.end_date,
			status       = excluded.status,
			gender       = excluded.gender,
			image_url    = CASE WHEN excluded.image_url = '' THEN clients.image_url ELSE excluded.image_url END
	`, c.ClientID, c.Name, c.PhoneNumber, endDate, status, c.Gender, c.ImageRef)
	if err != nil {
		return fmt.Errorf("store: upsert client %d: %w", c.ClientID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (models.Client, error) {
	var (
		c       models.Client
		endDate sql.NullString
	)
	if err := s.Scan(&c.ID, &c.ClientID, &c.Name, &c.PhoneNumber, &endDate, &c.Status, &c.Gender, &c.ImageRef); err != nil {
		return models.Client{}, err
	}
	if endDate.Valid {
		out := endDate.String
		if t, err := time.Parse(storedDateLayout, endDate.String); err == nil {
			out = t.Format(outputDateLayout)
		}
		c.EndDate = &out
	}
	return c, nil
}

func scanClients(rows *sql.Rows) ([]models.Client, error) {
	defer rows.Close()
	out := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
