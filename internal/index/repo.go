package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/vitrine/internal/apperr"
)

// CardRow represents a row in the cards table.
type CardRow struct {
	ID        string    `json:"id"`
	Folder    string    `json:"folder"`
	Title     string    `json:"title"`
	Hidden    bool      `json:"hidden"`
	Order     *int      `json:"order,omitempty"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Folder  string `json:"folder"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertCard inserts or replaces a card and its FTS entry within a transaction.
// body is the card's plain text.
func (db *DB) UpsertCard(c CardRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var order sql.NullInt64
	if c.Order != nil {
		order = sql.NullInt64{Int64: int64(*c.Order), Valid: true}
	}

	// Upsert cards table (includes body for fallback search).
	_, err = tx.Exec(`
		INSERT INTO cards (id, folder, title, hidden, sort_order, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder     = excluded.folder,
			title      = excluded.title,
			hidden     = excluded.hidden,
			sort_order = excluded.sort_order,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, c.ID, c.Folder, c.Title, c.Hidden, order, c.Checksum, body, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert card: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, c.ID, c.Folder, c.Title, body); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteCard removes a card and its FTS entry.
func (db *DB) DeleteCard(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete card: %w", err)
	}

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a card, or empty string if not found.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM cards WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns id→checksum for every indexed card.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

const cardColumns = `id, folder, title, hidden, sort_order, checksum, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (CardRow, error) {
	var c CardRow
	var order sql.NullInt64
	if err := s.Scan(&c.ID, &c.Folder, &c.Title, &c.Hidden, &order, &c.Checksum, &c.UpdatedAt); err != nil {
		return CardRow{}, err
	}
	if order.Valid {
		v := int(order.Int64)
		c.Order = &v
	}
	return c, nil
}

// GetCard returns one card by id.
func (db *DB) GetCard(id string) (*CardRow, error) {
	c, err := scanCard(db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: card %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get card: %w", err)
	}
	return &c, nil
}

// ListCards returns every indexed card ordered by folder.
func (db *DB) ListCards() ([]CardRow, error) {
	rows, err := db.conn.Query(`SELECT ` + cardColumns + ` FROM cards ORDER BY folder COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("index: list cards: %w", err)
	}
	defer rows.Close()

	var out []CardRow
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
