package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/value"
)

// Status is the outcome of a journaled session.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Record describes one journaled session.
type Record struct {
	SessionID string
	Seq       int64
	Status    Status
	Events    int
	Digest    string
}

// WriteSession journals a closed session and its events in one
// transaction. The session is numbered after every session already
// journaled. Writing the same session id again returns the stored record
// and changes nothing.
func (j *Journal) WriteSession(ctx context.Context, sessionID string, status Status, events []event.Event) (Record, error) {
	if sessionID == "" {
		return Record{}, errors.New("write session: empty session id")
	}
	if status != StatusCommitted && status != StatusAborted {
		return Record{}, fmt.Errorf("write session %s: invalid status %q", sessionID, status)
	}

	payloads := make([][]byte, len(events))
	digests := make(value.List, len(events))
	for i, ev := range events {
		data, err := event.Encode(ev)
		if err != nil {
			return Record{}, fmt.Errorf("write session %s: encode event %d: %w", sessionID, i, err)
		}
		payloads[i] = data
		digests[i] = value.String(value.DigestBytes(value.DomainEvent, data))
	}
	sessionDigest, err := value.Digest(value.DomainSession, digests)
	if err != nil {
		return Record{}, fmt.Errorf("write session %s: %w", sessionID, err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("write session %s: begin tx: %w", sessionID, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, seq, status, event_count, digest)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions), ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sessionID, string(status), len(events), sessionDigest)
	if err != nil {
		return Record{}, fmt.Errorf("write session %s: %w", sessionID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("write session %s: rows affected: %w", sessionID, err)
	}

	if inserted > 0 {
		for i, ev := range events {
			h := ev.Meta()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO events (session_id, position, version, domain, extension, kind, digest, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(session_id, position) DO NOTHING
			`, sessionID, i, h.Version, h.DomainModel, h.ExtensionName, string(ev.Kind()), string(digests[i].(value.String)), string(payloads[i]))
			if err != nil {
				return Record{}, fmt.Errorf("write session %s: event %d: %w", sessionID, i, err)
			}
		}
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT id, seq, status, event_count, digest FROM sessions WHERE id = ?
	`, sessionID))
	if err != nil {
		return Record{}, fmt.Errorf("write session %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("write session %s: commit: %w", sessionID, err)
	}

	slog.Debug("session journaled",
		"session", sessionID,
		"seq", rec.Seq,
		"status", string(rec.Status),
		"events", rec.Events,
		"inserted", inserted > 0,
	)
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec    Record
		status string
	)
	if err := row.Scan(&rec.SessionID, &rec.Seq, &status, &rec.Events, &rec.Digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("scan session: %w", err)
	}
	rec.Status = Status(status)
	return rec, nil
}
