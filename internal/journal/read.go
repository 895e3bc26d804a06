package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/value"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session returns the record of one session.
func (j *Journal) Session(ctx context.Context, sessionID string) (Record, error) {
	return scanRecord(j.db.QueryRowContext(ctx, `
		SELECT id, seq, status, event_count, digest FROM sessions WHERE id = ?
	`, sessionID))
}

// Sessions returns every record in commit order.
func (j *Journal) Sessions(ctx context.Context) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, status, event_count, digest
		FROM sessions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

// ReadEvents returns the events of one session in recording order.
func (j *Journal) ReadEvents(ctx context.Context, sessionID string) ([]event.Event, error) {
	entries, err := j.query(ctx, `
		SELECT e.session_id, e.payload, e.digest
		FROM events e
		WHERE e.session_id = ?
		ORDER BY e.position ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return eventsOf(entries), nil
}

// ReadDomainEvents returns the events of a domain from committed sessions,
// in commit order.
func (j *Journal) ReadDomainEvents(ctx context.Context, domain string) ([]event.Event, error) {
	entries, err := j.query(ctx, `
		SELECT e.session_id, e.payload, e.digest
		FROM events e
		JOIN sessions s ON s.id = e.session_id
		WHERE s.status = 'committed' AND e.domain = ?
		ORDER BY s.seq ASC, e.position ASC
	`, domain)
	if err != nil {
		return nil, err
	}
	return eventsOf(entries), nil
}

// Replay calls fn once per committed session, in commit order, with the
// session's events. A non-empty domain keeps only that domain's events and
// skips sessions left without any. Replay stops at the first error fn
// returns.
func (j *Journal) Replay(ctx context.Context, domain string, fn func(sessionID string, events []event.Event) error) error {
	query := `
		SELECT e.session_id, e.payload, e.digest
		FROM events e
		JOIN sessions s ON s.id = e.session_id
		WHERE s.status = 'committed'
		ORDER BY s.seq ASC, e.position ASC
	`
	args := []any{}
	if domain != "" {
		query = `
			SELECT e.session_id, e.payload, e.digest
			FROM events e
			JOIN sessions s ON s.id = e.session_id
			WHERE s.status = 'committed' AND e.domain = ?
			ORDER BY s.seq ASC, e.position ASC
		`
		args = append(args, domain)
	}
	entries, err := j.query(ctx, query, args...)
	if err != nil {
		return err
	}

	for start := 0; start < len(entries); {
		end := start
		for end < len(entries) && entries[end].sessionID == entries[start].sessionID {
			end++
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(entries[start].sessionID, eventsOf(entries[start:end])); err != nil {
			return fmt.Errorf("replay session %s: %w", entries[start].sessionID, err)
		}
		start = end
	}
	return nil
}

// CorruptionError lists journaled events whose payload no longer matches
// the stored digest.
type CorruptionError struct {
	Sessions []string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("journal corrupted: %d session(s) fail digest verification: %v", len(e.Sessions), e.Sessions)
}

// Verify recomputes every event digest and returns a *CorruptionError
// naming the sessions that fail.
func (j *Journal) Verify(ctx context.Context) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT e.session_id, e.payload, e.digest
		FROM events e
		JOIN sessions s ON s.id = e.session_id
		ORDER BY s.seq ASC, e.position ASC
	`)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var bad []string
	seen := make(map[string]bool)
	for rows.Next() {
		var sessionID, payload, digest string
		if err := rows.Scan(&sessionID, &payload, &digest); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if value.DigestBytes(value.DomainEvent, []byte(payload)) != digest && !seen[sessionID] {
			seen[sessionID] = true
			bad = append(bad, sessionID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	if len(bad) > 0 {
		return &CorruptionError{Sessions: bad}
	}
	return nil
}

type entry struct {
	sessionID string
	event     event.Event
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []entry
	for rows.Next() {
		var sessionID, payload, digest string
		if err := rows.Scan(&sessionID, &payload, &digest); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := event.Decode([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		entries = append(entries, entry{sessionID: sessionID, event: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

func eventsOf(entries []entry) []event.Event {
	out := make([]event.Event, len(entries))
	for i, e := range entries {
		out[i] = e.event
	}
	return out
}
