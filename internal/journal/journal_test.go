package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/value"
)

func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func header(domain, session string, version int64) event.Header {
	return event.Header{DomainModel: domain, Version: version, CorrelationID: session, TopLevel: true}
}

func addEntity(t *testing.T, domain, session, key string, version int64) event.Event {
	t.Helper()
	ev, err := event.NewAddEntity(header(domain, session, version), value.NewID(domain, key), value.NewID(domain, "Person"))
	require.NoError(t, err)
	return ev
}

func setName(t *testing.T, domain, session, key, name string, version int64) event.Event {
	t.Helper()
	ref := event.PropertyRef{
		ElementID:        value.NewID(domain, key),
		SchemaID:         value.NewID(domain, "Person"),
		PropertySchemaID: value.NewID(domain, "Person.Name"),
		PropertyName:     "Name",
	}
	ev, err := event.NewChangePropertyValue(header(domain, session, version), ref, value.String(name), value.Null{})
	require.NoError(t, err)
	return ev
}

func TestOpenAppliesPragmas(t *testing.T) {
	j := createTestJournal(t)

	tests := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	}
	for name, want := range tests {
		got, err := j.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j1, err := Open(path)
	require.NoError(t, err)
	_, err = j1.WriteSession(context.Background(), "s-1", StatusCommitted, nil)
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	rec, err := j2.Session(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestWriteAndReadSession(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	events := []event.Event{
		addEntity(t, "hr", "s-1", "p1", 1),
		setName(t, "hr", "s-1", "p1", "Ada", 2),
	}
	rec, err := j.WriteSession(ctx, "s-1", StatusCommitted, events)
	require.NoError(t, err)
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, StatusCommitted, rec.Status)
	assert.Equal(t, 2, rec.Events)
	assert.Len(t, rec.Digest, 64)

	got, err := j.ReadEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestWriteSessionIsIdempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	first, err := j.WriteSession(ctx, "s-1", StatusCommitted, []event.Event{addEntity(t, "hr", "s-1", "p1", 1)})
	require.NoError(t, err)
	second, err := j.WriteSession(ctx, "s-1", StatusAborted, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the stored record wins")

	events, err := j.ReadEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWriteSessionRejectsBadInput(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.WriteSession(context.Background(), "", StatusCommitted, nil)
	assert.Error(t, err)
	_, err = j.WriteSession(context.Background(), "s-1", Status("pending"), nil)
	assert.Error(t, err)
}

func TestSessionNotFound(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsAreNumberedInWriteOrder(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := j.WriteSession(ctx, id, StatusCommitted, nil)
		require.NoError(t, err)
	}

	records, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "zeta", records[0].SessionID)
	assert.Equal(t, "alpha", records[1].SessionID)
	assert.Equal(t, "mid", records[2].SessionID)
	assert.Equal(t, int64(3), records[2].Seq)
}

func TestReplay(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	_, err := j.WriteSession(ctx, "s-1", StatusCommitted, []event.Event{
		addEntity(t, "hr", "s-1", "p1", 1),
		addEntity(t, "crm", "s-1", "c1", 2),
	})
	require.NoError(t, err)
	_, err = j.WriteSession(ctx, "s-2", StatusAborted, []event.Event{addEntity(t, "hr", "s-2", "p2", 3)})
	require.NoError(t, err)
	_, err = j.WriteSession(ctx, "s-3", StatusCommitted, []event.Event{setName(t, "hr", "s-3", "p1", "Ada", 4)})
	require.NoError(t, err)
	_, err = j.WriteSession(ctx, "s-4", StatusCommitted, []event.Event{addEntity(t, "crm", "s-4", "c2", 5)})
	require.NoError(t, err)

	t.Run("all domains", func(t *testing.T) {
		var sessions []string
		var counts []int
		err := j.Replay(ctx, "", func(id string, events []event.Event) error {
			sessions = append(sessions, id)
			counts = append(counts, len(events))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"s-1", "s-3", "s-4"}, sessions, "aborted sessions are skipped")
		assert.Equal(t, []int{2, 1, 1}, counts)
	})

	t.Run("one domain", func(t *testing.T) {
		var sessions []string
		err := j.Replay(ctx, "hr", func(id string, events []event.Event) error {
			sessions = append(sessions, id)
			for _, ev := range events {
				assert.Equal(t, "hr", ev.Meta().DomainModel)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"s-1", "s-3"}, sessions)
	})

	t.Run("stops on error", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := j.Replay(ctx, "", func(string, []event.Event) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("domain events", func(t *testing.T) {
		events, err := j.ReadDomainEvents(ctx, "hr")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, event.KindAddEntity, events[0].Kind())
		assert.Equal(t, event.KindChangePropertyValue, events[1].Kind())
	})
}

func TestVerifyDetectsTampering(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	_, err := j.WriteSession(ctx, "s-1", StatusCommitted, []event.Event{setName(t, "hr", "s-1", "p1", "Ada", 1)})
	require.NoError(t, err)
	_, err = j.WriteSession(ctx, "s-2", StatusCommitted, []event.Event{addEntity(t, "hr", "s-2", "p2", 2)})
	require.NoError(t, err)
	require.NoError(t, j.Verify(ctx))

	_, err = j.db.Exec(`UPDATE events SET payload = replace(payload, 'Ada', 'Eve') WHERE session_id = 's-1'`)
	require.NoError(t, err)

	err = j.Verify(ctx)
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"s-1"}, ce.Sessions)
}
