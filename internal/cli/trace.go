package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/event"
	"github.com/roach88/lattice/internal/journal"
	"github.com/roach88/lattice/internal/value"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Session string // optional - one session only
	Domain  string // optional - filter timeline events to a domain
	Events  bool   // include every session's timeline
}

// TraceEntry is one journaled event.
type TraceEntry struct {
	Version int64     `json:"version"`
	Kind    string    `json:"kind"`
	Domain  string    `json:"domain"`
	Payload value.Map `json:"payload"`
}

// TraceSession is one journaled session.
type TraceSession struct {
	Seq      int64        `json:"seq"`
	Session  string       `json:"session"`
	Status   string       `json:"status"`
	Events   int          `json:"events"`
	Digest   string       `json:"digest"`
	Timeline []TraceEntry `json:"timeline,omitempty"`
}

// TraceStats holds summary statistics for the journal.
type TraceStats struct {
	Sessions  int `json:"sessions"`
	Committed int `json:"committed"`
	Aborted   int `json:"aborted"`
	Events    int `json:"events"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Sessions []TraceSession `json:"sessions"`
	Stats    TraceStats     `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <journal.db>",
		Short: "List journaled sessions and their events",
		Long: `List the sessions recorded in a journal in commit order, with their
outcome, event count and digest.

--session shows one session with its events. --events shows the events of
every session. --domain keeps only the events of one domain.

Examples:
  lattice trace ./hire.db
  lattice trace ./hire.db --session s-2
  lattice trace ./hire.db --events --domain hr --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "show one session")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "filter events to a domain")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "show every session's events")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := openJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()

	var records []journal.Record
	if opts.Session != "" {
		rec, err := j.Session(ctx, opts.Session)
		if errors.Is(err, journal.ErrNotFound) {
			_ = formatter.Error("E_NOT_FOUND", fmt.Sprintf("session %s not found", opts.Session), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("session %s not found", opts.Session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		records = []journal.Record{rec}
	} else if records, err = j.Sessions(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}

	result := TraceResult{Sessions: make([]TraceSession, 0, len(records))}
	for _, rec := range records {
		ts := TraceSession{
			Seq:     rec.Seq,
			Session: rec.SessionID,
			Status:  string(rec.Status),
			Events:  rec.Events,
			Digest:  rec.Digest,
		}
		if opts.Session != "" || opts.Events {
			events, err := j.ReadEvents(ctx, rec.SessionID)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read events of %s", rec.SessionID), err)
			}
			if ts.Timeline, err = buildTimeline(events, opts.Domain); err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to decode events of %s", rec.SessionID), err)
			}
		}

		result.Stats.Sessions++
		result.Stats.Events += rec.Events
		if rec.Status == journal.StatusCommitted {
			result.Stats.Committed++
		} else {
			result.Stats.Aborted++
		}
		result.Sessions = append(result.Sessions, ts)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter, result)
	return nil
}

// buildTimeline converts events to trace entries, keeping only domain's
// events when domain is set.
func buildTimeline(events []event.Event, domain string) ([]TraceEntry, error) {
	var out []TraceEntry
	for _, ev := range events {
		h := ev.Meta()
		if domain != "" && h.DomainModel != domain {
			continue
		}
		env, err := event.Envelope(ev)
		if err != nil {
			return nil, err
		}
		payload, _ := env["payload"].(value.Map)
		out = append(out, TraceEntry{
			Version: h.Version,
			Kind:    string(ev.Kind()),
			Domain:  h.DomainModel,
			Payload: payload,
		})
	}
	return out, nil
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) {
	w := formatter.Writer
	if len(result.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions found in journal.")
		return
	}

	for _, s := range result.Sessions {
		fmt.Fprintf(w, "[%d] %s %s (%d event(s)) %s\n", s.Seq, s.Session, s.Status, s.Events, shortDigest(s.Digest))
		for _, e := range s.Timeline {
			fmt.Fprintf(w, "  v%d %s %s %s\n", e.Version, e.Domain, e.Kind, value.Text(e.Payload))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sessions: %d (%d committed, %d aborted), events: %d\n",
		result.Stats.Sessions, result.Stats.Committed, result.Stats.Aborted, result.Stats.Events)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
