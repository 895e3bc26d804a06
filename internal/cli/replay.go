package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/graph"
	"github.com/roach88/lattice/internal/journal"
	"github.com/roach88/lattice/internal/schema"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Domain string // optional - one domain only
}

// ReplayDomainResult holds the replayed state of one domain.
type ReplayDomainResult struct {
	Domain        string `json:"domain"`
	Schemas       int    `json:"schemas"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Digest        string `json:"digest"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         int                  `json:"sessions"`
	Domains          []ReplayDomainResult `json:"domains"`
	AllDeterministic bool                 `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <journal.db>",
		Short: "Rebuild state from a journal and verify determinism",
		Long: `Verify the journal's event digests, then replay every committed session
into two fresh stores and compare the resulting state of each domain.

Aborted sessions are skipped. Custom events are re-raised.

Exit codes:
  0 - Journal is intact and replay is deterministic
  1 - Corrupted journal or differing replays
  2 - Command error (journal not found, replay failed, etc.)

Examples:
  lattice replay ./hire.db
  lattice replay ./hire.db --domain hr --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "replay one domain only")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, stop := signalContext(cmd)
	defer stop()

	j, err := openJournal(path)
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.Verify(ctx); err != nil {
		var corrupt *journal.CorruptionError
		if errors.As(err, &corrupt) {
			_ = formatter.Error("E_CORRUPTED", corrupt.Error(), corrupt.Sessions)
			return WrapExitError(ExitFailure, "journal verification failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to verify journal", err)
	}
	formatter.VerboseLog("Journal digests verified")

	first, sessions, err := replayInto(ctx, opts, j)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	defer first.Close()
	second, _, err := replayInto(ctx, opts, j)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	defer second.Close()

	result := ReplayResult{
		Sessions:         sessions,
		Domains:          []ReplayDomainResult{},
		AllDeterministic: true,
	}
	for _, d := range first.Domains() {
		dr, err := summarizeDomain(d, second)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to digest domain %s", d.Name()), err)
		}
		formatter.VerboseLog("Domain %s: digest %s", dr.Domain, dr.Digest)
		result.Domains = append(result.Domains, dr)
		result.AllDeterministic = result.AllDeterministic && dr.Deterministic
	}

	return outputReplay(formatter, result)
}

// openJournal opens an existing journal. journal.Open would create a
// missing file.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

func replayInto(ctx context.Context, opts *ReplayOptions, j *journal.Journal) (*graph.Store, int, error) {
	st := graph.NewStore(graph.WithMaxSchemaDepth(opts.Config.MaxSchemaDepth))
	n, err := st.Replay(ctx, j, opts.Domain)
	if err != nil {
		st.Close()
		return nil, 0, err
	}
	return st, n, nil
}

func summarizeDomain(d *graph.Domain, other *graph.Store) (ReplayDomainResult, error) {
	dr := ReplayDomainResult{
		Domain:  d.Name(),
		Schemas: len(d.Schemas().Schemas(d.Name())),
	}
	for _, el := range d.Elements() {
		if el.Kind() == schema.KindRelationship {
			dr.Relationships++
		} else {
			dr.Entities++
		}
	}

	digest, err := d.StateDigest()
	if err != nil {
		return dr, err
	}
	dr.Digest = digest

	if od, ok := other.GetDomainModel(d.Name()); ok {
		otherDigest, err := od.StateDigest()
		if err != nil {
			return dr, err
		}
		dr.Deterministic = otherDigest == digest
	}
	return dr, nil
}

func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	nondeterministic := NewExitError(ExitFailure, "replay is not deterministic")
	if formatter.JSON() {
		if !result.AllDeterministic {
			if err := formatter.Failure("E_NONDETERMINISTIC", nondeterministic.Message, result); err != nil {
				return err
			}
			return nondeterministic
		}
		return formatter.Success(result)
	}

	w := formatter.Writer
	if result.Sessions == 0 {
		fmt.Fprintln(w, "No committed sessions found in journal.")
		return nil
	}
	fmt.Fprintf(w, "Replayed %d session(s)\n\n", result.Sessions)
	for _, d := range result.Domains {
		mark := "✓"
		if !d.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d schema(s), %d entity(ies), %d relationship(s)\n",
			mark, d.Domain, d.Schemas, d.Entities, d.Relationships)
		fmt.Fprintf(w, "  digest %s\n", d.Digest)
	}
	fmt.Fprintln(w)
	if !result.AllDeterministic {
		fmt.Fprintln(w, "✗ Replay is not deterministic")
		return nondeterministic
	}
	fmt.Fprintln(w, "✓ Replay is deterministic")
	return nil
}
