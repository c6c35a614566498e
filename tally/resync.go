package tally

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/itizir/emotepoll/registry"
)

// ErrMessageGone is returned by a VoterSource when the candidate post no
// longer exists on the platform.
var ErrMessageGone = errors.New("message no longer exists")

// VoterSource reads who currently reacts with a given emoji on a message.
type VoterSource interface {
	Voters(ctx context.Context, channelID, messageID, emoji string) ([]string, error)
}

type ResyncReport struct {
	Synced  int
	Removed int
	Failed  int
}

// Resync brings the tallies of every registered candidate in line with the
// reactions currently on the platform, so that votes cast while the bot was
// offline are counted. Candidates whose post has been deleted are dropped.
func (r *Reconciler) Resync(ctx context.Context, src VoterSource, parallel int) (ResyncReport, error) {
	var report ResyncReport

	t0 := r.clock.Now()
	defer func() {
		r.logger.InfoContext(ctx, "resync finished",
			"synced", report.Synced, "removed", report.Removed, "failed", report.Failed, "took", r.clock.Since(t0))
	}()

	candidates := r.reg.Candidates()
	type outcome struct {
		id     registry.CandidateID
		voters []string
		err    error
	}
	results := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, c := range candidates {
		g.Go(func() error {
			voters, err := src.Voters(gctx, c.Scope.ChannelID, string(c.ID), r.symbol)
			results[i] = outcome{id: c.ID, voters: voters, err: err}
			// per-post errors are reported below, not through the group
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("resync: %w", err)
	}

	for _, o := range results {
		switch {
		case errors.Is(o.err, ErrMessageGone):
			if _, err := r.reg.Remove(o.id); err == nil {
				report.Removed++
			}
		case o.err != nil:
			report.Failed++
			r.logger.WarnContext(ctx, "failed to fetch voters", "candidate", o.id, "error", o.err)
		default:
			if _, err := r.reg.ReplaceVoters(o.id, r.withoutSelf(o.voters)); err == nil {
				report.Synced++
			}
		}
	}
	return report, nil
}

func (r *Reconciler) withoutSelf(voters []string) []string {
	out := make([]string, 0, len(voters))
	for _, v := range voters {
		if v != r.selfID && v != "" {
			out = append(out, v)
		}
	}
	return out
}
