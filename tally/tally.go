// Package tally turns vote reactions into registry votes.
package tally

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/itizir/emotepoll/metrics"
	"github.com/itizir/emotepoll/registry"
)

const DefaultSymbol = "👍"

type Action string

const (
	ActionRecord Action = "record"
	ActionRevoke Action = "revoke"
)

// Result describes what a reaction did. Reason is set when it was ignored.
type Result struct {
	Applied bool
	Votes   int
	Reason  string
}

type Reconciler struct {
	reg    *registry.Registry
	symbol string
	selfID string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewReconciler counts reactions with symbol on registered candidates. The
// reactions of selfID, the bot's own user, never count.
func NewReconciler(reg *registry.Registry, symbol, selfID string, clock clockwork.Clock, logger *slog.Logger) *Reconciler {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{reg: reg, symbol: symbol, selfID: selfID, clock: clock, logger: logger}
}

func (r *Reconciler) Symbol() string {
	return r.symbol
}

// Matches reports whether emoji is the vote symbol. Custom emoji arrive as
// "name:id"; a symbol configured as the bare name matches those too.
func (r *Reconciler) Matches(emoji string) bool {
	if emoji == r.symbol {
		return true
	}
	name, _, custom := strings.Cut(emoji, ":")
	return custom && name == r.symbol
}

func (r *Reconciler) Apply(ctx context.Context, action Action, messageID, userID, emoji string) Result {
	res := r.apply(action, messageID, userID, emoji)
	status := "applied"
	if !res.Applied {
		status = "ignored"
	}
	metrics.VotesTotal.WithLabelValues(string(action), status).Inc()
	if res.Applied {
		r.logger.DebugContext(ctx, "vote counted", "action", action, "candidate", messageID, "voter", userID, "votes", res.Votes)
	}
	return res
}

func (r *Reconciler) apply(action Action, messageID, userID, emoji string) Result {
	switch {
	case !r.Matches(emoji):
		return Result{Reason: "not the vote symbol"}
	case userID == "" || userID == r.selfID:
		return Result{Reason: "own reaction"}
	}

	id := registry.CandidateID(messageID)
	var (
		n   int
		err error
	)
	switch action {
	case ActionRecord:
		n, err = r.reg.RecordVote(id, userID)
	case ActionRevoke:
		n, err = r.reg.RevokeVote(id, userID)
	default:
		return Result{Reason: "unknown action"}
	}
	if errors.Is(err, registry.ErrNotFound) {
		return Result{Reason: "not a candidate"}
	} else if err != nil {
		return Result{Reason: err.Error()}
	}
	return Result{Applied: true, Votes: n}
}
