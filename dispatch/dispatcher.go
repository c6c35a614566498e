// Package dispatch routes inbound chat events to the command state machine
// and the vote reconciler.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/itizir/emotepoll/auth"
	"github.com/itizir/emotepoll/command"
	"github.com/itizir/emotepoll/logging"
	"github.com/itizir/emotepoll/metrics"
	"github.com/itizir/emotepoll/registry"
	"github.com/itizir/emotepoll/tally"
)

// State is where an event ended up in the dispatcher.
type State string

const (
	Unrecognized  State = "unrecognized"
	Denied        State = "denied"
	RejectedInput State = "rejected_input"
	Registered    State = "registered"
	Removed       State = "removed"
	Rendered      State = "rendered"
	// Failed means the candidate could not be posted, so nothing was registered.
	Failed State = "failed"

	Voted       State = "voted"
	Ignored     State = "ignored"
	Invalidated State = "invalidated"
)

// MaxNameLength matches the embed title limit the candidate name is shown in.
const MaxNameLength = 256

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// CandidatePost is what the sink publishes for people to vote on.
type CandidatePost struct {
	Name          string
	ImageURL      string
	Filename      string
	SubmitterID   string
	SubmitterName string
}

// Sink renders outbound messages. Its failures never undo registry changes.
type Sink interface {
	SendText(ctx context.Context, channelID, body string) error
	SendStats(ctx context.Context, channelID string, standings []registry.Standing) error
	// PostCandidate publishes the image and returns the id of the new message.
	PostCandidate(ctx context.Context, channelID string, post CandidatePost) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type Authorizer interface {
	Authorize(ctx context.Context, issuer auth.Issuer, required command.Capability) bool
}

type Options struct {
	Prefix string
	// VoteChannelID, when set, is where all candidates are posted and voted on.
	VoteChannelID  string
	MaxSubmissions int
	MaxImageBytes  int
	MinImageSide   int
	Workers        int
	QueueSize      int
}

type Dispatcher struct {
	reg    *registry.Registry
	auth   Authorizer
	tally  *tally.Reconciler
	sink   Sink
	clock  clockwork.Clock
	logger *slog.Logger
	opts   Options

	pool *pool
}

func New(reg *registry.Registry, authz Authorizer, rec *tally.Reconciler, sink Sink, clock clockwork.Clock, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.Prefix == "" {
		opts.Prefix = command.DefaultPrefix
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	d := &Dispatcher{
		reg:    reg,
		auth:   authz,
		tally:  rec,
		sink:   sink,
		clock:  clock,
		logger: logger,
		opts:   opts,
	}
	d.pool = newPool(opts.Workers, opts.QueueSize, d.Handle)
	return d
}

func (d *Dispatcher) scope(guildID, channelID string) registry.Scope {
	if d.opts.VoteChannelID != "" {
		channelID = d.opts.VoteChannelID
	}
	return registry.Scope{GuildID: guildID, ChannelID: channelID}
}

// Handle processes a single event synchronously. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (state State) {
	ctx = logging.WithEventID(ctx, uuid.NewString())
	t0 := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "event handler panicked", "type", ev.Type(), "panic", r)
			state = Ignored
		}
		metrics.EventsTotal.WithLabelValues(string(ev.Type())).Inc()
		metrics.EventDuration.WithLabelValues(string(ev.Type())).Observe(d.clock.Since(t0).Seconds())
	}()

	switch e := ev.(type) {
	case MessageReceived:
		return d.handleMessage(ctx, e)
	case ReactionAdded:
		return d.handleReaction(ctx, tally.ActionRecord, e.MessageID, e.ReactorID, e.Emoji)
	case ReactionRemoved:
		return d.handleReaction(ctx, tally.ActionRevoke, e.MessageID, e.ReactorID, e.Emoji)
	case MessageDeleted:
		return d.handleDeleted(ctx, e)
	default:
		d.logger.WarnContext(ctx, "unhandled event", "type", fmt.Sprintf("%T", ev))
		return Ignored
	}
}

func (d *Dispatcher) handleReaction(ctx context.Context, action tally.Action, messageID, userID, emoji string) State {
	if res := d.tally.Apply(ctx, action, messageID, userID, emoji); res.Applied {
		return Voted
	}
	return Ignored
}

func (d *Dispatcher) handleDeleted(ctx context.Context, e MessageDeleted) State {
	c, err := d.reg.Remove(registry.CandidateID(e.MessageID))
	if err != nil {
		return Ignored
	}
	metrics.Candidates.Set(float64(d.reg.Len()))
	d.logger.InfoContext(ctx, "candidate post deleted externally", "candidate", c.ID, "name", c.Name)
	return Invalidated
}

func (d *Dispatcher) handleMessage(ctx context.Context, m MessageReceived) State {
	res := command.Parse(d.opts.Prefix, m.Text)
	if res.Kind == command.None {
		return Unrecognized
	}

	verb := strings.ToLower(res.Verb)
	state, err := d.runCommand(ctx, m, res)

	var e *Error
	if errors.As(err, &e) {
		d.logger.InfoContext(ctx, "command rejected", "verb", verb, "kind", e.Kind, "user", m.AuthorID, "error", err)
		d.sendText(ctx, m.ChannelID, e.Message)
	} else if err != nil {
		d.logger.ErrorContext(ctx, "command failed", "verb", verb, "user", m.AuthorID, "error", err)
	}
	label := string(res.Command.Verb)
	if label == "" {
		label = "unknown"
	}
	metrics.CommandsTotal.WithLabelValues(label, string(state)).Inc()
	return state
}

func (d *Dispatcher) runCommand(ctx context.Context, m MessageReceived, res command.Result) (State, error) {
	if res.Kind == command.Invalid {
		return RejectedInput, inputError("Unknown command `%s`. Try `%shelp`.", res.Verb, d.opts.Prefix)
	}

	// a non-admin gets a denial for admin verbs even when the parameter is missing
	issuer := auth.Issuer{ID: m.AuthorID, GuildID: m.GuildID, Roles: m.Roles}
	if !d.auth.Authorize(ctx, issuer, res.Command.Capability()) {
		return Denied, errNotAuthorized
	}

	if res.Kind == command.MissingParameter {
		return RejectedInput, inputError("`%s%s` needs a parameter. Try `%shelp`.", d.opts.Prefix, res.Command.Verb, d.opts.Prefix)
	}
	if res.Command.Verb != command.Help && m.GuildID == "" {
		return RejectedInput, inputError("This command only works in a server.")
	}

	sc := d.scope(m.GuildID, m.ChannelID)
	switch res.Command.Verb {
	case command.Add:
		return d.add(ctx, m, sc, res.Command.Param)
	case command.Remove:
		return d.remove(ctx, m, sc, res.Command.Param)
	case command.Stats:
		return d.stats(ctx, m, sc)
	case command.Help:
		d.sendText(ctx, m.ChannelID, command.Usage(d.opts.Prefix))
		return Rendered, nil
	}
	return RejectedInput, inputError("Unknown command `%s`.", res.Verb)
}

func (d *Dispatcher) add(ctx context.Context, m MessageReceived, sc registry.Scope, name string) (State, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RejectedInput, inputError("No name found.")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return RejectedInput, inputError("Names can be at most %d characters (found %d).", MaxNameLength, n)
	}
	if n := len(m.Attachments); n != 1 {
		return RejectedInput, inputError("Attach exactly one image (found %d).", n)
	}
	a := m.Attachments[0]
	if err := d.checkImage(a); err != nil {
		return RejectedInput, err
	}
	if limit := d.opts.MaxSubmissions; limit > 0 && d.reg.Submissions(sc, m.AuthorID) >= limit {
		return RejectedInput, inputError("You can only have %d submissions at a time.", limit)
	}

	msgID, err := d.sink.PostCandidate(ctx, sc.ChannelID, CandidatePost{
		Name:          name,
		ImageURL:      a.URL,
		Filename:      a.Filename,
		SubmitterID:   m.AuthorID,
		SubmitterName: m.AuthorName,
	})
	if err != nil {
		metrics.SendFailures.WithLabelValues("post_candidate").Inc()
		d.sendText(ctx, m.ChannelID, "Could not post your emote, please try again later.")
		return Failed, fmt.Errorf("posting candidate %q: %w", name, err)
	}

	id, err := d.reg.Register(registry.Candidate{
		ID:            registry.CandidateID(msgID),
		Scope:         sc,
		Name:          name,
		ImageRef:      a.URL,
		SubmitterID:   m.AuthorID,
		SubmitterName: m.AuthorName,
		CreatedAt:     d.clock.Now(),
	})
	if err != nil {
		// retract the orphaned post
		d.deleteMessage(ctx, sc.ChannelID, msgID)
		if errors.Is(err, registry.ErrDuplicateCandidate) {
			return RejectedInput, stateError("Internal error: this post is already registered.", err)
		}
		return RejectedInput, &Error{Kind: KindInput, Message: "Invalid submission.", Cause: err}
	}
	metrics.Candidates.Set(float64(d.reg.Len()))

	d.logger.InfoContext(ctx, "candidate registered", "candidate", id, "name", name, "user", m.AuthorID, "scope", sc.String())
	d.sendText(ctx, m.ChannelID, fmt.Sprintf("Added **%s** for voting (id `%s`).", name, id))
	return Registered, nil
}

func (d *Dispatcher) checkImage(a Attachment) *Error {
	if limit := d.opts.MaxImageBytes; limit > 0 && a.Size >= limit {
		return inputError("Images must be smaller than %s.", humanBytes(limit))
	}
	if ext := strings.ToLower(path.Ext(a.Filename)); !imageExtensions[ext] {
		return inputError("Attachment is not an image (png, jpg, gif or webp).")
	}
	if side := d.opts.MinImageSide; side > 0 && a.Width > 0 && a.Height > 0 && (a.Width < side || a.Height < side) {
		return inputError("Image must be at least %dx%dpx.", side, side)
	}
	return nil
}

func (d *Dispatcher) remove(ctx context.Context, m MessageReceived, sc registry.Scope, target string) (State, error) {
	id, ok := d.resolve(sc, target)
	if !ok {
		return RejectedInput, notFoundError(fmt.Sprintf("No candidate `%s`.", target), registry.ErrNotFound)
	}
	c, err := d.reg.Remove(id)
	if err != nil {
		return RejectedInput, notFoundError(fmt.Sprintf("No candidate `%s`.", target), err)
	}
	metrics.Candidates.Set(float64(d.reg.Len()))

	d.logger.InfoContext(ctx, "candidate removed", "candidate", c.ID, "name", c.Name, "by", m.AuthorID)
	d.deleteMessage(ctx, c.Scope.ChannelID, string(c.ID))
	d.sendText(ctx, m.ChannelID, fmt.Sprintf("Removed **%s**.", c.Name))
	return Removed, nil
}

// resolve maps a remove target, a candidate id or a 1-based rank such as
// "3" or "#3", to a candidate of the scope.
func (d *Dispatcher) resolve(sc registry.Scope, target string) (registry.CandidateID, bool) {
	target = strings.TrimSpace(target)
	rank, isRank := strings.CutPrefix(target, "#")
	if !isRank {
		if st, ok := d.reg.Lookup(registry.CandidateID(target)); ok {
			return st.ID, st.Scope == sc
		}
	}
	n, err := strconv.Atoi(rank)
	if err != nil || n < 1 {
		return "", false
	}
	standings := d.reg.Standings(sc)
	if n > len(standings) {
		return "", false
	}
	return standings[n-1].ID, true
}

func (d *Dispatcher) stats(ctx context.Context, m MessageReceived, sc registry.Scope) (State, error) {
	standings := d.reg.Standings(sc)
	if len(standings) == 0 {
		d.sendText(ctx, m.ChannelID, "No candidates yet.")
		return Rendered, nil
	}
	if err := d.sink.SendStats(ctx, m.ChannelID, standings); err != nil {
		metrics.SendFailures.WithLabelValues("stats").Inc()
		d.logger.WarnContext(ctx, "failed to send stats", "channel", m.ChannelID, "error", err)
	}
	return Rendered, nil
}

func (d *Dispatcher) sendText(ctx context.Context, channelID, body string) {
	if err := d.sink.SendText(ctx, channelID, body); err != nil {
		metrics.SendFailures.WithLabelValues("text").Inc()
		d.logger.WarnContext(ctx, "failed to send message", "channel", channelID, "error", err)
	}
}

func (d *Dispatcher) deleteMessage(ctx context.Context, channelID, messageID string) {
	if err := d.sink.DeleteMessage(ctx, channelID, messageID); err != nil {
		metrics.SendFailures.WithLabelValues("delete").Inc()
		d.logger.WarnContext(ctx, "failed to delete message", "channel", channelID, "message", messageID, "error", err)
	}
}

func humanBytes(n int) string {
	switch {
	case n >= 1_000_000 && n%1_000_000 == 0:
		return fmt.Sprintf("%dMB", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%dkB", n/1_000)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// Enqueue hands ev to the worker owning its scope. It reports false when the
// event was dropped because the dispatcher is stopping.
func (d *Dispatcher) Enqueue(ev Event) bool {
	guildID, channelID := ev.Channel()
	sc := d.scope(guildID, channelID)
	if !d.pool.submit(sc.String(), ev) {
		metrics.EventsDropped.Inc()
		return false
	}
	return true
}

// Run processes queued events until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	d.pool.run(ctx)
}
