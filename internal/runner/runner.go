// Package runner drives one sequential triage batch: fetch, normalize,
// triage, apply policy, report, execute and audit each email in turn.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailtriage/internal/audit"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/gmail"
	"github.com/daviddao/mailtriage/internal/policy"
	"github.com/daviddao/mailtriage/internal/types"
)

// Source lists and fetches messages.
type Source interface {
	ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, messageID string) (*gm.Message, error)
}

// Executor applies triage actions to a mailbox.
type Executor interface {
	EnsureLabel(ctx context.Context, name string) (string, error)
	AddLabels(ctx context.Context, messageID string, labelIDs []string) error
	Star(ctx context.Context, messageID string) error
	Archive(ctx context.Context, messageID string) error
}

// Triager produces a validated decision for one email.
type Triager interface {
	Triage(ctx context.Context, email types.Email) (types.Decision, error)
}

// ActionRecorder observes executed actions. *triage.Metrics implements it.
type ActionRecorder interface {
	RecordAction(action string, err error)
}

// Action names passed to ActionRecorder.
const (
	ActionLabel   = "label"
	ActionStar    = "star"
	ActionArchive = "archive"
)

// Options configures a run.
type Options struct {
	Mode         string
	Model        string
	Fetch        int64
	SinceDays    int
	MaxBodyChars int
	// FailFast stops the batch at the first email that cannot be triaged.
	FailFast bool
	// AuditPath is shown in the summary.
	AuditPath string
}

// Deps are the collaborators of a Runner. Executor may be nil in dry-run mode.
type Deps struct {
	Source   Source
	Executor Executor
	Triager  Triager
	Policy   *policy.Engine
	Sink     audit.Sink
	Recorder ActionRecorder
	Out      io.Writer
	Logger   *zap.Logger
}

// Runner processes one batch of emails.
type Runner struct {
	Deps
	opts Options
}

// New creates a Runner.
func New(deps Deps, opts Options) (*Runner, error) {
	if deps.Source == nil || deps.Triager == nil || deps.Policy == nil {
		return nil, errors.New("runner: source, triager and policy are required")
	}
	if opts.Mode == types.ModeApply && deps.Executor == nil {
		return nil, errors.New("runner: apply mode needs an executor")
	}
	if deps.Sink == nil {
		deps.Sink = audit.Discard
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = types.ModeDryRun
	}
	return &Runner{Deps: deps, opts: opts}, nil
}

// Run processes every fetched email sequentially. An email that fails triage
// is audited as failed and the batch continues unless FailFast is set.
// Errors returned are fatal to the batch: listing failures, audit write
// failures, cancellation, or the first triage failure under FailFast.
func (r *Runner) Run(ctx context.Context) (types.RunSummary, error) {
	sum := types.RunSummary{
		RunID:     ulid.Make().String(),
		Mode:      r.opts.Mode,
		Model:     r.opts.Model,
		AuditPath: r.opts.AuditPath,
	}
	log := r.Logger.With(zap.String("run_id", sum.RunID), zap.String("mode", sum.Mode))

	query := gmail.BuildQuery(r.opts.SinceDays)
	ids, err := r.Source.ListMessageIDs(ctx, query, r.opts.Fetch)
	if err != nil {
		return sum, fmt.Errorf("fetch messages: %w", err)
	}
	sum.Fetched = len(ids)
	log.Info("fetched messages", zap.Int("count", len(ids)), zap.String("query", query))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := r.processOne(ctx, log.With(zap.String("email_id", id)), id, &sum); err != nil {
			return sum, err
		}
	}

	log.Info("run complete",
		zap.Int("triaged", sum.Triaged),
		zap.Int("failed", sum.Failed),
		zap.Int("labeled", sum.Labeled),
		zap.Int("starred", sum.Starred),
		zap.Int("archived", sum.Archived),
	)
	return sum, nil
}

func (r *Runner) processOne(ctx context.Context, log *zap.Logger, id string, sum *types.RunSummary) error {
	msg, err := r.Source.GetMessage(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("fetch message failed", zap.Error(err))
		return r.fail(ctx, types.Email{ID: id}, err, sum)
	}
	email := gmail.Normalize(msg, r.opts.MaxBodyChars)

	decision, err := r.Triager.Triage(ctx, email)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.fail(ctx, email, err, sum)
	}
	decision = r.Policy.Decide(decision, email.From)
	sum.Triaged++

	display.Decision(r.Out, r.opts.Mode, email, decision)
	log.Info("triaged",
		zap.String("category", string(decision.Category)),
		zap.String("priority", string(decision.Priority)),
		zap.String("action", string(decision.Action)),
	)

	if r.opts.Mode == types.ModeApply {
		r.execute(ctx, log, email.ID, decision, sum)
	}

	rec := audit.NewRecord(sum.RunID, r.opts.Mode, r.opts.Model, email, &decision, nil)
	if err := r.Sink.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit %s: %w", email.ID, err)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, email types.Email, cause error, sum *types.RunSummary) error {
	sum.Failed++
	display.Failure(r.Out, r.opts.Mode, email, cause)

	rec := audit.NewRecord(sum.RunID, r.opts.Mode, r.opts.Model, email, nil, cause)
	if err := r.Sink.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit %s: %w", email.ID, err)
	}
	if r.opts.FailFast {
		return fmt.Errorf("email %s: %w", email.ID, cause)
	}
	return nil
}

// execute applies the decision. Failures are logged and counted, never fatal.
func (r *Runner) execute(ctx context.Context, log *zap.Logger, msgID string, d types.Decision, sum *types.RunSummary) {
	if d.Label != "" {
		err := r.applyLabel(ctx, msgID, d.Label)
		r.record(log, ActionLabel, err)
		if err == nil {
			sum.Labeled++
		}
	}
	if d.Star {
		err := r.Executor.Star(ctx, msgID)
		r.record(log, ActionStar, err)
		if err == nil {
			sum.Starred++
		}
	}
	if d.Archive {
		err := r.Executor.Archive(ctx, msgID)
		r.record(log, ActionArchive, err)
		if err == nil {
			sum.Archived++
		}
	}
}

func (r *Runner) applyLabel(ctx context.Context, msgID, name string) error {
	labelID, err := r.Executor.EnsureLabel(ctx, name)
	if err != nil {
		return err
	}
	return r.Executor.AddLabels(ctx, msgID, []string{labelID})
}

func (r *Runner) record(log *zap.Logger, action string, err error) {
	if r.Recorder != nil {
		r.Recorder.RecordAction(action, err)
	}
	if err != nil {
		log.Warn("action failed", zap.String("action", action), zap.Error(err))
		return
	}
	log.Debug("action applied", zap.String("action", action))
}
