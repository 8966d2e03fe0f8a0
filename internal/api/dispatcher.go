package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/auth"
	"github.com/tagboard/tagboard/internal/observability"
	"github.com/tagboard/tagboard/internal/shared"
)

// Dispatcher runs jobs: it binds arguments, checks the precondition, resolves
// the identity, checks the privilege and only then executes. Failures are
// terminal; nothing is retried.
type Dispatcher struct {
	env     *Env
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDispatcher constructs a Dispatcher. metrics may be nil.
func NewDispatcher(env *Env, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if env.Logger == nil {
		env.Logger = logger
	}
	return &Dispatcher{env: env, metrics: metrics, logger: logger}
}

// Env returns the collaborators shared by all calls.
func (d *Dispatcher) Env() *Env {
	return d.env
}

// Run executes job in normal mode as the identity stored in sess.
func (d *Dispatcher) Run(ctx context.Context, sess auth.SessionStore, job Job, args Args) (any, error) {
	return d.RunMode(ctx, sess, job, args, ModeNormal)
}

// RunMode executes job in mode as the identity stored in sess.
func (d *Dispatcher) RunMode(ctx context.Context, sess auth.SessionStore, job Job, args Args, mode Mode) (any, error) {
	return d.RunAs(ctx, auth.CurrentUser(sess), job, args, mode)
}

// RunAs executes job as identity.
func (d *Dispatcher) RunAs(ctx context.Context, identity access.Identity, job Job, args Args, mode Mode) (any, error) {
	return d.run(ctx, identity, job, args, mode, Target{})
}

func (d *Dispatcher) run(ctx context.Context, identity access.Identity, job Job, args Args, mode Mode, target Target) (result any, err error) {
	start := time.Now()
	defer func() {
		outcome := classify(err)
		d.metrics.ObserveJob(job.Name(), outcome, time.Since(start))
		d.logger.Debug("job dispatched",
			slog.String("job", job.Name()),
			slog.String("mode", mode.String()),
			slog.String("actor", identity.Name),
			slog.String("outcome", outcome))
	}()

	if args == nil {
		args = Args{}
	}
	call := &Call{
		Identity:   identity,
		Args:       args.clone(),
		Mode:       mode,
		Env:        d.env,
		Post:       target.Post,
		User:       target.User,
		dispatcher: d,
	}
	if !job.IsSatisfied(call.Args) {
		return nil, &shared.UnsatisfiedPreconditionError{Job: job.Name(), Message: "Missing required arguments"}
	}
	if err := job.Prepare(ctx, call); err != nil {
		return nil, err
	}
	req := job.RequiresPrivilege(call)
	if !d.env.Policy.Check(identity, req) {
		return nil, &shared.InsufficientPrivilegesError{Privilege: string(req.Privilege)}
	}
	return job.Execute(ctx, call)
}

func classify(err error) string {
	var (
		unsatisfied *shared.UnsatisfiedPreconditionError
		denied      *shared.InsufficientPrivilegesError
		invalid     *shared.ValidationError
	)
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.As(err, &unsatisfied):
		return observability.OutcomeUnsatisfied
	case errors.As(err, &denied):
		return observability.OutcomeDenied
	case errors.As(err, &invalid):
		return observability.OutcomeInvalid
	case errors.Is(err, shared.ErrNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeError
	}
}

func wrap(job Job, what string, err error) error {
	return fmt.Errorf("%s: %s: %w", job.Name(), what, err)
}
