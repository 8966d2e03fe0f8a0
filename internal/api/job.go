package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/mail"
	"github.com/tagboard/tagboard/internal/posts"
	"github.com/tagboard/tagboard/internal/users"
)

// Job is one privilege-gated unit of domain mutation. The set of jobs is
// closed: only types in this package implement it.
type Job interface {
	Name() string
	// IsSatisfied checks that the required arguments are present.
	IsSatisfied(args Args) bool
	// Prepare loads the target entity unless the caller bound one already.
	// It must not mutate anything.
	Prepare(ctx context.Context, call *Call) error
	RequiresPrivilege(call *Call) access.Requirement
	Execute(ctx context.Context, call *Call) (any, error)

	job()
}

// sealed is embedded by every job to close the variant set.
type sealed struct{}

func (sealed) job() {}

// Env holds the collaborators jobs work with.
type Env struct {
	Policy    *access.Policy
	Users     users.Repository
	Posts     posts.Repository
	Validator *users.Validator
	Audit     audit.Sink
	Mail      mail.Sink
	Templates mail.Templates
	Logger    *slog.Logger

	// Now and NewToken are replaceable in tests.
	Now      func() time.Time
	NewToken func() string
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Env) newToken() string {
	if e.NewToken != nil {
		return e.NewToken()
	}
	return uuid.NewString()
}

// Target pre-binds the entity a job operates on. Batch callers use it to keep
// working on an unsaved entity across several jobs.
type Target struct {
	Post *posts.Post
	User *users.User
}

// Call is the state of one job invocation. The target entities are borrowed
// for the duration of the call.
type Call struct {
	Identity access.Identity
	Args     Args
	Mode     Mode
	Env      *Env

	Post *posts.Post
	User *users.User

	dispatcher *Dispatcher
}

// Run executes a sub-job as the same identity. All checks apply.
func (c *Call) Run(ctx context.Context, job Job, args Args, mode Mode) (any, error) {
	return c.RunOn(ctx, job, args, mode, Target{})
}

// RunOn executes a sub-job against a pre-bound target.
func (c *Call) RunOn(ctx context.Context, job Job, args Args, mode Mode, target Target) (any, error) {
	return c.dispatcher.run(ctx, c.Identity, job, args, mode, target)
}

func (c *Call) audit(ctx context.Context, template string, fields map[string]string) {
	if c.Env.Audit == nil {
		return
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fields[audit.FieldUser] = audit.ReprUser(c.Identity.Name)
	c.Env.Audit.Log(ctx, audit.NewEntry(template, fields))
}
