package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/auth"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
)

// Audit templates emitted by the user jobs.
const (
	TemplateUserRegistered   = "{user} registered {target}"
	TemplateUserRenamed      = "{user} renamed {target} to {value}"
	TemplateUserPassword     = "{user} changed {target} password"
	TemplateUserEmail        = "{user} changed {target} e-mail to {value}"
	TemplateUserEmailConfirm = "{user} confirmed {target} e-mail"
	TemplateUserAccessRank   = "{user} changed {target} access rank to {value}"
	TemplateUserAccepted     = "{user} accepted {target} registration"
	TemplateUserBanned       = "{user} banned {target}"
	TemplateUserUnbanned     = "{user} unbanned {target}"
)

const duplicateNameMessage = "User with this name is already registered."

// loadUser binds the user named by ArgUserName unless a target was passed in.
func loadUser(ctx context.Context, call *Call) error {
	if call.User != nil {
		return nil
	}
	name, err := call.Args.String(ArgUserName)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return &shared.NotFoundError{Entity: "user", Key: name}
	}
	user, err := call.Env.Users.FindByName(ctx, name)
	if err != nil {
		return err
	}
	call.User = user
	return nil
}

// saveUser persists the target in normal mode only.
func saveUser(ctx context.Context, job Job, call *Call) error {
	if call.Mode != ModeNormal {
		return nil
	}
	if err := call.Env.Users.Save(ctx, call.User); err != nil {
		if errors.Is(err, users.ErrDuplicateName) {
			return shared.NewValidationError(duplicateNameMessage)
		}
		return wrap(job, "save user", err)
	}
	return nil
}

// logUserChange records changes to existing accounts. Edits applied while an
// account is being registered are covered by the registration entry.
func logUserChange(ctx context.Context, call *Call, template string, fields map[string]string) {
	if call.User.IsNew() {
		return
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fields[audit.FieldTarget] = audit.ReprUser(call.User.Name)
	call.audit(ctx, template, fields)
}

// sendConfirmation mails the pending address of user. Delivery problems are
// logged; the account change already happened.
func sendConfirmation(ctx context.Context, call *Call, user *users.User) {
	if call.Env.Mail == nil || user.EmailUnconfirmed == "" || user.EmailToken == "" {
		return
	}
	msg := call.Env.Templates.ConfirmationMessage(user.Name, user.EmailUnconfirmed, user.EmailToken)
	if err := call.Env.Mail.Send(ctx, msg); err != nil {
		call.Env.Logger.Warn("send confirmation mail", slog.String("user", user.Name), slog.Any("error", err))
	}
}

// AddUser registers a new account by running the individual edit jobs on a
// fresh user in ModeBatchAdd and saving once.
type AddUser struct{ sealed }

func (AddUser) Name() string { return "AddUser" }

func (AddUser) IsSatisfied(args Args) bool {
	return args.Has(ArgNewUserName) && args.Has(ArgNewPassword)
}

func (AddUser) Prepare(ctx context.Context, call *Call) error { return nil }

func (AddUser) RequiresPrivilege(call *Call) access.Requirement {
	return access.Require(access.RegisterAccount)
}

// Execute returns the saved *users.User.
func (j AddUser) Execute(ctx context.Context, call *Call) (any, error) {
	email, err := call.Args.String(ArgNewEmail)
	if err != nil {
		return nil, err
	}
	if call.Env.Validator.Rules().NeedEmail && strings.TrimSpace(email) == "" {
		return nil, shared.NewValidationError("E-mail address is required - you will be sent confirmation e-mail.")
	}

	count, err := call.Env.Users.Count(ctx)
	if err != nil {
		return nil, wrap(j, "count users", err)
	}
	first := count == 0
	user, err := j.build(ctx, call, first)
	if err != nil {
		return nil, err
	}
	err = j.save(ctx, call, user, first)
	if first && errors.Is(err, users.ErrNotFirst) {
		// Another registration became the first account after Count.
		if user, err = j.build(ctx, call, false); err != nil {
			return nil, err
		}
		err = j.save(ctx, call, user, false)
	}
	if err != nil {
		return nil, err
	}
	call.audit(ctx, TemplateUserRegistered, map[string]string{audit.FieldTarget: audit.ReprUser(user.Name)})
	sendConfirmation(ctx, call, user)
	return user, nil
}

// build applies the individual edit jobs to a fresh account. The first
// account becomes a confirmed Admin.
func (AddUser) build(ctx context.Context, call *Call, first bool) (*users.User, error) {
	user := &users.User{Rank: access.Registered, JoinedAt: call.Env.now()}
	if first {
		user.Rank = access.Admin
		user.StaffConfirmed = true
	} else {
		user.StaffConfirmed = !call.Env.Validator.Rules().StaffActivation
	}

	target := Target{User: user}
	steps := []struct {
		job Job
		arg string
	}{
		{EditUserName{}, ArgNewUserName},
		{EditUserPassword{}, ArgNewPassword},
		{EditUserEmail{}, ArgNewEmail},
		{EditUserAccessRank{}, ArgNewAccessRank},
	}
	for _, step := range steps {
		if !call.Args.Has(step.arg) {
			continue
		}
		if _, err := call.RunOn(ctx, step.job, call.Args, ModeBatchAdd, target); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (j AddUser) save(ctx context.Context, call *Call, user *users.User, first bool) error {
	save := call.Env.Users.Save
	if first {
		save = call.Env.Users.SaveFirst
	}
	if err := save(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateName) {
			return shared.NewValidationError(duplicateNameMessage)
		}
		return wrap(j, "save user", err)
	}
	return nil
}

// EditUserName renames an account.
type EditUserName struct{ sealed }

func (EditUserName) Name() string { return "EditUserName" }

func (EditUserName) IsSatisfied(args Args) bool { return args.Has(ArgNewUserName) }

func (EditUserName) Prepare(ctx context.Context, call *Call) error { return loadUser(ctx, call) }

func (EditUserName) RequiresPrivilege(call *Call) access.Requirement {
	if call.Mode == ModeBatchAdd {
		return access.Require(access.RegisterAccount)
	}
	return access.RequireOwned(access.ChangeUserName, call.User.Name)
}

func (j EditUserName) Execute(ctx context.Context, call *Call) (any, error) {
	raw, err := call.Args.String(ArgNewUserName)
	if err != nil {
		return nil, err
	}
	name, err := call.Env.Validator.ValidateName(raw)
	if err != nil {
		return nil, err
	}
	user := call.User
	existing, err := call.Env.Users.FindByName(ctx, name)
	switch {
	case err == nil:
		if user.IsNew() || existing.ID != user.ID {
			return nil, shared.NewValidationError(duplicateNameMessage)
		}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, wrap(j, "find user", err)
	}

	previous := user.Name
	user.Name = name
	if err := saveUser(ctx, j, call); err != nil {
		user.Name = previous
		return nil, err
	}
	if !user.IsNew() && previous != name {
		call.audit(ctx, TemplateUserRenamed, map[string]string{
			audit.FieldTarget: audit.ReprUser(previous),
			audit.FieldValue:  audit.ReprUser(name),
		})
	}
	return user, nil
}

// EditUserPassword sets a new password.
type EditUserPassword struct{ sealed }

func (EditUserPassword) Name() string { return "EditUserPassword" }

func (EditUserPassword) IsSatisfied(args Args) bool { return args.Has(ArgNewPassword) }

func (EditUserPassword) Prepare(ctx context.Context, call *Call) error { return loadUser(ctx, call) }

func (EditUserPassword) RequiresPrivilege(call *Call) access.Requirement {
	if call.Mode == ModeBatchAdd {
		return access.Require(access.RegisterAccount)
	}
	return access.RequireOwned(access.ChangeUserPassword, call.User.Name)
}

func (j EditUserPassword) Execute(ctx context.Context, call *Call) (any, error) {
	password, err := call.Args.String(ArgNewPassword)
	if err != nil {
		return nil, err
	}
	if err := call.Env.Validator.ValidatePassword(password); err != nil {
		return nil, err
	}
	salt, err := auth.NewSalt()
	if err != nil {
		return nil, wrap(j, "salt", err)
	}
	hash, err := auth.HashPassword(password, salt)
	if err != nil {
		return nil, wrap(j, "hash", err)
	}
	user := call.User
	previousSalt, previousHash := user.PasswordSalt, user.PasswordHash
	user.PasswordSalt = salt
	user.PasswordHash = hash
	if err := saveUser(ctx, j, call); err != nil {
		user.PasswordSalt, user.PasswordHash = previousSalt, previousHash
		return nil, err
	}
	logUserChange(ctx, call, TemplateUserPassword, nil)
	return user, nil
}

// EditUserEmail changes the e-mail address. When the account's rank may skip
// confirmation the address is confirmed at once; otherwise it is kept
// unconfirmed and a confirmation mail goes out. In ModeBatchAdd the mail is
// left to the caller, which sends it after the account is saved.
type EditUserEmail struct{ sealed }

func (EditUserEmail) Name() string { return "EditUserEmail" }

func (EditUserEmail) IsSatisfied(args Args) bool { return args.Has(ArgNewEmail) }

func (EditUserEmail) Prepare(ctx context.Context, call *Call) error { return loadUser(ctx, call) }

func (EditUserEmail) RequiresPrivilege(call *Call) access.Requirement {
	if call.Mode == ModeBatchAdd {
		return access.Require(access.RegisterAccount)
	}
	return access.RequireOwned(access.ChangeUserEmail, call.User.Name)
}

func (j EditUserEmail) Execute(ctx context.Context, call *Call) (any, error) {
	raw, err := call.Args.String(ArgNewEmail)
	if err != nil {
		return nil, err
	}
	email, err := call.Env.Validator.ValidateEmail(raw)
	if err != nil {
		return nil, err
	}
	user := call.User
	if email != "" && strings.EqualFold(email, user.EmailConfirmed) {
		return user, nil
	}

	previous := *user
	switch {
	case email == "":
		user.EmailConfirmed = ""
		user.EmailUnconfirmed = ""
		user.EmailToken = ""
	case call.Env.Policy.CheckRank(user.Rank, access.ChangeUserEmailNoConfirm):
		user.EmailConfirmed = email
		user.EmailUnconfirmed = ""
		user.EmailToken = ""
	default:
		user.EmailUnconfirmed = email
		user.EmailToken = call.Env.newToken()
	}

	if err := saveUser(ctx, j, call); err != nil {
		user.EmailConfirmed = previous.EmailConfirmed
		user.EmailUnconfirmed = previous.EmailUnconfirmed
		user.EmailToken = previous.EmailToken
		return nil, err
	}
	logUserChange(ctx, call, TemplateUserEmail, map[string]string{audit.FieldValue: email})
	if call.Mode == ModeNormal {
		sendConfirmation(ctx, call, user)
	}
	return user, nil
}

// ActivateUserEmail confirms a pending address using the token from the
// confirmation mail.
type ActivateUserEmail struct{ sealed }

func (ActivateUserEmail) Name() string { return "ActivateUserEmail" }

func (ActivateUserEmail) IsSatisfied(args Args) bool { return args.Has(ArgToken) }

func (ActivateUserEmail) Prepare(ctx context.Context, call *Call) error {
	if call.User != nil {
		return nil
	}
	token, err := call.Args.String(ArgToken)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return &shared.NotFoundError{Entity: "token", Key: token}
	}
	user, err := call.Env.Users.FindByEmailToken(ctx, token)
	if err != nil {
		return err
	}
	call.User = user
	return nil
}

// RequiresPrivilege lets anyone who may register confirm an address; holding
// the token is the actual proof.
func (ActivateUserEmail) RequiresPrivilege(call *Call) access.Requirement {
	return access.Require(access.RegisterAccount)
}

func (j ActivateUserEmail) Execute(ctx context.Context, call *Call) (any, error) {
	user := call.User
	if user.EmailUnconfirmed == "" {
		return nil, shared.NewValidationError("This e-mail address is already confirmed.")
	}
	pending, token := user.EmailUnconfirmed, user.EmailToken
	previous := user.EmailConfirmed
	user.EmailConfirmed = pending
	user.EmailUnconfirmed = ""
	user.EmailToken = ""
	if err := saveUser(ctx, j, call); err != nil {
		user.EmailConfirmed, user.EmailUnconfirmed, user.EmailToken = previous, pending, token
		return nil, err
	}
	logUserChange(ctx, call, TemplateUserEmailConfirm, nil)
	return user, nil
}

// EditUserAccessRank changes the rank of an account.
type EditUserAccessRank struct{ sealed }

func (EditUserAccessRank) Name() string { return "EditUserAccessRank" }

func (EditUserAccessRank) IsSatisfied(args Args) bool { return args.Has(ArgNewAccessRank) }

func (EditUserAccessRank) Prepare(ctx context.Context, call *Call) error { return loadUser(ctx, call) }

func (EditUserAccessRank) RequiresPrivilege(call *Call) access.Requirement {
	return access.Require(access.ChangeUserAccessRank)
}

func (j EditUserAccessRank) Execute(ctx context.Context, call *Call) (any, error) {
	raw, err := call.Args.String(ArgNewAccessRank)
	if err != nil {
		return nil, err
	}
	rank, err := access.ParseRank(raw)
	if err != nil || rank == access.Anonymous || rank == access.Nobody {
		return nil, shared.NewValidationError("Invalid access rank %q.", raw)
	}
	user := call.User
	previous := user.Rank
	user.Rank = rank
	if err := saveUser(ctx, j, call); err != nil {
		user.Rank = previous
		return nil, err
	}
	logUserChange(ctx, call, TemplateUserAccessRank, map[string]string{audit.FieldValue: rank.String()})
	return user, nil
}

// AcceptUserRegistration marks an account as confirmed by staff.
type AcceptUserRegistration struct{ sealed }

func (AcceptUserRegistration) Name() string { return "AcceptUserRegistration" }

func (AcceptUserRegistration) IsSatisfied(args Args) bool { return args.Has(ArgUserName) }

func (AcceptUserRegistration) Prepare(ctx context.Context, call *Call) error {
	return loadUser(ctx, call)
}

func (AcceptUserRegistration) RequiresPrivilege(call *Call) access.Requirement {
	return access.Require(access.AcceptUserRegistration)
}

func (j AcceptUserRegistration) Execute(ctx context.Context, call *Call) (any, error) {
	user := call.User
	if user.StaffConfirmed {
		return user, nil
	}
	user.StaffConfirmed = true
	if err := saveUser(ctx, j, call); err != nil {
		user.StaffConfirmed = false
		return nil, err
	}
	logUserChange(ctx, call, TemplateUserAccepted, nil)
	return user, nil
}

// ToggleUserBan bans or unbans an account.
type ToggleUserBan struct{ sealed }

func (ToggleUserBan) Name() string { return "ToggleUserBan" }

func (ToggleUserBan) IsSatisfied(args Args) bool {
	return args.Has(ArgUserName) && args.Has(ArgBanned)
}

func (ToggleUserBan) Prepare(ctx context.Context, call *Call) error { return loadUser(ctx, call) }

func (ToggleUserBan) RequiresPrivilege(call *Call) access.Requirement {
	return access.Require(access.BanUser)
}

func (j ToggleUserBan) Execute(ctx context.Context, call *Call) (any, error) {
	banned, err := call.Args.Bool(ArgBanned)
	if err != nil {
		return nil, err
	}
	user := call.User
	if banned && strings.EqualFold(user.Name, call.Identity.Name) {
		return nil, shared.NewValidationError("You cannot ban yourself.")
	}
	if user.Banned == banned {
		return user, nil
	}
	user.Banned = banned
	if err := saveUser(ctx, j, call); err != nil {
		user.Banned = !banned
		return nil, err
	}
	template := TemplateUserUnbanned
	if banned {
		template = TemplateUserBanned
	}
	logUserChange(ctx, call, template, nil)
	return user, nil
}

var (
	_ Job = AddUser{}
	_ Job = EditUserName{}
	_ Job = EditUserPassword{}
	_ Job = EditUserEmail{}
	_ Job = ActivateUserEmail{}
	_ Job = EditUserAccessRank{}
	_ Job = AcceptUserRegistration{}
	_ Job = ToggleUserBan{}
)
