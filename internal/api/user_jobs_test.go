package api

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/auth"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
)

func addUser(f *fixture, args Args) (*users.User, error) {
	result, err := f.dispatcher.RunAs(context.Background(), access.AnonymousIdentity(), AddUser{}, args, ModeNormal)
	if err != nil {
		return nil, err
	}
	return result.(*users.User), nil
}

func registration(name, password string) Args {
	return Args{ArgNewUserName: name, ArgNewPassword: password}
}

func TestAddUserFirstUserIsAdmin(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())

	first, err := addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	assert.Equal(t, "dummy", first.Name)
	assert.Equal(t, access.Admin, first.Rank)
	assert.True(t, first.StaffConfirmed)
	assert.NotEmpty(t, first.PasswordSalt)
	assert.NotEmpty(t, first.PasswordHash)

	second, err := addUser(f, registration("dummy2", "sekai"))
	require.NoError(t, err)
	assert.Equal(t, access.Registered, second.Rank)

	assert.Equal(t, 2, f.users.saves, "one save per registration")
	assert.Equal(t, []string{
		"+Anonymous registered +dummy",
		"+Anonymous registered +dummy2",
	}, f.audit.messages())
}

func TestAddUserTooShortPassword(t *testing.T) {
	rules := users.DefaultRules()
	f := newFixture(t, nil, rules)

	_, err := addUser(f, registration("dummy", strings.Repeat("s", rules.PasswordMinLength-1)))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Password must have at least"), err.Error())
	assert.Zero(t, f.users.saves)
}

func TestAddUserVeryLongPassword(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	pass := strings.Repeat("s", 10000)

	user, err := addUser(f, registration("dummy", pass))
	require.NoError(t, err)
	assert.Less(t, len(user.PasswordHash), 100)

	codec, err := auth.NewTokenCodec("remember-secret-for-tests-0123456789")
	require.NoError(t, err)
	svc := auth.NewService(f.users, codec, auth.Options{}, nil)
	_, err = svc.Authenticate(context.Background(), "dummy", pass)
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), "dummy", pass+"!")
	assert.EqualError(t, err, "Invalid password")
}

func TestAddUserDuplicateName(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())

	_, err := addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("DUMMY", "sekai"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "User with"), err.Error())

	count, err := f.users.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestAddUserAccessRankNeedsPrivilege(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())

	args := registration("dummy", "sekai")
	args[ArgNewAccessRank] = "power-user"
	_, err := addUser(f, args)
	assert.EqualError(t, err, "Insufficient privileges")
	assert.Zero(t, f.users.saves)
}

func TestAddUserAccessRankByAdmin(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)

	args := registration("helper", "sekai")
	args[ArgNewAccessRank] = "moderator"
	result, err := f.dispatcher.RunAs(context.Background(), identity("root", access.Admin), AddUser{}, args, ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, access.Moderator, result.(*users.User).Rank)
}

func TestAddUserEmailConfirmationMatrix(t *testing.T) {
	tests := []struct {
		noConfirm       string
		firstConfirmed  bool
		secondConfirmed bool
		mails           int
	}{
		{noConfirm: "admin", firstConfirmed: true, secondConfirmed: false, mails: 1},
		{noConfirm: "nobody", firstConfirmed: false, secondConfirmed: false, mails: 2},
		{noConfirm: "anonymous", firstConfirmed: true, secondConfirmed: true, mails: 0},
	}
	for _, tt := range tests {
		t.Run(tt.noConfirm, func(t *testing.T) {
			rules := users.DefaultRules()
			rules.NeedEmail = true
			f := newFixture(t, map[string]string{string(access.ChangeUserEmailNoConfirm): tt.noConfirm}, rules)
			require.Zero(t, f.mail.count())

			check := func(u *users.User, email string, confirmed bool) {
				t.Helper()
				if confirmed {
					assert.Equal(t, email, u.EmailConfirmed)
					assert.Empty(t, u.EmailUnconfirmed)
					assert.Empty(t, u.EmailToken)
				} else {
					assert.Empty(t, u.EmailConfirmed)
					assert.Equal(t, email, u.EmailUnconfirmed)
					assert.NotEmpty(t, u.EmailToken)
				}
			}

			args := registration("dummy", "sekai")
			args[ArgNewEmail] = "godzilla@whitestar.gov"
			first, err := addUser(f, args)
			require.NoError(t, err)
			check(first, "godzilla@whitestar.gov", tt.firstConfirmed)

			args = registration("dummy2", "sekai")
			args[ArgNewEmail] = "godzilla2@whitestar.gov"
			second, err := addUser(f, args)
			require.NoError(t, err)
			check(second, "godzilla2@whitestar.gov", tt.secondConfirmed)

			assert.Equal(t, tt.mails, f.mail.count())
		})
	}
}

func TestAddUserSkipsMailWhenFailing(t *testing.T) {
	rules := users.DefaultRules()
	rules.NeedEmail = true
	f := newFixture(t, map[string]string{string(access.ChangeUserEmailNoConfirm): "nobody"}, rules)

	args := registration("dummy", strings.Repeat("s", rules.PasswordMinLength-1))
	args[ArgNewEmail] = "godzilla@whitestar.gov"
	_, err := addUser(f, args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password must have at least")
	assert.Zero(t, f.mail.count())
}

func TestAddUserRequiresEmailWhenConfigured(t *testing.T) {
	rules := users.DefaultRules()
	rules.NeedEmail = true
	f := newFixture(t, nil, rules)

	_, err := addUser(f, registration("dummy", "sekai"))
	var invalid *shared.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, f.users.saves)
}

func TestAddUserPendingStaffActivation(t *testing.T) {
	rules := users.DefaultRules()
	rules.StaffActivation = true
	f := newFixture(t, nil, rules)
	ctx := context.Background()

	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	pending, err := addUser(f, registration("newbie", "sekai"))
	require.NoError(t, err)
	assert.False(t, pending.StaffConfirmed)

	_, err = f.dispatcher.RunAs(ctx, identity("newbie", access.Registered), AcceptUserRegistration{}, Args{ArgUserName: "newbie"}, ModeNormal)
	assert.EqualError(t, err, "Insufficient privileges")

	_, err = f.dispatcher.RunAs(ctx, identity("root", access.Admin), AcceptUserRegistration{}, Args{ArgUserName: "newbie"}, ModeNormal)
	require.NoError(t, err)
	assert.True(t, f.users.get(t, "newbie").StaffConfirmed)
	assert.Contains(t, f.audit.messages(), "+root accepted +newbie registration")
}

func TestEditUserEmailAndActivate(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)

	self := identity("dummy", access.Registered)
	_, err = f.dispatcher.RunAs(ctx, self, EditUserEmail{}, Args{ArgUserName: "dummy", ArgNewEmail: "dummy@example.com"}, ModeNormal)
	require.NoError(t, err)
	stored := f.users.get(t, "dummy")
	assert.Equal(t, "dummy@example.com", stored.EmailUnconfirmed)
	require.Equal(t, 1, f.mail.count())
	assert.Contains(t, f.mail.sent[0].Body, stored.EmailToken)

	_, err = f.dispatcher.RunAs(ctx, access.AnonymousIdentity(), ActivateUserEmail{}, Args{ArgToken: stored.EmailToken}, ModeNormal)
	require.NoError(t, err)
	stored = f.users.get(t, "dummy")
	assert.Equal(t, "dummy@example.com", stored.EmailConfirmed)
	assert.Empty(t, stored.EmailUnconfirmed)
	assert.Empty(t, stored.EmailToken)

	_, err = f.dispatcher.RunAs(ctx, access.AnonymousIdentity(), ActivateUserEmail{}, Args{ArgToken: "token-1"}, ModeNormal)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEditUserEmailOfOthersNeedsAdmin(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)

	args := Args{ArgUserName: "dummy", ArgNewEmail: "x@example.com"}
	_, err = f.dispatcher.RunAs(ctx, identity("mod", access.Moderator), EditUserEmail{}, args, ModeNormal)
	assert.EqualError(t, err, "Insufficient privileges")
	assert.Zero(t, f.mail.count())

	_, err = f.dispatcher.RunAs(ctx, identity("root", access.Admin), EditUserEmail{}, args, ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", f.users.get(t, "dummy").EmailUnconfirmed, "confirmation follows the target's rank")
}

func TestEditUserName(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	self := identity("dummy", access.Registered)

	_, err = f.dispatcher.RunAs(ctx, self, EditUserName{}, Args{ArgUserName: "dummy", ArgNewUserName: "root"}, ModeNormal)
	assert.EqualError(t, err, "User with this name is already registered.")

	_, err = f.dispatcher.RunAs(ctx, self, EditUserName{}, Args{ArgUserName: "dummy", ArgNewUserName: "bad name!"}, ModeNormal)
	assert.EqualError(t, err, "User name contains invalid characters.")

	_, err = f.dispatcher.RunAs(ctx, self, EditUserName{}, Args{ArgUserName: "dummy", ArgNewUserName: "smarty"}, ModeNormal)
	require.NoError(t, err)
	f.users.get(t, "smarty")
	assert.Contains(t, f.audit.messages(), "+dummy renamed +dummy to +smarty")

	_, err = f.dispatcher.RunAs(ctx, self, EditUserName{}, Args{ArgUserName: "root", ArgNewUserName: "pwned"}, ModeNormal)
	assert.EqualError(t, err, "Insufficient privileges")
}

func TestEditUserPasswordRoundTrip(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	before := f.users.get(t, "dummy")

	_, err = f.dispatcher.RunAs(ctx, identity("dummy", access.Admin), EditUserPassword{}, Args{ArgUserName: "dummy", ArgNewPassword: "sekai2"}, ModeNormal)
	require.NoError(t, err)
	after := f.users.get(t, "dummy")
	assert.NotEqual(t, before.PasswordSalt, after.PasswordSalt)
	assert.True(t, auth.VerifyPassword("sekai2", after.PasswordSalt, after.PasswordHash))
	assert.Contains(t, f.audit.messages(), "+dummy changed +dummy password")
}

func TestEditUserAccessRank(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	admin := identity("root", access.Admin)

	_, err = f.dispatcher.RunAs(ctx, admin, EditUserAccessRank{}, Args{ArgUserName: "dummy", ArgNewAccessRank: "nobody"}, ModeNormal)
	assert.EqualError(t, err, `Invalid access rank "nobody".`)

	_, err = f.dispatcher.RunAs(ctx, admin, EditUserAccessRank{}, Args{ArgUserName: "dummy", ArgNewAccessRank: "power_user"}, ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, access.PowerUser, f.users.get(t, "dummy").Rank)
	assert.Contains(t, f.audit.messages(), "+root changed +dummy access rank to power-user")

	_, err = f.dispatcher.RunAs(ctx, identity("dummy", access.PowerUser), EditUserAccessRank{}, Args{ArgUserName: "dummy", ArgNewAccessRank: "admin"}, ModeNormal)
	assert.EqualError(t, err, "Insufficient privileges")
}

func TestToggleUserBan(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)
	mod := identity("mod", access.Moderator)

	_, err = f.dispatcher.RunAs(ctx, mod, ToggleUserBan{}, Args{ArgUserName: "dummy"}, ModeNormal)
	assert.IsType(t, &shared.UnsatisfiedPreconditionError{}, err)

	_, err = f.dispatcher.RunAs(ctx, mod, ToggleUserBan{}, Args{ArgUserName: "dummy", ArgBanned: true}, ModeNormal)
	require.NoError(t, err)
	assert.True(t, f.users.get(t, "dummy").Banned)

	_, err = f.dispatcher.RunAs(ctx, mod, ToggleUserBan{}, Args{ArgUserName: "dummy", ArgBanned: "0"}, ModeNormal)
	require.NoError(t, err)
	assert.False(t, f.users.get(t, "dummy").Banned)
	assert.Equal(t, []string{"+mod banned +dummy", "+mod unbanned +dummy"}, f.audit.messages()[2:])

	_, err = f.dispatcher.RunAs(ctx, identity("root", access.Admin), ToggleUserBan{}, Args{ArgUserName: "root", ArgBanned: true}, ModeNormal)
	assert.EqualError(t, err, "You cannot ban yourself.")

	_, err = f.dispatcher.RunAs(ctx, mod, ToggleUserBan{}, Args{ArgUserName: "ghost", ArgBanned: true}, ModeNormal)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAddUserLosingFirstAccountRaceIsRegistered(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	f.users.afterCount = func() {
		_, err := addUser(f, registration("early", "sekai"))
		require.NoError(t, err)
	}

	late, err := addUser(f, registration("late", "sekai"))
	require.NoError(t, err)
	assert.Equal(t, access.Registered, late.Rank)
	assert.Equal(t, access.Admin, f.users.get(t, "early").Rank)
	assert.Equal(t, access.Registered, f.users.get(t, "late").Rank)
	assert.Equal(t, []string{
		"+Anonymous registered +early",
		"+Anonymous registered +late",
	}, f.audit.messages())
}

func TestFailedSaveLeavesTargetUntouched(t *testing.T) {
	f := newFixture(t, nil, users.DefaultRules())
	ctx := context.Background()
	_, err := addUser(f, registration("root", "sekai"))
	require.NoError(t, err)
	_, err = addUser(f, registration("dummy", "sekai"))
	require.NoError(t, err)

	boom := errors.New("connection reset")
	f.users.saveErr = boom
	root := identity("root", access.Admin)

	tests := []struct {
		job     Job
		args    Args
		prepare func(*users.User)
	}{
		{job: EditUserName{}, args: Args{ArgNewUserName: "renamed"}},
		{job: EditUserPassword{}, args: Args{ArgNewPassword: "sekai2"}},
		{job: EditUserEmail{}, args: Args{ArgNewEmail: "dummy@example.com"}},
		{job: EditUserEmail{}, args: Args{ArgNewEmail: ""}, prepare: func(u *users.User) { u.EmailConfirmed = "old@example.com" }},
		{job: ActivateUserEmail{}, args: Args{ArgToken: "pending"}, prepare: func(u *users.User) {
			u.EmailUnconfirmed = "new@example.com"
			u.EmailToken = "pending"
		}},
		{job: EditUserAccessRank{}, args: Args{ArgNewAccessRank: "moderator"}},
		{job: ToggleUserBan{}, args: Args{ArgUserName: "dummy", ArgBanned: true}},
	}
	for _, tt := range tests {
		t.Run(tt.job.Name(), func(t *testing.T) {
			target := f.users.get(t, "dummy")
			if tt.prepare != nil {
				tt.prepare(target)
			}
			before := target.Clone()

			_, err := f.dispatcher.run(ctx, root, tt.job, tt.args, ModeNormal, Target{User: target})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, before, target)
		})
	}
	assert.NotContains(t, f.audit.messages(), "+root changed +dummy password")
}
