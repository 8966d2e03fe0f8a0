// Package cli implements the tagboard admin commands on top of the job
// dispatcher. Every command runs through the same precondition and privilege
// checks as any other caller.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/api"
	"github.com/tagboard/tagboard/internal/auth"
	"github.com/tagboard/tagboard/internal/posts"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage")

// Authenticator logs the operator in. *auth.Service satisfies it.
type Authenticator interface {
	Login(ctx context.Context, scope auth.Scope, name, password string, remember bool) (access.Identity, error)
}

// SessionOpener starts sessions. *shared.SessionManager satisfies it.
type SessionOpener interface {
	LoadID(ctx context.Context, id string) (*shared.Session, error)
}

// Runner executes commands. Each command acts in a fresh session that is
// anonymous unless --as names an account whose password checks out.
type Runner struct {
	Dispatcher *api.Dispatcher
	Sessions   SessionOpener
	Auth       Authenticator
	Posts      posts.Repository
	// In supplies the --as password when --as-password is not given.
	In  io.Reader
	Out io.Writer
}

type command struct {
	summary string
	run     func(r *Runner, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"add-user":    {summary: "register an account", run: (*Runner).addUser},
	"set-rank":    {summary: "change the access rank of an account", run: (*Runner).setRank},
	"accept-user": {summary: "confirm a pending registration", run: (*Runner).acceptUser},
	"activate":    {summary: "confirm an e-mail address with its token", run: (*Runner).activateEmail},
	"ban-user":    {summary: "ban or unban an account", run: (*Runner).banUser},
	"tag-posts":   {summary: "add or replace tags on many posts", run: (*Runner).tagPosts},
}

// Run dispatches args[0] to a command.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		r.usage()
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		r.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return cmd.run(r, ctx, args[1:])
}

func (r *Runner) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(r.Out, "usage: tagboard <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(r.Out, "  %-12s %s\n", name, commands[name].summary)
	}
}

type actor struct {
	name     *string
	password *string
}

func (r *Runner) flags(name string) (*pflag.FlagSet, actor) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(r.Out)
	as := actor{
		name:     fs.String("as", "", "act as this user (anonymous when empty)"),
		password: fs.String("as-password", "", "password of the --as user (read from stdin when empty)"),
	}
	return fs, as
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return nil
}

// session opens the session a command runs in and logs the --as user into it
// with the same account checks as any other login.
func (r *Runner) session(ctx context.Context, as actor) (*shared.Session, error) {
	sess, err := r.Sessions.LoadID(ctx, "")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(*as.name)
	if name == "" {
		return sess, nil
	}
	password := *as.password
	if password == "" {
		if password, err = r.readPassword(); err != nil {
			return nil, err
		}
	}
	if _, err := r.Auth.Login(ctx, auth.Scope{Session: sess}, name, password, false); err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Runner) readPassword() (string, error) {
	if r.In == nil {
		return "", fmt.Errorf("%w: --as-password is required", ErrUsage)
	}
	line, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("%w: --as-password is required", ErrUsage)
	}
	return password, nil
}

func (r *Runner) addUser(ctx context.Context, args []string) error {
	fs, as := r.flags("add-user")
	name := fs.String("name", "", "user name")
	password := fs.String("password", "", "password")
	email := fs.String("email", "", "e-mail address")
	rank := fs.String("rank", "", "access rank")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	jobArgs := api.Args{api.ArgNewUserName: *name, api.ArgNewPassword: *password}
	if fs.Changed("email") {
		jobArgs[api.ArgNewEmail] = *email
	}
	if fs.Changed("rank") {
		jobArgs[api.ArgNewAccessRank] = *rank
	}
	result, err := r.Dispatcher.Run(ctx, sess, api.AddUser{}, jobArgs)
	if err != nil {
		return err
	}
	user := result.(*users.User)
	fmt.Fprintf(r.Out, "registered %s (%s)\n", user.Name, user.Rank)
	return nil
}

func (r *Runner) setRank(ctx context.Context, args []string) error {
	fs, as := r.flags("set-rank")
	name := fs.String("user", "", "target user")
	rank := fs.String("rank", "", "new access rank")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	result, err := r.Dispatcher.Run(ctx, sess, api.EditUserAccessRank{}, api.Args{api.ArgUserName: *name, api.ArgNewAccessRank: *rank})
	if err != nil {
		return err
	}
	user := result.(*users.User)
	fmt.Fprintf(r.Out, "%s is now %s\n", user.Name, user.Rank)
	return nil
}

func (r *Runner) acceptUser(ctx context.Context, args []string) error {
	fs, as := r.flags("accept-user")
	name := fs.String("user", "", "target user")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	if _, err := r.Dispatcher.Run(ctx, sess, api.AcceptUserRegistration{}, api.Args{api.ArgUserName: *name}); err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "accepted %s\n", *name)
	return nil
}

func (r *Runner) activateEmail(ctx context.Context, args []string) error {
	fs, as := r.flags("activate")
	token := fs.String("token", "", "token from the confirmation mail")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	result, err := r.Dispatcher.Run(ctx, sess, api.ActivateUserEmail{}, api.Args{api.ArgToken: *token})
	if err != nil {
		return err
	}
	user := result.(*users.User)
	fmt.Fprintf(r.Out, "confirmed %s for %s\n", user.EmailConfirmed, user.Name)
	return nil
}

func (r *Runner) banUser(ctx context.Context, args []string) error {
	fs, as := r.flags("ban-user")
	name := fs.String("user", "", "target user")
	unban := fs.Bool("unban", false, "lift the ban instead")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	_, err = r.Dispatcher.Run(ctx, sess, api.ToggleUserBan{}, api.Args{api.ArgUserName: *name, api.ArgBanned: !*unban})
	if err != nil {
		return err
	}
	verb := "banned"
	if *unban {
		verb = "unbanned"
	}
	fmt.Fprintf(r.Out, "%s %s\n", verb, *name)
	return nil
}

// tagPosts edits many posts in one batch. In add mode the given tags are
// merged into each post's tags; with --replace they become the whole set.
func (r *Runner) tagPosts(ctx context.Context, args []string) error {
	fs, as := r.flags("tag-posts")
	ids := fs.Int64Slice("posts", nil, "post ids")
	tags := fs.StringSlice("tags", nil, "tag names")
	replace := fs.Bool("replace", false, "replace the tag set instead of adding")
	if err := parse(fs, args); err != nil {
		return err
	}
	if len(*ids) == 0 {
		return fmt.Errorf("%w: --posts is required", ErrUsage)
	}
	sess, err := r.session(ctx, as)
	if err != nil {
		return err
	}
	mode := api.ModeBatchAdd
	if *replace {
		mode = api.ModeBatchEdit
	}
	batch, err := r.Dispatcher.NewBatch(auth.CurrentUser(sess), mode)
	if err != nil {
		return err
	}
	for _, id := range *ids {
		names := *tags
		if !*replace {
			post, err := r.Posts.GetPost(ctx, id)
			if err != nil {
				return err
			}
			names = append(post.TagNames(), names...)
		}
		if _, err := batch.EditPostTags(ctx, id, names); err != nil {
			return fmt.Errorf("post %d: %w", id, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "tagged %d posts\n", len(*ids))
	return nil
}
