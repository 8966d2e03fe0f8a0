package api

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/mail"
	"github.com/tagboard/tagboard/internal/posts"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
	_ "github.com/tagboard/tagboard/testing"
)

type memUsers struct {
	mu      sync.Mutex
	byID    map[int64]*users.User
	nextID  int64
	saves   int
	saveErr error
	// afterCount runs once, right after the next Count returns its result.
	afterCount func()
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[int64]*users.User{}}
}

func (m *memUsers) find(match func(*users.User) bool, key string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.byID[id]; ok && match(u) {
			return u.Clone(), nil
		}
	}
	return nil, &shared.NotFoundError{Entity: "user", Key: key}
}

func (m *memUsers) FindByName(ctx context.Context, name string) (*users.User, error) {
	return m.find(func(u *users.User) bool { return strings.EqualFold(u.Name, name) }, name)
}

func (m *memUsers) FindByNameOrEmail(ctx context.Context, identifier string) (*users.User, error) {
	if u, err := m.FindByName(ctx, identifier); err == nil {
		return u, nil
	}
	return m.find(func(u *users.User) bool {
		return u.EmailConfirmed != "" && strings.EqualFold(u.EmailConfirmed, identifier)
	}, identifier)
}

func (m *memUsers) FindByEmailToken(ctx context.Context, token string) (*users.User, error) {
	return m.find(func(u *users.User) bool { return u.EmailToken == token }, token)
}

func (m *memUsers) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	n := int64(len(m.byID))
	hook := m.afterCount
	m.afterCount = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return n, nil
}

func (m *memUsers) Save(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(user)
}

func (m *memUsers) SaveFirst(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byID) > 0 {
		return users.ErrNotFirst
	}
	return m.save(user)
}

func (m *memUsers) save(user *users.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	for id, other := range m.byID {
		if id != user.ID && strings.EqualFold(other.Name, user.Name) {
			return users.ErrDuplicateName
		}
	}
	if user.IsNew() {
		m.nextID++
		user.ID = m.nextID
	}
	m.byID[user.ID] = user.Clone()
	m.saves++
	return nil
}

func (m *memUsers) get(t *testing.T, name string) *users.User {
	t.Helper()
	u, err := m.FindByName(context.Background(), name)
	require.NoError(t, err)
	return u
}

type memPosts struct {
	mu        sync.Mutex
	posts     map[int64]*posts.Post
	tags      map[string]posts.Tag
	nextTagID int64
	saves     map[int64]int
	sweeps    int
}

func newMemPosts() *memPosts {
	return &memPosts{posts: map[int64]*posts.Post{}, tags: map[string]posts.Tag{}, saves: map[int64]int{}}
}

func (m *memPosts) seed(t *testing.T, id int64, uploader string, tagNames ...string) {
	t.Helper()
	tags, err := m.SpawnTags(context.Background(), tagNames)
	require.NoError(t, err)
	post := &posts.Post{ID: id, UploaderName: uploader}
	post.SetTags(tags)
	m.mu.Lock()
	m.posts[id] = post
	m.mu.Unlock()
}

func (m *memPosts) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return nil, &shared.NotFoundError{Entity: "post", Key: strconv.FormatInt(id, 10)}
	}
	return post.Clone(), nil
}

// SavePost resolves the tags by name again, like the PostgreSQL repository,
// so tags swept after SpawnTags come back with new ids.
func (m *memPosts) SavePost(ctx context.Context, post *posts.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]posts.Tag, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tags = append(tags, m.spawn(tag.Name))
	}
	post.Tags = tags
	m.posts[post.ID] = post.Clone()
	m.saves[post.ID]++
	return nil
}

func (m *memPosts) SpawnTags(ctx context.Context, names []string) ([]posts.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]posts.Tag, 0, len(names))
	for _, name := range names {
		out = append(out, m.spawn(name))
	}
	return out, nil
}

func (m *memPosts) spawn(name string) posts.Tag {
	key := posts.TagKey(name)
	tag, ok := m.tags[key]
	if !ok {
		m.nextTagID++
		tag = posts.Tag{ID: m.nextTagID, Name: name}
		m.tags[key] = tag
	}
	return tag
}

func (m *memPosts) RemoveUnusedTags(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	used := map[int64]bool{}
	for _, post := range m.posts {
		for _, tag := range post.Tags {
			used[tag.ID] = true
		}
	}
	var removed int64
	for key, tag := range m.tags {
		if !used[tag.ID] {
			delete(m.tags, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memPosts) tagNames(id int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[id].TagNames()
}

func (m *memPosts) hasTag(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tags[posts.TagKey(name)]
	return ok
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Log(ctx context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Message())
	}
	return out
}

type countingMail struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (c *countingMail) Send(ctx context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *countingMail) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fixture struct {
	users      *memUsers
	posts      *memPosts
	audit      *recordingAudit
	mail       *countingMail
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, privileges map[string]string, rules users.Rules) *fixture {
	t.Helper()
	policy, err := access.NewPolicy(privileges)
	require.NoError(t, err)
	validator, err := users.NewValidator(rules)
	require.NoError(t, err)
	f := &fixture{users: newMemUsers(), posts: newMemPosts(), audit: &recordingAudit{}, mail: &countingMail{}}
	tokens := 0
	env := &Env{
		Policy:    policy,
		Users:     f.users,
		Posts:     f.posts,
		Validator: validator,
		Audit:     f.audit,
		Mail:      f.mail,
		Templates: mail.Templates{SiteName: "test", BaseURL: "http://localhost"},
		Now:       func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewToken: func() string {
			tokens++
			return "token-" + strconv.Itoa(tokens)
		},
	}
	f.dispatcher = NewDispatcher(env, nil, nil)
	return f
}

func identity(name string, rank access.Rank) access.Identity {
	return access.Identity{Name: name, Rank: rank}
}

type mapSession map[string]string

func (s mapSession) Get(key string) string { return s[key] }
func (s mapSession) Set(key, value string) { s[key] = value }
func (s mapSession) Delete(key string)     { delete(s, key) }
