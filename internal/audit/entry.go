package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Placeholder names used in message templates.
const (
	FieldUser   = "user"
	FieldPost   = "post"
	FieldTag    = "tag"
	FieldTarget = "target"
	FieldValue  = "value"
)

// Entry is an immutable audit record. Build it with NewEntry and never change
// it afterwards; Fields is copied on construction.
type Entry struct {
	ID       uuid.UUID
	Actor    string
	Subject  string
	Template string
	Fields   map[string]string
	At       time.Time
}

// NewEntry builds an entry. Actor is taken from the {user} field and Subject
// from {post} or {target}, whichever is present.
func NewEntry(template string, fields map[string]string) Entry {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	subject := copied[FieldPost]
	if subject == "" {
		subject = copied[FieldTarget]
	}
	return Entry{
		Actor:    copied[FieldUser],
		Subject:  subject,
		Template: template,
		Fields:   copied,
	}
}

// Message renders the template by replacing {name} placeholders. Unknown
// placeholders are left as is.
func (e Entry) Message() string {
	if len(e.Fields) == 0 {
		return e.Template
	}
	pairs := make([]string, 0, len(e.Fields)*2)
	for k, v := range e.Fields {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(e.Template)
}

// ReprUser formats a user name the way log messages show it.
func ReprUser(name string) string { return "+" + name }

// ReprPost formats a post id.
func ReprPost(id int64) string { return "@" + strconv.FormatInt(id, 10) }

// ReprTag formats a tag name.
func ReprTag(name string) string { return "#" + name }
