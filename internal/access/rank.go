package access

import (
	"fmt"
	"strings"
)

// Rank is a totally ordered trust level.
type Rank int

// Known ranks in ascending order. Nobody sits above Admin and is only used in
// policy configuration to disable a privilege for everyone.
const (
	Anonymous Rank = iota
	Registered
	PowerUser
	Moderator
	Admin
	Nobody
)

var rankNames = map[Rank]string{
	Anonymous:  "anonymous",
	Registered: "registered",
	PowerUser:  "power-user",
	Moderator:  "moderator",
	Admin:      "admin",
	Nobody:     "nobody",
}

func (r Rank) String() string {
	if name, ok := rankNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rank(%d)", int(r))
}

// Valid reports whether r is one of the known ranks.
func (r Rank) Valid() bool {
	_, ok := rankNames[r]
	return ok
}

// ParseRank converts a configuration or argument value into a Rank.
func ParseRank(value string) (Rank, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	if normalized == "poweruser" {
		normalized = "power-user"
	}
	for rank, name := range rankNames {
		if name == normalized {
			return rank, nil
		}
	}
	return Anonymous, fmt.Errorf("access: unknown rank %q", value)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("access: invalid rank %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rank) UnmarshalText(text []byte) error {
	parsed, err := ParseRank(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
