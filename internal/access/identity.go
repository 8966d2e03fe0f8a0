package access

// AnonymousName is the display name of the anonymous identity.
const AnonymousName = "Anonymous"

// Identity is the acting principal of a request. It is passed by value and
// replaced, never mutated, when the session changes.
type Identity struct {
	Name           string `json:"name"`
	Rank           Rank   `json:"rank"`
	Banned         bool   `json:"banned,omitempty"`
	StaffConfirmed bool   `json:"staff_confirmed,omitempty"`
	EmailConfirmed bool   `json:"email_confirmed,omitempty"`
}

// AnonymousIdentity returns a freshly built anonymous identity. Callers may
// modify the result freely; nothing is shared between calls.
func AnonymousIdentity() Identity {
	return Identity{Name: AnonymousName, Rank: Anonymous}
}

// IsAnonymous reports whether the identity is not logged in.
func (i Identity) IsAnonymous() bool {
	return i.Rank == Anonymous
}
