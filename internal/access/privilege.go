package access

// Privilege names a capability. Values match the configuration keys.
type Privilege string

// Known privileges.
const (
	RegisterAccount          Privilege = "registerAccount"
	ViewUsers                Privilege = "viewUsers"
	EditPostTags             Privilege = "editPostTags"
	AddPostTags              Privilege = "addPostTags"
	ChangeUserName           Privilege = "changeUserName"
	ChangeUserPassword       Privilege = "changeUserPassword"
	ChangeUserEmail          Privilege = "changeUserEmail"
	ChangeUserEmailNoConfirm Privilege = "changeUserEmailNoConfirm"
	ChangeUserAccessRank     Privilege = "changeUserAccessRank"
	AcceptUserRegistration   Privilege = "acceptUserRegistration"
	BanUser                  Privilege = "banUser"
)

// Scope sub-keys used when a requirement names an owner.
const (
	ScopeOwn = "own"
	ScopeAll = "all"
)

// Requirement is a privilege evaluated against an identity. Owner, when set,
// is the name of the user owning the target entity; acting on your own
// content resolves to the "own" scope, everything else to "all".
type Requirement struct {
	Privilege Privilege
	Owner     string
}

// Require builds an unscoped requirement.
func Require(p Privilege) Requirement {
	return Requirement{Privilege: p}
}

// RequireOwned builds a requirement scoped by the owner of the target.
func RequireOwned(p Privilege, owner string) Requirement {
	return Requirement{Privilege: p, Owner: owner}
}

// scopeFor resolves the sub-key for identity. Unscoped requirements return "".
func (r Requirement) scopeFor(identity Identity) string {
	if r.Owner == "" {
		return ""
	}
	if !identity.IsAnonymous() && identity.Name == r.Owner {
		return ScopeOwn
	}
	return ScopeAll
}
