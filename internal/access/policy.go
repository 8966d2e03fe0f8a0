package access

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy maps privilege keys ("editPostTags", "editPostTags.own") to the
// minimum rank allowed to exercise them. A Policy is immutable once built.
type Policy struct {
	minRanks map[string]Rank
}

// DefaultRanks is the built-in privilege table.
func DefaultRanks() map[string]Rank {
	return map[string]Rank{
		string(RegisterAccount):                         Anonymous,
		string(ViewUsers):                               Registered,
		string(EditPostTags) + "." + ScopeOwn:           Registered,
		string(EditPostTags) + "." + ScopeAll:           PowerUser,
		string(AddPostTags):                             PowerUser,
		string(ChangeUserName) + "." + ScopeOwn:         Registered,
		string(ChangeUserName) + "." + ScopeAll:         Moderator,
		string(ChangeUserPassword) + "." + ScopeOwn:     Registered,
		string(ChangeUserPassword) + "." + ScopeAll:     Admin,
		string(ChangeUserEmail) + "." + ScopeOwn:        Registered,
		string(ChangeUserEmail) + "." + ScopeAll:        Admin,
		string(ChangeUserEmailNoConfirm):                Admin,
		string(ChangeUserAccessRank):                    Admin,
		string(AcceptUserRegistration):                  Moderator,
		string(BanUser):                                 Moderator,
	}
}

// NewPolicy builds a policy from DefaultRanks overlaid with overrides. Override
// values are rank names.
func NewPolicy(overrides map[string]string) (*Policy, error) {
	ranks := DefaultRanks()
	for key, value := range overrides {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		rank, err := ParseRank(value)
		if err != nil {
			return nil, fmt.Errorf("access: privilege %s: %w", key, err)
		}
		ranks[key] = rank
	}
	return &Policy{minRanks: ranks}, nil
}

// MustPolicy is NewPolicy for static tables known to be valid.
func MustPolicy(overrides map[string]string) *Policy {
	p, err := NewPolicy(overrides)
	if err != nil {
		panic(err)
	}
	return p
}

// MinRank resolves the minimum rank for req as seen by identity. Scoped keys
// win over the bare privilege; unknown privileges require Admin.
func (p *Policy) MinRank(identity Identity, req Requirement) Rank {
	if scope := req.scopeFor(identity); scope != "" {
		if rank, ok := p.minRanks[string(req.Privilege)+"."+scope]; ok {
			return rank
		}
	}
	if rank, ok := p.minRanks[string(req.Privilege)]; ok {
		return rank
	}
	return Admin
}

// Check reports whether identity satisfies req. It has no side effects.
// Banned identities satisfy nothing.
func (p *Policy) Check(identity Identity, req Requirement) bool {
	if p == nil || identity.Banned {
		return false
	}
	required := p.MinRank(identity, req)
	if required >= Nobody {
		return false
	}
	return identity.Rank >= required
}

// CheckRank evaluates an unscoped privilege against a bare rank.
func (p *Policy) CheckRank(rank Rank, privilege Privilege) bool {
	return p.Check(Identity{Rank: rank}, Require(privilege))
}

// Keys lists the configured privilege keys in sorted order.
func (p *Policy) Keys() []string {
	keys := make([]string, 0, len(p.minRanks))
	for key := range p.minRanks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type policyFile struct {
	Privileges map[string]string `yaml:"privileges"`
}

// LoadPolicyFile reads privilege overrides from a YAML document of the form
//
//	privileges:
//	  editPostTags.all: moderator
func LoadPolicyFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("access: read policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("access: parse policy file: %w", err)
	}
	return file.Privileges, nil
}
