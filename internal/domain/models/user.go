package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "ROLE_USER"
	RoleModerator Role = "ROLE_MODERATOR"
	RoleAdmin     Role = "ROLE_ADMIN"
	RoleTrial     Role = "ROLE_TRIAL"
	RolePremium   Role = "ROLE_PREMIUM"
)

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Roles        RoleSet    `json:"roles"`
	IsPremium    bool       `json:"isPremium"`
	TrialStart   *time.Time `json:"trialStart,omitempty"`
	TrialEnd     *time.Time `json:"trialEnd,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// TrialActive reports whether the trial window is still open at now.
func (u *User) TrialActive(now time.Time) bool {
	return u.TrialEnd != nil && u.TrialEnd.After(now)
}

// RoleSet is stored as a comma separated column.
type RoleSet []Role

func (rs RoleSet) Has(r Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func (rs RoleSet) With(r Role) RoleSet {
	if rs.Has(r) {
		return rs
	}
	out := make(RoleSet, 0, len(rs)+1)
	out = append(out, rs...)
	return append(out, r)
}

func (rs RoleSet) Without(r Role) RoleSet {
	out := make(RoleSet, 0, len(rs))
	for _, x := range rs {
		if x != r {
			out = append(out, x)
		}
	}
	return out
}

func (rs RoleSet) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func (rs RoleSet) String() string { return strings.Join(rs.Strings(), ",") }

// ParseRoles reads the comma separated column form.
func ParseRoles(s string) RoleSet {
	var out RoleSet
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, Role(p))
		}
	}
	return out
}

// UserStatus is what /api/user/status reports.
type UserStatus struct {
	Username        string     `json:"username"`
	IsPremium       bool       `json:"isPremium"`
	TrialActive     bool       `json:"trialActive"`
	TrialExpiryDate *time.Time `json:"trialExpiryDate,omitempty"`
	Roles           []string   `json:"roles"`
}
