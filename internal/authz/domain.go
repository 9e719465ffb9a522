// Package authz authenticates API clients by key and scopes what they may
// report on. Keys are presented as "keyID.secret"; secrets are stored
// bcrypt-hashed and grants bind a key to entities, organizations or
// everything.
package authz

import (
	"context"
	"errors"
)

// ErrInvalidKey covers unknown, malformed, inactive and mismatched keys. The
// caller cannot tell which, on purpose.
var ErrInvalidKey = errors.New("authz: invalid api key")

// GrantScope enumerates what a grant covers.
type GrantScope string

const (
	GrantEntity       GrantScope = "entity"
	GrantOrganization GrantScope = "organization"
	GrantAll          GrantScope = "all"
)

// Grant allows access to one target. TargetID is zero for GrantAll.
type Grant struct {
	Scope    GrantScope `json:"scope"`
	TargetID int64      `json:"targetId,omitempty"`
}

// Principal is an authenticated API client.
type Principal struct {
	KeyID  string  `json:"keyId"`
	Name   string  `json:"name"`
	Grants []Grant `json:"grants"`
}

// CanAccessEntity reports whether the principal may read the entity.
func (p *Principal) CanAccessEntity(id int64) bool {
	if p == nil {
		return false
	}
	for _, g := range p.Grants {
		if g.Scope == GrantAll {
			return true
		}
		if g.Scope == GrantEntity && g.TargetID == id {
			return true
		}
	}
	return false
}

// HasFullAccess reports whether any grant covers everything. Job admin
// endpoints fan out across entities and organizations, so they require it.
func (p *Principal) HasFullAccess() bool {
	if p == nil {
		return false
	}
	for _, g := range p.Grants {
		if g.Scope == GrantAll {
			return true
		}
	}
	return false
}

// CanAccessOrganization reports whether the principal may read the
// organization's consolidated data.
func (p *Principal) CanAccessOrganization(id int64) bool {
	if p == nil {
		return false
	}
	for _, g := range p.Grants {
		if g.Scope == GrantAll {
			return true
		}
		if g.Scope == GrantOrganization && g.TargetID == id {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the authenticated principal, or nil outside an
// authenticated request.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
