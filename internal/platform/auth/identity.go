package auth

import (
	"context"
	"slices"
	"strings"
)

// Marketplace roles carried in the "role" custom claim.
const (
	RoleFarmer = "farmer"
	RoleBuyer  = "buyer"
	RoleAdmin  = "admin"
)

// Identity is the signed-in marketplace user taken from a verified Firebase ID token.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	Roles       []string
}

// HasRole reports whether the identity carries role, ignoring case.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.ContainsFunc(i.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// FarmerOnly reports whether the user sells but does not buy. Listing endpoints use it to
// pick the farmer view when the caller did not ask for one.
func (i *Identity) FarmerOnly() bool {
	return i.HasRole(RoleFarmer) && !i.HasRole(RoleBuyer)
}

// Name is what other parties see in notifications: the display name, else the part of
// the email before the @, else the uid.
func (i *Identity) Name() string {
	if i == nil {
		return ""
	}
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(i.Email), "@"); ok && local != "" {
		return local
	}
	return i.UID
}

type identityKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ActorID returns the authenticated user id, or "" for anonymous requests.
func ActorID(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.UID
	}
	return ""
}
