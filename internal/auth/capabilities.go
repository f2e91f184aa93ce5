package auth

import "context"

// Capabilities is computed once per request from the caller's role.
type Capabilities struct {
	CanBookAsPatient       bool
	CanManageSlotsAsDoctor bool
}

func CapabilitiesFor(role Role) Capabilities {
	return Capabilities{
		CanBookAsPatient:       role == RolePatient,
		CanManageSlotsAsDoctor: role == RoleDoctor,
	}
}

type contextKey string

const principalKey contextKey = "principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
