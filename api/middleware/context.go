package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

type contextKey string

const (
	ctxPrincipal contextKey = "principal"
	ctxAccessID  contextKey = "access_id"
)

// PrincipalFromContext returns the authenticated caller, or a zero Principal.
func PrincipalFromContext(ctx context.Context) pkgAuth.Principal {
	if ctx == nil {
		return pkgAuth.Principal{}
	}
	if v, ok := ctx.Value(ctxPrincipal).(pkgAuth.Principal); ok {
		return v
	}
	return pkgAuth.Principal{}
}

func UserIDFromContext(ctx context.Context) string {
	principal := PrincipalFromContext(ctx)
	if principal.UserID == uuid.Nil {
		return ""
	}
	return principal.UserID.String()
}

func RoleFromContext(ctx context.Context) enums.Role {
	return PrincipalFromContext(ctx).Role
}

// AccessIDFromContext returns the jti of the bearer token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal injects the caller into the context.
func WithPrincipal(ctx context.Context, principal pkgAuth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// WithAccessID injects the token id into the context for logout.
func WithAccessID(ctx context.Context, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccessID, accessID)
}
