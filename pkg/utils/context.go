package utils

import (
	"context"

	"github.com/google/uuid"
)

type callerKey struct{}

// caller is the authenticated principal resolved from the bearer token.
type caller struct {
	id   uuid.UUID
	role string
}

func SetUserContext(ctx context.Context, userID uuid.UUID, role string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller{id: userID, role: role})
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	c, ok := ctx.Value(callerKey{}).(caller)
	if !ok || c.id == uuid.Nil {
		return uuid.Nil, false
	}
	return c.id, true
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(callerKey{}).(caller)
	if !ok {
		return "", false
	}
	return c.role, true
}
