package test_utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/klokku/fintrack/pkg/user"
)

// NewTestUser returns a user with a random uid so tests never share ledger state.
func NewTestUser() user.User {
	return user.User{Uid: "test-" + uuid.NewString()}
}

func ContextWithUser(ctx context.Context, u user.User) context.Context {
	return user.WithUser(ctx, u)
}
