package user

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const UserKey contextKey = "user"

var ErrNoUser = errors.New("user not found")

// CurrentUid retrieves the current user's uid from the context. Returns ErrNoUser if not present.
func CurrentUid(ctx context.Context) (string, error) {
	u, err := CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.Uid, nil
}

func CurrentUser(ctx context.Context) (User, error) {
	u, ok := ctx.Value(UserKey).(User)
	if !ok || u.Uid == "" {
		log.Trace("user not found in context")
		return User{}, ErrNoUser
	}
	return u, nil
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, UserKey, u)
}
