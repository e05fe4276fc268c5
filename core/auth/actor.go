package auth

import (
	"context"
	"fmt"

	"sharedcal/core/reqctx"
	"sharedcal/core/store"
)

// ActorResolver maps the request session to the administrator acting in it.
type ActorResolver struct {
	users  store.UsersStore
	admins store.AdminsStore
}

func NewActorResolver(users store.UsersStore, admins store.AdminsStore) *ActorResolver {
	return &ActorResolver{users: users, admins: admins}
}

// CurrentAdmin returns nil without error when the request carries no session
// or the session user holds no administrator record.
func (r *ActorResolver) CurrentAdmin(ctx context.Context) (*store.Actor, error) {
	if actor := reqctx.Actor(ctx); actor != nil {
		return actor, nil
	}
	sess := reqctx.Session(ctx)
	if sess == nil {
		return nil, nil
	}
	return r.ActorForUser(ctx, sess.UserID)
}

func (r *ActorResolver) ActorForUser(ctx context.Context, userID int64) (*store.Actor, error) {
	if r == nil || userID <= 0 {
		return nil, nil
	}
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil || !user.Active {
		return nil, nil
	}
	admin, err := r.admins.FindByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load administrator for user %d: %w", user.ID, err)
	}
	if admin == nil {
		return nil, nil
	}
	return &store.Actor{AdminID: admin.ID, UserID: user.ID, Username: user.Username}, nil
}
