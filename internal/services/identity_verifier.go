package services

import (
	"context"

	"tokoorder/internal/models"
	"tokoorder/internal/resilience"
)

const (
	userStatusActive = "ACTIVE"
	unknownUserName  = "unknown user"
)

// UserDirectory is the identity service as seen by the order service.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (models.UserView, error)
}

// IdentityVerifier checks that a user exists and may place orders.
type IdentityVerifier struct {
	users  UserDirectory
	caller *resilience.Caller
}

// NewIdentityVerifier creates an IdentityVerifier guarded by caller.
func NewIdentityVerifier(users UserDirectory, caller *resilience.Caller) *IdentityVerifier {
	return &IdentityVerifier{users: users, caller: caller}
}

// VerifyUser fetches the user on every call. When the lookup degrades, the returned
// view has Available=false and only UserID is meaningful.
func (v *IdentityVerifier) VerifyUser(ctx context.Context, userID string) models.RemoteUserView {
	degraded := models.RemoteUserView{UserID: userID, Name: unknownUserName}
	res := resilience.Do(ctx, v.caller, resilience.Read, "getUser",
		func(ctx context.Context) (models.RemoteUserView, error) {
			user, err := v.users.GetUser(ctx, userID)
			if err != nil {
				return models.RemoteUserView{}, err
			}
			return models.RemoteUserView{
				UserID:    user.UserID,
				Name:      user.Name,
				Email:     user.Email,
				Eligible:  user.Status == userStatusActive,
				Available: true,
			}, nil
		}, degraded)
	return res.Value
}
