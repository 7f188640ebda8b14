package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"petadopt/internal/domain/entity"
	"petadopt/pkg/errors"
	"petadopt/pkg/logger"
)

// Custom claims carried by marketplace ID tokens.
const (
	ClaimName    = "name"
	ClaimRole    = "role"
	ClaimPicture = "picture"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

// VerifyToken checks a Firebase ID token and returns the identity it carries.
// When the token has no display name the user record is consulted.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (*entity.User, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}

	user := UserFromClaims(result.UID, result.Claims)
	if user.DisplayName == "" {
		record, err := f.client.GetUser(ctx, result.UID)
		if err != nil {
			logger.Warn("VerifyToken: Failed to load user record %s: %v", result.UID, err)
			return user, nil
		}
		user.DisplayName = record.DisplayName
		if user.AvatarURL == "" {
			user.AvatarURL = record.PhotoURL
		}
	}

	return user, nil
}

func (f *FirebaseAuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	token, err := f.client.CustomToken(ctx, uid)
	if err != nil {
		return "", err
	}

	return token, nil
}

// TestConnection performs a cheap authenticated call against Firebase Auth.
func (f *FirebaseAuthClient) TestConnection(ctx context.Context) error {
	iter := f.client.Users(ctx, "")
	_, err := iter.Next()
	if err != nil && err != iterator.Done {
		return err
	}

	return nil
}

// UserFromClaims builds a session identity from ID token claims.
func UserFromClaims(uid string, claims map[string]interface{}) *entity.User {
	user := &entity.User{ID: uid, Role: entity.RoleUser}

	if name, ok := claims[ClaimName].(string); ok {
		user.DisplayName = name
	}
	if role, ok := claims[ClaimRole].(string); ok && isKnownRole(role) {
		user.Role = role
	}
	if picture, ok := claims[ClaimPicture].(string); ok {
		user.AvatarURL = picture
	}

	return user
}

func isKnownRole(role string) bool {
	switch role {
	case entity.RoleUser, entity.RoleShelter, entity.RoleProfessional, entity.RoleAdmin:
		return true
	}
	return false
}
