package firebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petadopt/internal/domain/entity"
	"petadopt/pkg/errors"
)

type staticVerifier struct {
	user *entity.User
}

func (v staticVerifier) VerifyToken(ctx context.Context, token string) (*entity.User, error) {
	return v.user, nil
}

func TestParseDevToken(t *testing.T) {
	user, err := ParseDevToken("dev:shelter-42:Happy Paws:shelter")
	require.NoError(t, err)
	assert.Equal(t, "shelter-42", user.ID)
	assert.Equal(t, "Happy Paws", user.DisplayName)
	assert.Equal(t, entity.RoleShelter, user.Role)

	user, err = ParseDevToken("dev:alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, entity.RoleUser, user.Role)

	user, err = ParseDevToken("dev:bob:Bob:wizard")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleUser, user.Role)

	_, err = ParseDevToken("dev:")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestGenerateDevTokenRoundTrip(t *testing.T) {
	in := &entity.User{ID: "vet-7", DisplayName: "Dr. Lee", Role: entity.RoleProfessional}

	out, err := ParseDevToken(GenerateDevToken(in))

	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDevTokenVerifier_DelegatesOtherTokens(t *testing.T) {
	ctx := context.Background()
	firebaseUser := &entity.User{ID: "from-firebase"}

	v := NewDevTokenVerifier(staticVerifier{user: firebaseUser})
	user, err := v.VerifyToken(ctx, "eyJhbGciOi...")
	require.NoError(t, err)
	assert.Same(t, firebaseUser, user)

	user, err = v.VerifyToken(ctx, "dev:alice:Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)

	_, err = NewDevTokenVerifier(nil).VerifyToken(ctx, "eyJhbGciOi...")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestUserFromClaims(t *testing.T) {
	user := UserFromClaims("uid-1", map[string]interface{}{
		ClaimName:    "Alice",
		ClaimRole:    entity.RoleAdmin,
		ClaimPicture: "https://example.com/a.png",
		"email":      "alice@example.com",
	})

	assert.Equal(t, &entity.User{
		ID:          "uid-1",
		DisplayName: "Alice",
		Role:        entity.RoleAdmin,
		AvatarURL:   "https://example.com/a.png",
	}, user)

	assert.Equal(t, entity.RoleUser, UserFromClaims("uid-2", nil).Role)
}

func TestNewTokenVerifier(t *testing.T) {
	ctx := context.Background()

	_, err := NewTokenVerifier(nil, false)
	assert.True(t, errors.Is(err, errors.CodeInternal))

	v, err := NewTokenVerifier(nil, true)
	require.NoError(t, err)
	user, err := v.VerifyToken(ctx, "dev:alice:Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)

	firebaseClient := NewFirebaseAuthClient(nil)
	v, err = NewTokenVerifier(firebaseClient, true)
	require.NoError(t, err)
	assert.Same(t, firebaseClient, v)
	_, isDev := v.(*DevTokenVerifier)
	assert.False(t, isDev, "dev tokens must not be accepted next to Firebase")
}
