package firebase

import (
	"context"
	"strings"

	"petadopt/internal/domain/entity"
	"petadopt/internal/usecase"
	"petadopt/pkg/errors"
)

// DevTokenPrefix marks tokens minted for local development:
// "dev:<uid>[:<display name>[:<role>]]".
const DevTokenPrefix = "dev:"

// DevTokenVerifier accepts development tokens and hands every other token to
// next. Install it through NewTokenVerifier only.
type DevTokenVerifier struct {
	next usecase.TokenVerifier
}

func NewDevTokenVerifier(next usecase.TokenVerifier) *DevTokenVerifier {
	return &DevTokenVerifier{
		next: next,
	}
}

func (v *DevTokenVerifier) VerifyToken(ctx context.Context, token string) (*entity.User, error) {
	if strings.HasPrefix(token, DevTokenPrefix) {
		return ParseDevToken(token)
	}
	if v.next == nil {
		return nil, errors.Unauthorized("Invalid or expired token", nil)
	}
	return v.next.VerifyToken(ctx, token)
}

// NewTokenVerifier picks the server's verifier. A configured Firebase client
// is always the only verifier. Development tokens are accepted only when
// allowDevTokens is set and there is no Firebase client.
func NewTokenVerifier(authClient *FirebaseAuthClient, allowDevTokens bool) (usecase.TokenVerifier, error) {
	if authClient != nil {
		return authClient, nil
	}
	if allowDevTokens {
		return NewDevTokenVerifier(nil), nil
	}
	return nil, errors.Internal("No token verifier configured", nil)
}

func ParseDevToken(token string) (*entity.User, error) {
	parts := strings.SplitN(strings.TrimPrefix(token, DevTokenPrefix), ":", 3)
	if parts[0] == "" {
		return nil, errors.Unauthorized("Invalid development token", nil)
	}

	claims := map[string]interface{}{}
	if len(parts) > 1 {
		claims[ClaimName] = parts[1]
	}
	if len(parts) > 2 {
		claims[ClaimRole] = parts[2]
	}
	return UserFromClaims(parts[0], claims), nil
}

// GenerateDevToken is the inverse of ParseDevToken.
func GenerateDevToken(user *entity.User) string {
	return DevTokenPrefix + user.ID + ":" + user.DisplayName + ":" + user.RoleOrDefault()
}
