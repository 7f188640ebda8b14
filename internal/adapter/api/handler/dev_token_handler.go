package handler

import (
	"github.com/labstack/echo/v4"

	"petadopt/internal/infrastructure/firebase"
	"petadopt/pkg/errors"
	"petadopt/pkg/response"
)

type DevTokenHandler struct {
	firebaseAuth *firebase.FirebaseAuthClient
}

func NewDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient) *DevTokenHandler {
	return &DevTokenHandler{
		firebaseAuth: firebaseAuth,
	}
}

// GenerateToken mints a token for ?uid=&name=&role=. With Firebase configured
// it is a Firebase custom token to exchange for an ID token; otherwise it is a
// development bearer token.
func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	uid := c.QueryParam("uid")
	if uid == "" {
		return response.Error(c, errors.BadRequest("uid is required", nil))
	}

	user := firebase.UserFromClaims(uid, map[string]interface{}{
		firebase.ClaimName: c.QueryParam("name"),
		firebase.ClaimRole: c.QueryParam("role"),
	})

	result := map[string]interface{}{
		"user": user,
	}

	if h.firebaseAuth == nil {
		result["token"] = firebase.GenerateDevToken(user)
		return response.Success(c, result)
	}

	customToken, err := h.firebaseAuth.GenerateToken(c.Request().Context(), uid)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to create custom token", err))
	}
	result["custom_token"] = customToken

	return response.Success(c, result)
}
