package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"petadopt/internal/domain/repository"
	"petadopt/internal/infrastructure/firebase"
	"petadopt/pkg/errors"
)

const healthCheckTimeout = 5 * time.Second

type HealthHandler struct {
	store        repository.DocumentStore
	storeBackend string
	firebaseAuth *firebase.FirebaseAuthClient
}

// NewHealthHandler takes a nil firebaseAuth when Firebase is not configured.
func NewHealthHandler(store repository.DocumentStore, storeBackend string, firebaseAuth *firebase.FirebaseAuthClient) *HealthHandler {
	return &HealthHandler{
		store:        store,
		storeBackend: storeBackend,
		firebaseAuth: firebaseAuth,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "Server is running",
		"store":  h.storeBackend,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// CheckStoreHealth reads a document that is not expected to exist; NotFound
// proves the store answered.
func (h *HealthHandler) CheckStoreHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	_, err := h.store.Get(ctx, "_health", "ping")
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Document store unreachable",
			"store":  h.storeBackend,
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Document store reachable",
		"store":  h.storeBackend,
	})
}

func (h *HealthHandler) CheckFirebaseHealth(c echo.Context) error {
	if h.firebaseAuth == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Firebase Auth not configured",
		})
	}

	err := h.firebaseAuth.TestConnection(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status": "Firebase Auth connection failed",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Firebase Auth connected successfully",
	})
}
