package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"petadopt/internal/adapter/api"
	"petadopt/internal/adapter/api/handler"
	apimiddleware "petadopt/internal/adapter/api/middleware"
	"petadopt/internal/adapter/api/router"
	"petadopt/internal/adapter/repository"
	"petadopt/internal/domain/entity"
	domainrepo "petadopt/internal/domain/repository"
	"petadopt/internal/infrastructure/firebase"
	"petadopt/internal/infrastructure/ratelimit"
	"petadopt/internal/infrastructure/websocket"
	"petadopt/internal/usecase"
	"petadopt/pkg/config"
	"petadopt/pkg/logger"
	"petadopt/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Configure(os.Stdout, cfg.Environment, cfg.LogLevel)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	var firebaseAuthClient *firebase.FirebaseAuthClient
	var store domainrepo.DocumentStore

	if cfg.FirebaseProject != "" {
		opt := credentials(cfg)

		firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt...)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Firebase")
		}

		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Firebase Auth")
		}
		firebaseAuthClient = firebase.NewFirebaseAuthClient(authClient)

		if cfg.StoreBackend == config.StoreBackendFirestore {
			firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt...)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create Firestore client")
			}
			defer firestoreClient.Close()
			store = repository.NewFirestoreDocumentStore(firestoreClient)
		}
	} else if cfg.StoreBackend == config.StoreBackendFirestore {
		log.Fatal().Msg("FIREBASE_PROJECT_ID is required for the firestore store backend")
	}

	if store == nil {
		log.Warn().Msg("Using in-memory document store; data is lost on restart")
		store = repository.NewMemoryDocumentStore(clk)
	}

	verifier, err := firebase.NewTokenVerifier(firebaseAuthClient, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Set FIREBASE_PROJECT_ID, or ENVIRONMENT=development for local dev tokens")
	}
	if _, ok := verifier.(*firebase.DevTokenVerifier); ok {
		log.Warn().Msg("Development tokens are accepted")
	}

	messagingUseCase := usecase.NewMessagingUseCase(store)

	limiter := ratelimit.NewRateLimiter(clk)
	limiter.StartCleanupRoutine(ctx.Done())

	sessionOptions := usecase.SessionOptions{
		ReadReceiptThrottle:  cfg.ReadReceiptThrottle,
		UnreadDebounce:       cfg.UnreadDebounce,
		DeselectRefreshDelay: cfg.DeselectRefreshDelay,
	}
	wsManager := websocket.NewManager(func(user *entity.User, onUpdate func()) *usecase.MessagingSession {
		opts := sessionOptions
		opts.OnUpdate = onUpdate
		return usecase.NewMessagingSession(user, messagingUseCase, clk, opts)
	}, limiter)
	wsManager.Start(ctx)

	handler.Setup(
		handler.NewMessagingHandler(messagingUseCase),
		handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins),
		handler.NewHealthHandler(store, cfg.StoreBackend, firebaseAuthClient),
		handler.NewDevTokenHandler(firebaseAuthClient),
	)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = response.ErrorHandler

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(apimiddleware.Metrics())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)

	router.Setup(e, authMiddleware, limiter)
	router.SetupDevRouter(e, cfg.Environment)

	go func() {
		log.Info().Str("port", cfg.ServerPort).Str("store", cfg.StoreBackend).Msg("Starting server")
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

// credentials prefers an inline service account, then a key file, then
// application default credentials.
func credentials(cfg *config.Config) []option.ClientOption {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}
	}

	if cfg.FirebaseServiceAccountPath != "" {
		if _, err := os.Stat(cfg.FirebaseServiceAccountPath); os.IsNotExist(err) {
			logger.L().Fatal().Str("path", cfg.FirebaseServiceAccountPath).Msg("Service account file does not exist")
		}
		logger.Info("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseServiceAccountPath)}
	}

	logger.Info("Using application default credentials")
	return nil
}
