package main

import (
	// standard library
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"

	// third-party
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	// internal
	"github.com/docbridge/docbridge/internal/auth"
	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/database"
	"github.com/docbridge/docbridge/internal/docservice"
	"github.com/docbridge/docbridge/internal/editor"
	"github.com/docbridge/docbridge/internal/files"
	"github.com/docbridge/docbridge/internal/hashtoken"
	"github.com/docbridge/docbridge/internal/healthcheck"
	"github.com/docbridge/docbridge/internal/jobs"
	"github.com/docbridge/docbridge/internal/jwtsign"
	"github.com/docbridge/docbridge/internal/links"
	"github.com/docbridge/docbridge/internal/logging"
	"github.com/docbridge/docbridge/internal/settings"
	"github.com/docbridge/docbridge/internal/storage"
	"github.com/docbridge/docbridge/internal/track"
	"github.com/docbridge/docbridge/internal/version"
)

// authRequired checks if any form of authentication is configured
func authRequired() bool {
	envUsername := os.Getenv("AUTH_USERNAME")
	envPassword := os.Getenv("AUTH_PASSWORD")
	envApiKey := os.Getenv("API_KEY")
	return (envUsername != "" && envPassword != "") || envApiKey != ""
}

func main() {
	// Load .env if present
	_ = godotenv.Load()

	logging.Logf("[STARTUP] %s", version.String())

	cfg := config.Load()
	if cfg.DocumentServerURL == "" {
		log.Fatal("DOCUMENT_SERVER_URL must be set")
	}

	secret := cfg.Secret
	if secret == "" {
		// outstanding editor links will not survive a restart
		buf := make([]byte, 32)
		rand.Read(buf)
		secret = hex.EncodeToString(buf)
		logging.Logf("[STARTUP] SECRET not set, using an ephemeral token secret")
	}
	codec, err := hashtoken.NewCodec(secret)
	if err != nil {
		log.Fatalf("failed to initialize token codec: %v", err)
	}

	signer := jwtsign.New(cfg.DocumentServerSecret, cfg.JWTLeeway)
	if signer.Enabled() {
		logging.Logf("[STARTUP] Document server request signing enabled (header: %s)", cfg.JWTHeader)
	} else {
		logging.Logf("[STARTUP] Document server request signing disabled")
	}

	db, err := database.Initialize(database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	ctx := context.Background()
	backend, err := storage.New(ctx, storage.ConfigFromEnv())
	if err != nil {
		log.Fatalf("failed to initialize storage: %v", err)
	}

	fileSvc := files.NewService(db, backend)
	client := docservice.NewClient(cfg, signer)
	linkBuilder := links.NewBuilder(codec, cfg)
	jobStore := jobs.NewStore()

	trackHandler := track.NewHandler(codec, signer, fileSvc, client, backend, cfg)
	editorHandler := editor.NewHandler(fileSvc, linkBuilder, signer, client, jobStore, cfg)
	filesHandler := files.NewHandler(fileSvc)

	monitor := healthcheck.NewMonitor(client, cfg.HealthInterval)
	go monitor.Run(ctx)
	settingsHandler := settings.NewHandler(cfg, monitor)

	if mode, ok := os.LookupEnv("GIN_MODE"); ok {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// Auth endpoints (always available)
	router.POST("/api/auth/login", auth.LoginHandler)
	router.POST("/api/auth/logout", auth.LogoutHandler)
	router.GET("/api/auth/check", auth.CheckAuthHandler)

	// Document server callbacks: authenticated by hash token (+ JWT when
	// signing is enabled), with an optional browser session on top.
	editorGroup := router.Group("/editor")
	editorGroup.Use(auth.OptionalMiddleware())
	editorGroup.GET("/download", trackHandler.Download)
	editorGroup.GET("/direct", trackHandler.Direct)
	editorGroup.GET("/empty", trackHandler.Empty)
	editorGroup.POST("/track", trackHandler.Track)

	// Protected API endpoints (require auth if configured)
	protected := router.Group("/api")
	if authRequired() {
		protected.Use(auth.Middleware())
	} else {
		protected.Use(auth.OptionalMiddleware())
	}

	protected.GET("/editor/config", editorHandler.Config)
	protected.POST("/editor/convert", editorHandler.Convert)
	protected.GET("/editor/convert/:id", editorHandler.ConvertStatus)

	protected.GET("/files", filesHandler.List)
	protected.POST("/files", filesHandler.Upload)
	protected.GET("/files/:id/versions", filesHandler.Versions)
	protected.POST("/shares", filesHandler.CreateShare)
	protected.DELETE("/shares/:token", filesHandler.DeleteShare)

	protected.GET("/settings", settingsHandler.Get)
	protected.POST("/settings/check", settingsHandler.Check)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	logging.Logf("[STARTUP] Listening on :%s (document server: %s)", port, cfg.DocumentServerURL)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
