package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"honestai/internal/api"
	"honestai/internal/auth"
	"honestai/internal/blob"
	"honestai/internal/config"
	"honestai/internal/redis"
	"honestai/internal/service/account"
	"honestai/internal/service/ai"
	"honestai/internal/service/analysis"
	"honestai/internal/service/media"
	"honestai/internal/storage"
	"honestai/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HonestAI server",
	Long:  `Apply database migrations and start the HTTP API.`,
	Example: `honestai serve --config config.yaml
honestai serve -c /path/to/config.yaml --log-level debug
`,
	Run: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyLogLevel(cfg.Log.Level)
	if log.GetLevel() != log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close() //nolint: errcheck
	if err := storage.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	tokens, err := newTokenService(cfg.Auth)
	if err != nil {
		log.Fatalf("failed to create token service: %v", err)
	}
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close() //nolint: errcheck
		tokens.UseRevocationStore(rdb)
	} else {
		log.Warn("redis disabled, logout will not revoke tokens")
	}

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open blob storage: %v", err)
	}
	transcriber, err := ai.NewTranscriber(cfg.Inference.Transcriber)
	if err != nil {
		log.Fatalf("failed to create transcriber: %v", err)
	}
	scorer, err := ai.NewScorer(ctx, cfg.Inference.Scorer)
	if err != nil {
		log.Fatalf("failed to create scorer: %v", err)
	}
	faces, err := ai.NewFaceDetector(cfg.Inference.FaceDetector)
	if err != nil {
		log.Fatalf("failed to create face detector: %v", err)
	}

	accounts := account.NewService(db, cfg.Auth.BcryptCost)
	mediaSvc := media.NewService(db, blobs, cfg.Storage.MaxUploadBytes)
	orchestrator := analysis.NewOrchestrator(mediaSvc, transcriber, scorer, faces, cfg.Inference.VideoExtensions)
	dispatcher := worker.NewDispatcher(cfg.Worker, orchestrator)

	handler := api.NewHandler(api.Deps{
		Accounts:       accounts,
		Tokens:         tokens,
		Resolver:       auth.NewResolver(tokens, accounts),
		Media:          mediaSvc,
		Analysis:       worker.NewQueuedRunner(dispatcher),
		DB:             db,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.WithCORS(api.NewRouter(handler), cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting API server",
		"listen", cfg.Server.Address,
		"storage", cfg.Storage.Backend,
		"max_upload", humanize.IBytes(uint64(cfg.Storage.MaxUploadBytes)),
		"workers", cfg.Worker.MaxWorkers,
	)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	if err := serveUntil(srv, c); err != nil {
		log.Error("API server error, shutting down", "error", err)
	}
	dispatcher.Stop()
	cancel()
}

// serveUntil runs srv until a signal arrives on stop or the listener fails,
// then shuts it down. It returns the listener error, if any.
func serveUntil(srv *http.Server, stop <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var err error
	select {
	case <-stop:
		log.Info("shutting down gracefully...")
	case err = <-serveErr:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
		log.Error("server shutdown", "error", shutdownErr)
	}
	return err
}

// newTokenService falls back to a random signing key, which invalidates all
// tokens on restart.
func newTokenService(cfg config.AuthConfig) (*auth.Service, error) {
	secret := []byte(cfg.SecretKey)
	if len(secret) == 0 {
		key, err := auth.GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		log.Warn("auth.secret_key not set, using an ephemeral signing key")
		secret = key
	}
	return auth.NewService(secret, cfg.TokenTTL, cfg.Issuer)
}
