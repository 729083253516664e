package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kethan1/Blogger101-website/internal/app"
	"github.com/kethan1/Blogger101-website/internal/auth"
	"github.com/kethan1/Blogger101-website/internal/authpw"
	"github.com/kethan1/Blogger101-website/internal/blog"
	"github.com/kethan1/Blogger101-website/internal/captcha"
	"github.com/kethan1/Blogger101-website/internal/comments"
	"github.com/kethan1/Blogger101-website/internal/config"
	"github.com/kethan1/Blogger101-website/internal/email"
	"github.com/kethan1/Blogger101-website/internal/export"
	"github.com/kethan1/Blogger101-website/internal/imagestore"
	"github.com/kethan1/Blogger101-website/internal/logger"
	"github.com/kethan1/Blogger101-website/internal/revisions"
	"github.com/kethan1/Blogger101-website/internal/search"
	"github.com/kethan1/Blogger101-website/internal/session"
	"github.com/kethan1/Blogger101-website/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.RevisionsDir).Msg("failed to create revisions dir")
	}

	dataStore := store.NewPostgresStore(db)

	images, err := newImageStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.ImageBackend).Msg("image storage unavailable")
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	var sessions session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info().Msg("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Info().Msg("Using PostgreSQL for session storage")
		sessions = session.NewPostgresStore(db)
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Warn().Msg("SMTP not configured; verification tokens are returned in responses")
	}

	authService := authpw.NewService(
		dataStore,
		mailer,
		captcha.NewRecaptcha(cfg.RecaptchaSecret, cfg.RecaptchaURL, cfg.UpstreamTimeout),
		auth.NewCodec(cfg.SecretKey),
		authpw.Config{
			SiteOrigin:      cfg.SiteOrigin,
			TokenMaxAge:     cfg.TokenMaxAge,
			StepUpThreshold: cfg.StepUpThreshold,
		},
	)
	commentService := comments.NewService(dataStore)
	blogService := blog.NewService(blog.Deps{
		Store:      dataStore,
		Images:     images,
		Index:      searchService,
		Revisions:  revisions.New(cfg.RevisionsDir),
		Comments:   commentService,
		Exporter:   export.NewService(),
		SiteOrigin: cfg.SiteOrigin,
	})

	service := app.NewService(app.Deps{
		Config:   cfg,
		DB:       dataStore,
		Blog:     blogService,
		Comments: commentService,
		Auth:     authService,
		Sessions: sessions,
	})

	httpServer := app.NewHTTPServer(service)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("Blogger101 listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func newImageStore(ctx context.Context, cfg config.Config) (blog.ImageStore, error) {
	if strings.EqualFold(cfg.ImageBackend, "s3") {
		return imagestore.NewS3(ctx, imagestore.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.ImageBucket,
			PublicURL: cfg.ImagePublicURL,
		})
	}
	return imagestore.NewMinIO(ctx, imagestore.MinIOConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.ImageBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.ImagePublicURL,
	})
}
