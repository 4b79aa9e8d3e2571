package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/storyline/internal/config"
	"github.com/templui/storyline/internal/db"
	"github.com/templui/storyline/internal/middleware"
	"github.com/templui/storyline/internal/notify"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/service"
	"github.com/templui/storyline/internal/storage"
	"github.com/templui/storyline/internal/validation"
)

type App struct {
	Cfg            *config.Config
	DB             *sqlx.DB
	OTPService     *service.OTPService
	AccountService *service.AccountService
	ProfileService *service.ProfileService
	FollowService  *service.FollowService
	StoryService   *service.StoryService
	AuthLimiter    *middleware.RateLimiter
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Storage
	mediaStorage, err := newStorage(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := Build(cfg, database, mediaStorage, newNotifier(cfg))

	if cfg.RateLimit {
		a.AuthLimiter = middleware.NewRateLimiter(10, 15*time.Minute)
	}

	return a, nil
}

// Build wires repositories and services on top of an open, migrated
// database. The auth rate limiter is left to the caller.
func Build(cfg *config.Config, database *sqlx.DB, mediaStorage storage.Storage, notifier notify.Notifier) *App {
	a := &App{Cfg: cfg, DB: database}
	store := repository.NewStore(database)

	// Repositories
	accountRepository := repository.NewAccountRepository(database)
	profileRepository := repository.NewProfileRepository(database)
	followRepository := repository.NewFollowRepository(database)
	storyRepository := repository.NewStoryRepository(database)
	otpRepository := repository.NewOTPRepository(database)

	// Services
	hasher := service.NewBcryptHasher(cfg.OTPHashCost)
	a.OTPService = service.NewOTPService(otpRepository, hasher, notifier, cfg.OTPCodeTTL, cfg.OTPRetain)
	a.AccountService = service.NewAccountService(
		store,
		accountRepository,
		otpRepository,
		a.OTPService,
		hasher,
		cfg.JWTSecret,
		cfg.JWTExpiry,
	)
	a.ProfileService = service.NewProfileService(store, accountRepository, profileRepository)
	a.FollowService = service.NewFollowService(store, profileRepository, followRepository)
	a.StoryService = service.NewStoryService(store, profileRepository, storyRepository, mediaStorage, cfg.StoryTTL)

	return a
}

// newNotifier routes codes by contact type. There is no SMS gateway, so
// phone codes are only logged in development.
func newNotifier(cfg *config.Config) notify.Notifier {
	var phone notify.Notifier = notify.Unavailable(validation.ContactPhone)
	if cfg.IsDevelopment() {
		phone = notify.LogNotifier{Channel: string(validation.ContactPhone)}
	}

	return notify.Router{
		Email: notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.EmailFrom, cfg.AppName, cfg.OTPCodeTTL, cfg.IsDevelopment()),
		Phone: phone,
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.S3Bucket == "" {
		slog.Warn("S3_BUCKET not set, story media is kept in memory")
		return storage.NewMemory(), nil
	}

	return storage.NewS3Storage(ctx, storage.S3Config{
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Endpoint:      cfg.S3Endpoint,
		PresignExpiry: cfg.S3PresignExpiry,
	})
}

func (a *App) Close() error {
	if a.AuthLimiter != nil {
		a.AuthLimiter.Stop()
	}
	return db.Close(a.DB)
}
