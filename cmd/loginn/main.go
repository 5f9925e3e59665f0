package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loginn-io/loginn/pkg/api"
	"github.com/loginn-io/loginn/pkg/identity"
	"github.com/loginn-io/loginn/pkg/loginflow"
	"github.com/loginn-io/loginn/pkg/notification"
	"github.com/loginn-io/loginn/pkg/password"
	"github.com/loginn-io/loginn/pkg/registration"
	"github.com/loginn-io/loginn/pkg/signup"
	"github.com/loginn-io/loginn/pkg/token"
)

type AppConfig struct {
	Host    string `env:"APP_HOST" env-default:"0.0.0.0"`
	Port    uint16 `env:"APP_PORT" env-default:"4000"`
	BaseURL string `env:"APP_BASE_URL" env-default:"http://localhost:4000"`
	Storage string `env:"APP_STORAGE" env-default:"memory"`
}

type DbConfig struct {
	Host     string `env:"LOGINN_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"LOGINN_PG_PORT" env-default:"5432"`
	Database string `env:"LOGINN_PG_DATABASE" env-default:"loginn_db"`
	User     string `env:"LOGINN_PG_USER" env-default:"loginn"`
	Password string `env:"LOGINN_PG_PASSWORD" env-default:"pwd"`
}

func (d DbConfig) toConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

type JwtConfig struct {
	Secret             string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer             string        `env:"JWT_ISSUER" env-default:"loginn"`
	Audience           string        `env:"JWT_AUDIENCE" env-default:"loginn"`
	SessionTokenExpiry time.Duration `env:"JWT_SESSION_TOKEN_EXPIRY" env-default:"15m"`
}

type TokenConfig struct {
	VerificationExpiry  time.Duration `env:"TOKEN_VERIFICATION_EXPIRY" env-default:"24h"`
	PasswordResetExpiry time.Duration `env:"TOKEN_PASSWORD_RESET_EXPIRY" env-default:"1h"`
}

type EmailConfig struct {
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     int    `env:"EMAIL_PORT" env-default:"1025"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
	Username string `env:"EMAIL_USERNAME"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@loginn.example.com"`
}

type Config struct {
	AppConfig   AppConfig
	DbConfig    DbConfig
	JwtConfig   JwtConfig
	TokenConfig TokenConfig
	EmailConfig EmailConfig
}

func main() {
	config := Config{}
	cleanenv.ReadEnv(&config)

	repo, err := newRepository(config)
	if err != nil {
		slog.Error("Failed creating registration repository", "storage", config.AppConfig.Storage, "err", err)
		os.Exit(-1)
	}

	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithSMTP(notification.SMTPConfig{
			Host:     config.EmailConfig.Host,
			Port:     config.EmailConfig.Port,
			TLS:      config.EmailConfig.TLS,
			Username: config.EmailConfig.Username,
			Password: config.EmailConfig.Password,
			From:     config.EmailConfig.From,
		}),
		notification.WithEmailVerificationTemplate(),
		notification.WithPasswordResetTemplate(),
	)
	if err != nil {
		slog.Error("Failed creating notification manager", "err", err)
		os.Exit(-1)
	}

	tokenEngine := token.NewEngine(repo,
		token.WithVerificationExpiry(config.TokenConfig.VerificationExpiry),
		token.WithPasswordResetExpiry(config.TokenConfig.PasswordResetExpiry),
	)

	provider := identity.NewLocalProvider(
		config.JwtConfig.Secret,
		config.JwtConfig.Issuer,
		config.JwtConfig.Audience,
		identity.WithSessionTokenExpiry(config.JwtConfig.SessionTokenExpiry),
	)
	identityManager := identity.NewManager(provider, repo)

	signupService := signup.NewSignupService(
		signup.WithRepository(repo),
		signup.WithTokenEngine(tokenEngine),
		signup.WithIdentityManager(identityManager),
		signup.WithNotificationManager(notificationManager),
		signup.WithBaseURL(config.AppConfig.BaseURL),
	)
	loginFlowService := loginflow.NewLoginFlowService(repo, identityManager)
	resetService := password.NewResetService(repo, tokenEngine, notificationManager, config.AppConfig.BaseURL)

	handle := api.NewHandle(
		api.WithSignupService(signupService),
		api.WithLoginFlowService(loginFlowService),
		api.WithResetService(resetService),
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handle.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Host, config.AppConfig.Port)
	slog.Info("Starting loginn", "addr", addr, "storage", config.AppConfig.Storage)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("Server stopped", "err", err)
		os.Exit(-1)
	}
}

func newRepository(config Config) (registration.RegistrationRepository, error) {
	switch config.AppConfig.Storage {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), config.DbConfig.toConnString())
		if err != nil {
			return nil, err
		}
		return registration.NewPostgresRegistrationRepository(pool), nil
	case "memory":
		return registration.NewInMemoryRegistrationRepository(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", config.AppConfig.Storage)
	}
}
