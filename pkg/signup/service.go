package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	errs "github.com/loginn-io/loginn/pkg/errors"
	"github.com/loginn-io/loginn/pkg/identity"
	"github.com/loginn-io/loginn/pkg/notification"
	"github.com/loginn-io/loginn/pkg/password"
	"github.com/loginn-io/loginn/pkg/registration"
	"github.com/loginn-io/loginn/pkg/token"
)

// SignupService handles registration and email verification business logic
type SignupService struct {
	repo                registration.RegistrationRepository
	tokens              *token.Engine
	identityManager     *identity.Manager
	notificationManager *notification.NotificationManager
	baseURL             string
}

// SignupServiceOption is a functional option for configuring SignupService
type SignupServiceOption func(*SignupService)

// WithRepository sets the registration repository
func WithRepository(repo registration.RegistrationRepository) SignupServiceOption {
	return func(s *SignupService) {
		s.repo = repo
	}
}

// WithTokenEngine sets the single-use token engine
func WithTokenEngine(tokens *token.Engine) SignupServiceOption {
	return func(s *SignupService) {
		s.tokens = tokens
	}
}

// WithIdentityManager sets the identity binding manager
func WithIdentityManager(im *identity.Manager) SignupServiceOption {
	return func(s *SignupService) {
		s.identityManager = im
	}
}

// WithNotificationManager sets the notification manager
func WithNotificationManager(nm *notification.NotificationManager) SignupServiceOption {
	return func(s *SignupService) {
		s.notificationManager = nm
	}
}

// WithBaseURL sets the base URL embedded in verification links
func WithBaseURL(baseURL string) SignupServiceOption {
	return func(s *SignupService) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewSignupService creates a new SignupService with the given options
func NewSignupService(opts ...SignupServiceOption) *SignupService {
	s := &SignupService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string
	Password string
	Email    string
	Service  string
}

// RegisterResult represents the result of a registration.
// It never carries the password hash or the raw verification token.
type RegisterResult struct {
	Username string
	Email    string
	Service  string
}

// Register creates a pending registration, binds a verification token, and
// queues the verification email. Success is reported only after the email
// has been handed to the sender.
func (s *SignupService) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if req.Username == "" {
		return RegisterResult{}, errs.New(errs.ErrCodeMissingRequired, "missing username parameter in request")
	}
	if req.Password == "" {
		return RegisterResult{}, errs.New(errs.ErrCodeMissingRequired, "missing password parameter in request")
	}
	if req.Email == "" {
		return RegisterResult{}, errs.New(errs.ErrCodeMissingRequired, "missing email parameter in request")
	}
	if req.Service == "" {
		return RegisterResult{}, errs.New(errs.ErrCodeMissingRequired, "missing service parameter in request")
	}
	if !isValidEmail(req.Email) {
		return RegisterResult{}, errs.Newf(errs.ErrCodeInvalidEmail, "invalid email address: %s", req.Email)
	}

	// The identity binding is shared by username, so a username taken under
	// any service is taken. The conditional put below backstops the race on
	// the composite key itself.
	existing, err := s.repo.QueryByUsername(ctx, req.Username)
	if err != nil {
		slog.Error("Failed to query registrations", "username", req.Username, "err", err)
		return RegisterResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to query store")
	}
	if len(existing) > 0 {
		return RegisterResult{}, errs.Newf(errs.ErrCodeConflict, "username %s is already registered", req.Username)
	}

	hash, err := password.HashPassword(req.Password)
	if err != nil {
		slog.Error("Failed to hash password", "username", req.Username, "err", err)
		return RegisterResult{}, errs.Wrap(err, errs.ErrCodeInternal, "failed to hash password")
	}

	reg := registration.Registration{
		Service:      req.Service,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		State:        registration.StatePendingVerification,
	}
	verificationToken, err := s.tokens.StampVerification(&reg)
	if err != nil {
		return RegisterResult{}, errs.Wrap(err, errs.ErrCodeInternal, "failed to generate verification token")
	}

	if err := s.repo.Create(ctx, reg); err != nil {
		if errors.Is(err, registration.ErrDuplicateKey) {
			return RegisterResult{}, errs.Newf(errs.ErrCodeConflict, "username %s is already registered", req.Username)
		}
		slog.Error("Failed to create registration", "username", req.Username, "service", req.Service, "err", err)
		return RegisterResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to create registration")
	}

	if err := s.sendVerificationEmail(reg, verificationToken); err != nil {
		// The registration row exists; the caller retries registration or a
		// resend path, but this request did not complete.
		slog.Error("Failed to send verification email", "username", req.Username, "email", req.Email, "err", err)
		return RegisterResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to send verification email")
	}

	slog.Info("Registered user", "username", req.Username, "service", req.Service)
	return RegisterResult{
		Username: reg.Username,
		Email:    reg.Email,
		Service:  reg.Service,
	}, nil
}

// VerifyEmail consumes a verification token scoped by username, activates
// the matched registration, and materializes the federation identity.
// Returns the bound service identifier for a redirect.
func (s *SignupService) VerifyEmail(ctx context.Context, username, verificationToken string) (string, error) {
	if username == "" {
		return "", errs.New(errs.ErrCodeMissingRequired, "missing username parameter")
	}
	if verificationToken == "" {
		return "", errs.New(errs.ErrCodeMissingRequired, "missing token parameter")
	}

	reg, err := s.tokens.ConsumeVerification(ctx, username, verificationToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenNotFound):
			return "", errs.New(errs.ErrCodeTokenNotFound, "invalid token")
		case errors.Is(err, token.ErrTokenExpired):
			return "", errs.New(errs.ErrCodeTokenExpired, "token has expired")
		case errors.Is(err, token.ErrAmbiguousAccount):
			return "", errs.New(errs.ErrCodeAmbiguousAccount, "token does not resolve to a single registration")
		}
		return "", errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to consume verification token")
	}

	ident, err := s.identityManager.EnsureIdentity(ctx, username)
	if err != nil {
		return "", errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to add identity")
	}
	if err := s.repo.UpdateIdentityID(ctx, reg.Key(), ident.ID); err != nil {
		slog.Error("Failed to record identity binding", "username", username, "identity_id", ident.ID, "err", err)
		return "", errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to record identity binding")
	}

	slog.Info("Email verified", "username", username, "service", reg.Service, "identity_id", ident.ID)
	return reg.Service, nil
}

func (s *SignupService) sendVerificationEmail(reg registration.Registration, verificationToken string) error {
	link := fmt.Sprintf("%s/verify?username=%s&token=%s",
		s.baseURL, url.QueryEscape(reg.Username), url.QueryEscape(verificationToken))

	return s.notificationManager.Send(notification.EmailVerificationNotice, notification.EmailSystem, notification.NotificationData{
		To: reg.Email,
		Data: map[string]string{
			"Username": reg.Username,
			"Service":  reg.Service,
			"Link":     link,
		},
	})
}

// isValidEmail applies a conservative address-format check
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
