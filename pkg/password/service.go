package password

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	errs "github.com/loginn-io/loginn/pkg/errors"
	"github.com/loginn-io/loginn/pkg/notification"
	"github.com/loginn-io/loginn/pkg/registration"
	"github.com/loginn-io/loginn/pkg/token"
)

// ResetService handles the two-phase password rotation: a reset is requested
// against a known (service, username) registration, and the password only
// changes when the mailed single-use token is presented.
type ResetService struct {
	repo                registration.RegistrationRepository
	tokens              *token.Engine
	notificationManager *notification.NotificationManager
	baseURL             string
}

// NewResetService creates a new password reset service
func NewResetService(repo registration.RegistrationRepository, tokens *token.Engine, nm *notification.NotificationManager, baseURL string) *ResetService {
	return &ResetService{
		repo:                repo,
		tokens:              tokens,
		notificationManager: nm,
		baseURL:             strings.TrimSuffix(baseURL, "/"),
	}
}

// ResetResult identifies the registration a reset phase acted on
type ResetResult struct {
	Username string
	Service  string
}

// RequestReset binds a password reset token to the registration and mails a
// reset link to its stored email address.
func (s *ResetService) RequestReset(ctx context.Context, username, service string) (ResetResult, error) {
	if username == "" {
		return ResetResult{}, errs.New(errs.ErrCodeMissingRequired, "missing username parameter")
	}
	if service == "" {
		return ResetResult{}, errs.New(errs.ErrCodeMissingRequired, "missing service parameter")
	}

	key := registration.Key{Service: service, Username: username}
	reg, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, registration.ErrRegistrationNotFound) {
			return ResetResult{}, errs.Newf(errs.ErrCodeNotFound, "no user registered for %s", service)
		}
		return ResetResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to get user info")
	}

	// A reset presupposes a proven email address. Binding a reset token
	// would also clear a pending verification token.
	if reg.State != registration.StateActive {
		return ResetResult{}, errs.New(errs.ErrCodeInvalidRequest, "email address has not been verified")
	}

	resetToken, err := s.tokens.Bind(ctx, key, registration.TokenKindPasswordReset)
	if err != nil {
		return ResetResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to bind reset token")
	}

	if err := s.sendResetEmail(reg, resetToken); err != nil {
		slog.Error("Failed to send change password email", "username", username, "err", err)
		return ResetResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to send change password email")
	}

	slog.Info("Password reset requested", "username", username, "service", service)
	return ResetResult{Username: username, Service: service}, nil
}

// ChangePassword consumes the reset token and replaces the password hash in
// the same conditional update. The service is derived from whichever
// registration carries the matching token, not supplied by the caller.
func (s *ResetService) ChangePassword(ctx context.Context, username, newPassword, resetToken string) (ResetResult, error) {
	if username == "" {
		return ResetResult{}, errs.New(errs.ErrCodeMissingRequired, "missing username parameter")
	}
	if newPassword == "" {
		return ResetResult{}, errs.New(errs.ErrCodeMissingRequired, "missing password parameter")
	}
	if resetToken == "" {
		return ResetResult{}, errs.New(errs.ErrCodeMissingRequired, "missing token parameter")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return ResetResult{}, errs.Wrap(err, errs.ErrCodeInternal, "failed to hash password")
	}

	reg, err := s.tokens.ConsumePasswordReset(ctx, username, resetToken, hash)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenNotFound):
			return ResetResult{}, errs.New(errs.ErrCodeTokenNotFound, "no token found")
		case errors.Is(err, token.ErrTokenExpired):
			return ResetResult{}, errs.New(errs.ErrCodeTokenExpired, "token has expired")
		case errors.Is(err, token.ErrAmbiguousAccount):
			return ResetResult{}, errs.New(errs.ErrCodeAmbiguousAccount, "token does not resolve to a single registration")
		}
		return ResetResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to update password")
	}

	slog.Info("Password changed", "username", username, "service", reg.Service)
	return ResetResult{Username: username, Service: reg.Service}, nil
}

func (s *ResetService) sendResetEmail(reg registration.Registration, resetToken string) error {
	link := fmt.Sprintf("%s/password/change?username=%s&token=%s",
		s.baseURL, url.QueryEscape(reg.Username), url.QueryEscape(resetToken))

	return s.notificationManager.Send(notification.PasswordResetNotice, notification.EmailSystem, notification.NotificationData{
		To:      reg.Email,
		Subject: fmt.Sprintf("Change password for %s", reg.Username),
		Data: map[string]string{
			"Username": reg.Username,
			"Service":  reg.Service,
			"Link":     link,
		},
	})
}
