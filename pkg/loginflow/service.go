package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	errs "github.com/loginn-io/loginn/pkg/errors"
	"github.com/loginn-io/loginn/pkg/identity"
	"github.com/loginn-io/loginn/pkg/password"
	"github.com/loginn-io/loginn/pkg/registration"
)

// LoginFlowService processes authentication, session token validation and
// refresh, and account deletion against the credential store and the
// identity binding manager.
type LoginFlowService struct {
	repo            registration.RegistrationRepository
	identityManager *identity.Manager
}

// NewLoginFlowService creates a new login flow service
func NewLoginFlowService(repo registration.RegistrationRepository, im *identity.Manager) *LoginFlowService {
	return &LoginFlowService{
		repo:            repo,
		identityManager: im,
	}
}

// LoginRequest represents an authentication request. Exactly one of
// Username and Email identifies the account; Service disambiguates when the
// account has registrations under more than one service.
type LoginRequest struct {
	Username string
	Email    string
	Password string
	Service  string
}

// LoginResult represents a successful authentication
type LoginResult struct {
	Username     string
	Service      string
	SessionToken string
}

// Login resolves the identifier to exactly one registration, verifies the
// password, and requests a session token from the identity binding manager.
func (s *LoginFlowService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if req.Username == "" && req.Email == "" {
		return LoginResult{}, errs.New(errs.ErrCodeMissingRequired, "missing username/email parameter in request")
	}
	if req.Password == "" {
		return LoginResult{}, errs.New(errs.ErrCodeMissingRequired, "missing password parameter in request")
	}

	reg, err := s.resolveRegistration(ctx, req.Username, req.Email, req.Service)
	if err != nil {
		return LoginResult{}, err
	}

	if reg.State != registration.StateActive {
		return LoginResult{}, errs.New(errs.ErrCodeUnauthorized, "email address has not been verified")
	}

	valid, err := password.CheckPasswordHash(req.Password, reg.PasswordHash)
	if err != nil {
		slog.Error("Failed to check password", "username", reg.Username, "err", err)
		return LoginResult{}, errs.Wrap(err, errs.ErrCodeInternal, "failed to check password")
	}
	if !valid {
		// Deliberately opaque: the caller cannot tell whether the username
		// existed.
		return LoginResult{}, errs.New(errs.ErrCodeInvalidCredentials, "incorrect username or password")
	}

	ident, err := s.identityManager.EnsureIdentity(ctx, reg.Username)
	if err != nil {
		return LoginResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to get session token")
	}
	if reg.IdentityID != ident.ID {
		if err := s.repo.UpdateIdentityID(ctx, reg.Key(), ident.ID); err != nil {
			slog.Warn("Failed to record identity binding", "username", reg.Username, "err", err)
		}
	}

	slog.Info("Authenticated user", "username", reg.Username, "service", reg.Service)
	return LoginResult{
		Username:     reg.Username,
		Service:      reg.Service,
		SessionToken: ident.SessionToken,
	}, nil
}

// ValidateRequest represents a session token validation or refresh request
type ValidateRequest struct {
	Username     string
	Service      string
	SessionToken string
}

// ValidateResult represents a successful validation
type ValidateResult struct {
	Username string
}

// Validate checks that a session token still authenticates the username:
// the token's subject must equal the identity currently bound to the
// username, and the token must not have expired. No new token is issued.
func (s *LoginFlowService) Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	if _, err := s.checkSession(ctx, req); err != nil {
		return ValidateResult{}, err
	}
	return ValidateResult{Username: req.Username}, nil
}

// Refresh runs the same checks as Validate and mints a fresh session token
func (s *LoginFlowService) Refresh(ctx context.Context, req ValidateRequest) (LoginResult, error) {
	reg, err := s.checkSession(ctx, req)
	if err != nil {
		return LoginResult{}, err
	}

	ident, err := s.identityManager.EnsureIdentity(ctx, reg.Username)
	if err != nil {
		return LoginResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to get session token")
	}

	return LoginResult{
		Username:     reg.Username,
		Service:      reg.Service,
		SessionToken: ident.SessionToken,
	}, nil
}

func (s *LoginFlowService) checkSession(ctx context.Context, req ValidateRequest) (registration.Registration, error) {
	if req.Username == "" {
		return registration.Registration{}, errs.New(errs.ErrCodeMissingRequired, "missing username parameter")
	}
	if req.Service == "" {
		return registration.Registration{}, errs.New(errs.ErrCodeMissingRequired, "missing service parameter")
	}
	if req.SessionToken == "" {
		return registration.Registration{}, errs.New(errs.ErrCodeMissingRequired, "missing token parameter")
	}

	reg, err := s.resolveRegistration(ctx, req.Username, "", req.Service)
	if err != nil {
		return registration.Registration{}, err
	}

	claims, err := identity.DecodeSessionClaims(req.SessionToken)
	if err != nil {
		return registration.Registration{}, errs.New(errs.ErrCodeTokenMalformed, "failed to parse token")
	}

	identityID, err := s.identityManager.LookupIdentity(ctx, reg.Username)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return registration.Registration{}, errs.Newf(errs.ErrCodeUnauthorized, "%s has no bound identity", reg.Username)
		}
		return registration.Registration{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to look up identity")
	}
	if identityID != claims.Subject {
		return registration.Registration{}, errs.New(errs.ErrCodeUnauthorized, "user identity/token mismatch")
	}
	if !claims.ExpiresAt.After(time.Now().UTC()) {
		return registration.Registration{}, errs.New(errs.ErrCodeUnauthorized, "token has expired")
	}
	return reg, nil
}

// DeleteRequest represents an account deletion request
type DeleteRequest struct {
	Username string
	Email    string
	Password string
	Service  string
}

// DeleteResult identifies the deleted registration
type DeleteResult struct {
	Username string
	Service  string
}

// Delete removes the matched registration after verifying the password, and
// revokes the federation identity when no registrations remain for the
// username. The result is the same whether or not the identity was revoked.
func (s *LoginFlowService) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	if req.Username == "" && req.Email == "" {
		return DeleteResult{}, errs.New(errs.ErrCodeMissingRequired, "missing username/email parameter in request")
	}
	if req.Password == "" {
		return DeleteResult{}, errs.New(errs.ErrCodeMissingRequired, "missing password parameter")
	}

	reg, err := s.resolveRegistration(ctx, req.Username, req.Email, req.Service)
	if err != nil {
		return DeleteResult{}, err
	}

	valid, err := password.CheckPasswordHash(req.Password, reg.PasswordHash)
	if err != nil {
		slog.Error("Failed to check password", "username", reg.Username, "err", err)
		return DeleteResult{}, errs.Wrap(err, errs.ErrCodeInternal, "failed to check password")
	}
	if !valid {
		return DeleteResult{}, errs.New(errs.ErrCodeInvalidCredentials, "incorrect username or password")
	}

	if err := s.repo.Delete(ctx, reg.Key()); err != nil {
		slog.Error("Failed to delete registration", "username", reg.Username, "service", reg.Service, "err", err)
		return DeleteResult{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to delete user")
	}

	// Best-effort cleanup; a concurrent registration can race the count.
	if _, err := s.identityManager.RevokeIfOrphaned(ctx, reg.Username); err != nil {
		slog.Warn("Failed to revoke orphaned identity", "username", reg.Username, "err", err)
	}

	slog.Info("Deleted registration", "username", reg.Username, "service", reg.Service)
	return DeleteResult{Username: reg.Username, Service: reg.Service}, nil
}

// resolveRegistration applies the account resolution rule to a
// username-or-email identifier
func (s *LoginFlowService) resolveRegistration(ctx context.Context, username, email, service string) (registration.Registration, error) {
	var regs []registration.Registration
	var err error
	if username != "" {
		regs, err = s.repo.QueryByUsername(ctx, username)
	} else {
		regs, err = s.repo.QueryByEmail(ctx, email)
	}
	if err != nil {
		slog.Error("Failed to query registrations", "err", err)
		return registration.Registration{}, errs.Wrap(err, errs.ErrCodeUpstreamUnavailable, "failed to query store")
	}

	reg, err := registration.Resolve(regs, service)
	if err != nil {
		if errors.Is(err, registration.ErrAmbiguousAccount) {
			return registration.Registration{}, errs.New(errs.ErrCodeAmbiguousAccount, "multiple registrations found, service required")
		}
		if service != "" {
			return registration.Registration{}, errs.Newf(errs.ErrCodeNotFound, "no user registered for %s", service)
		}
		return registration.Registration{}, errs.New(errs.ErrCodeNotFound, "user not found")
	}
	return reg, nil
}
