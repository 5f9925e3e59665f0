package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	errs "github.com/loginn-io/loginn/pkg/errors"
	"github.com/loginn-io/loginn/pkg/loginflow"
	"github.com/loginn-io/loginn/pkg/password"
	"github.com/loginn-io/loginn/pkg/signup"
)

// Handle handles HTTP requests for the credential lifecycle endpoints
type Handle struct {
	signupService    *signup.SignupService
	loginFlowService *loginflow.LoginFlowService
	resetService     *password.ResetService
}

// Option is a function that configures a Handle
type Option func(*Handle)

// WithSignupService sets the signup service
func WithSignupService(s *signup.SignupService) Option {
	return func(h *Handle) {
		h.signupService = s
	}
}

// WithLoginFlowService sets the login flow service
func WithLoginFlowService(s *loginflow.LoginFlowService) Option {
	return func(h *Handle) {
		h.loginFlowService = s
	}
}

// WithResetService sets the password reset service
func WithResetService(s *password.ResetService) Option {
	return func(h *Handle) {
		h.resetService = s
	}
}

// NewHandle creates a new Handle
func NewHandle(opts ...Option) *Handle {
	h := &Handle{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the credential lifecycle routes
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.PostRegister)
	r.Get("/verify", h.GetVerify)
	r.Post("/authenticate", h.PostAuthenticate)
	r.Post("/validate", h.PostValidate)
	r.Post("/refresh", h.PostRefresh)
	r.Post("/password/new", h.PostPasswordNew)
	r.Post("/password/change", h.PostPasswordChange)
	r.Delete("/users", h.DeleteUser)
}

// PostRegister registers a user for a service
// (POST /register)
func (h *Handle) PostRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	req := signup.RegisterRequest{}
	copier.Copy(&req, &body)
	result, err := h.signupService.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := RegisterResponse{}
	copier.Copy(&resp, &result)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GetVerify consumes an email verification token
// (GET /verify?username=...&token=...)
func (h *Handle) GetVerify(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	verificationToken := r.URL.Query().Get("token")

	service, err := h.signupService.VerifyEmail(r.Context(), username, verificationToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, VerifyResponse{Location: service})
}

// PostAuthenticate authenticates a username/password pair
// (POST /authenticate)
func (h *Handle) PostAuthenticate(w http.ResponseWriter, r *http.Request) {
	var body AuthenticateRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	req := loginflow.LoginRequest{}
	copier.Copy(&req, &body)
	result, err := h.loginFlowService.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, SessionResponse{
		Username: result.Username,
		Service:  result.Service,
		Token:    result.SessionToken,
	})
}

// PostValidate checks that a session token still authenticates the user
// (POST /validate)
func (h *Handle) PostValidate(w http.ResponseWriter, r *http.Request) {
	var body ValidateRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	result, err := h.loginFlowService.Validate(r.Context(), loginflow.ValidateRequest{
		Username:     body.Username,
		Service:      body.Service,
		SessionToken: body.Token,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ValidateResponse{Username: result.Username})
}

// PostRefresh validates the current session token and mints a new one
// (POST /refresh)
func (h *Handle) PostRefresh(w http.ResponseWriter, r *http.Request) {
	var body ValidateRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	result, err := h.loginFlowService.Refresh(r.Context(), loginflow.ValidateRequest{
		Username:     body.Username,
		Service:      body.Service,
		SessionToken: body.Token,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, SessionResponse{
		Username: result.Username,
		Service:  result.Service,
		Token:    result.SessionToken,
	})
}

// PostPasswordNew requests a password reset token
// (POST /password/new)
func (h *Handle) PostPasswordNew(w http.ResponseWriter, r *http.Request) {
	var body PasswordNewRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	result, err := h.resetService.RequestReset(r.Context(), body.Username, body.Service)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ResetResponse{}
	copier.Copy(&resp, &result)
	render.JSON(w, r, resp)
}

// PostPasswordChange consumes a reset token and rotates the password
// (POST /password/change)
func (h *Handle) PostPasswordChange(w http.ResponseWriter, r *http.Request) {
	var body PasswordChangeRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	result, err := h.resetService.ChangePassword(r.Context(), body.Username, body.Password, body.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ResetResponse{}
	copier.Copy(&resp, &result)
	render.JSON(w, r, resp)
}

// DeleteUser deletes a registration after verifying the password
// (DELETE /users)
func (h *Handle) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var body DeleteRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, r)
		return
	}

	req := loginflow.DeleteRequest{}
	copier.Copy(&req, &body)
	result, err := h.loginFlowService.Delete(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ResetResponse{}
	copier.Copy(&resp, &result)
	render.JSON(w, r, resp)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{
		Kind:    string(errs.ErrCodeInvalidRequest),
		Message: "unable to parse request body",
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var structured *errs.Error
	if !stderrors.As(err, &structured) {
		slog.Error("Unstructured error", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Kind:    string(errs.ErrCodeInternal),
			Message: "internal error",
		})
		return
	}

	render.Status(r, structured.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Kind:    string(structured.Code),
		Message: structured.Message,
	})
}
