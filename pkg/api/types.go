package api

// RegisterRequest is the request body for POST /register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Service  string `json:"service"`
}

// RegisterResponse is the response body for POST /register
type RegisterResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Service  string `json:"service"`
}

// VerifyResponse carries the service to redirect to after verification
type VerifyResponse struct {
	Location string `json:"location"`
}

// AuthenticateRequest is the request body for POST /authenticate
type AuthenticateRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Service  string `json:"service,omitempty"`
}

// SessionResponse carries a freshly minted session token
type SessionResponse struct {
	Username string `json:"username"`
	Service  string `json:"service"`
	Token    string `json:"token"`
}

// ValidateRequest is the request body for POST /validate and POST /refresh
type ValidateRequest struct {
	Username string `json:"username"`
	Service  string `json:"service"`
	Token    string `json:"token"`
}

// ValidateResponse is the response body for POST /validate
type ValidateResponse struct {
	Username string `json:"username"`
}

// PasswordNewRequest is the request body for POST /password/new
type PasswordNewRequest struct {
	Username string `json:"username"`
	Service  string `json:"service"`
}

// PasswordChangeRequest is the request body for POST /password/change
type PasswordChangeRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// ResetResponse identifies the registration an operation acted on
type ResetResponse struct {
	Username string `json:"username"`
	Service  string `json:"service"`
}

// DeleteRequest is the request body for DELETE /users
type DeleteRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Service  string `json:"service,omitempty"`
}

// ErrorResponse is the structured error body {kind, message}
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
