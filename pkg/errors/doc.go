// Package errors provides structured error handling with error codes for loginn.
//
// Services create errors with a typed code; the HTTP layer maps codes to
// status codes. Standard errors.Is / errors.As keep working through Unwrap.
//
//	err := errors.New(errors.ErrCodeNotFound, "no user registered for svc1")
//	err := errors.Wrapf(dbErr, errors.ErrCodeUpstreamUnavailable, "failed to query store")
//
//	if errors.IsCode(err, errors.ErrCodeConflict) {
//		// handle duplicate registration
//	}
package errors
