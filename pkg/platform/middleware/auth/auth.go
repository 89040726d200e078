// Package auth resolves the calling identity for each request.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	"dab/pkg/platform/httputil"
	"dab/pkg/requestcontext"
)

// CallerHeader carries the caller identity in trusted mode.
const CallerHeader = "X-Caller"

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*CallerClaims, error)
}

// CallerClaims is what the middleware needs from a validated token.
type CallerClaims struct {
	Caller string
	JTI    string
}

type Options struct {
	// TrustCallerHeader accepts CallerHeader when no bearer token is sent.
	TrustCallerHeader bool
}

// RequireCaller resolves the caller from a bearer token, or from CallerHeader
// in trusted mode, and stores it with requestcontext.WithCaller. Requests
// without a caller get 401.
func RequireCaller(validator TokenValidator, opts Options, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			raw, source, err := callerFromRequest(r, validator, opts)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access",
					"source", source,
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}

			caller, err := id.ParseIdentity(raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed caller",
					"source", source,
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "caller identity is malformed"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}

func callerFromRequest(r *http.Request, validator TokenValidator, opts Options) (string, string, error) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if validator == nil {
			return "", "bearer", dErrors.New(dErrors.CodeUnauthorized, "bearer tokens are not accepted")
		}
		claims, err := validator.ValidateToken(token)
		if err != nil {
			return "", "bearer", dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token")
		}
		return claims.Caller, "bearer", nil
	}
	if opts.TrustCallerHeader {
		if caller := strings.TrimSpace(r.Header.Get(CallerHeader)); caller != "" {
			return caller, "header", nil
		}
	}
	return "", "none", dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header")
}
