package auth

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"confession-service/internal/authctx"
	"confession-service/internal/httputil"
)

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey = authctx.UserIDKey
	// EmailKey is the context key for the authenticated email
	EmailKey = authctx.EmailKey
)

// Middleware validates the JWT from the auth cookie and adds claims to the
// request context
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("token")
			if err != nil {
				logger.Warn("no auth cookie found", "path", r.URL.Path)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := ValidateAccessToken(cookie.Value)
			if err != nil {
				logger.Warn("invalid token", "error", err)
				httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, EmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the user id from context
func GetUserID(ctx context.Context) (int, bool) {
	return authctx.GetUserID(ctx)
}

// GetEmail extracts the email from context
func GetEmail(ctx context.Context) (string, bool) {
	return authctx.GetEmail(ctx)
}

// SetAuthCookie sets JWT token in secure HttpOnly cookie
func SetAuthCookie(w http.ResponseWriter, token string) {
	// Determine SameSite based on environment
	sameSite := http.SameSiteStrictMode
	env := os.Getenv("ENV")
	if env == "development" || env == "local" {
		sameSite = http.SameSiteLaxMode // Allow testing from Postman
	}

	secure := env == "production" || env == "prod"

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		HttpOnly: true,     // XSS protection
		Secure:   secure,   // HTTPS only in production
		SameSite: sameSite, // CSRF protection
		Path:     "/",
		MaxAge:   900, // 15 minutes
	})
}

// ClearAuthCookie removes the auth cookie
func ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Secure:   os.Getenv("ENV") != "local",
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1, // Delete cookie
	})
}
