package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vidora.org/internal/auth"
	"vidora.org/internal/obs"
)

const (
	authHeader        = "Authorization"
	bearer            = "Bearer "
	accessTokenCookie = "accessToken"
	accessTokenHeader = "X-Access-Token"
	accessTokenQuery  = "accessToken"
)

// tokenExtractor pulls a candidate access token out of the request without
// touching the body. Extractors run in fixed priority order; the first hit
// wins even if its token later fails verification.
type tokenExtractor func(r *http.Request) (string, bool)

var tokenExtractors = []tokenExtractor{
	fromBearerHeader,
	fromCookie,
	fromAccessTokenHeader,
	fromRawAuthorization,
	fromQuery,
}

func fromBearerHeader(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func fromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(accessTokenCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func fromAccessTokenHeader(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(accessTokenHeader))
	return token, token != ""
}

// fromRawAuthorization accepts a bare token in the Authorization header,
// i.e. without the Bearer scheme prefix.
func fromRawAuthorization(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" || strings.ContainsRune(header, ' ') {
		return "", false
	}
	return header, true
}

func fromQuery(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.URL.Query().Get(accessTokenQuery))
	return token, token != ""
}

// extractToken returns the first token any transport yields.
func extractToken(r *http.Request) (string, bool) {
	for _, extract := range tokenExtractors {
		if token, ok := extract(r); ok {
			return token, true
		}
	}
	return "", false
}

var publicPaths = []string{
	"/api/v1/users/register",
	"/api/v1/users/login",
	"/api/v1/users/refresh-token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// isOptionalAuth marks read-only endpoints that work anonymously but
// personalize (private videos, watch history) when a valid token rides along.
func isOptionalAuth(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	path := r.URL.Path
	if path == "/api/v1/videos" || strings.HasPrefix(path, "/api/v1/videos/") {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/users/c/") {
		return true
	}
	// Single-playlist reads are public; the collection stays owner-scoped.
	if strings.HasPrefix(path, "/api/v1/playlists/") {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/users/") && strings.HasSuffix(path, "/playlists")
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		optional := isOptionalAuth(r)

		token, ok := extractToken(r)
		if !ok {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			obs.CountRejectedToken()
			writeError(w, r, http.StatusUnauthorized, "missing access token")
			return
		}

		user, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			obs.CountRejectedToken()
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
