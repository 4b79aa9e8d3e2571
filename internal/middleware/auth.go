package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/ctxkeys"
	"github.com/templui/storyline/internal/model"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Account, error)
}

type ProfileFinder interface {
	ByAccountID(ctx context.Context, accountID string) (*model.Profile, error)
}

// Authenticate resolves the bearer token to an account and its profile and
// adds both to the context. Requests without a valid token continue
// anonymously; RequireAuth decides whether that is acceptable.
func Authenticate(accounts Authenticator, profiles ProfileFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			account, err := accounts.Authenticate(r.Context(), token)
			if err != nil {
				if apperr.KindOf(err) == "" {
					slog.Error("failed to authenticate request", "error", err, "path", r.URL.Path)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := ctxkeys.WithAccount(r.Context(), account)

			profile, err := profiles.ByAccountID(ctx, account.ID)
			switch {
			case err == nil:
				ctx = ctxkeys.WithProfile(ctx, profile)
			case !errors.Is(err, apperr.ErrNotFound):
				slog.Error("failed to load profile", "error", err, "account_id", account.ID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an authenticated account.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Account(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireProfile is RequireAuth for endpoints that act as a profile.
func RequireProfile(next http.HandlerFunc) http.HandlerFunc {
	return RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Profile(r.Context()) == nil {
			writeError(w, http.StatusNotFound, "create a profile first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
