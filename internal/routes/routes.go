package routes

import (
	"net/http"

	"github.com/templui/storyline/internal/app"
	"github.com/templui/storyline/internal/handler"
	"github.com/templui/storyline/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	auth := handler.NewAuthHandler(app.AccountService, app.OTPService)
	account := handler.NewAccountHandler(app.AccountService)
	profile := handler.NewProfileHandler(app.ProfileService, app.FollowService)
	story := handler.NewStoryHandler(app.StoryService)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Health)

	// ============================================================================
	// AUTH (rate limited)
	// ============================================================================

	limit := middleware.RateLimit(app.AuthLimiter)

	mux.HandleFunc("POST /auth/register", limit(auth.Register))
	mux.HandleFunc("POST /auth/login", limit(auth.Login))
	mux.HandleFunc("POST /auth/verify", limit(auth.Verify))
	mux.HandleFunc("POST /auth/resend", limit(auth.Resend))
	mux.HandleFunc("POST /auth/forgot-password", limit(auth.ForgotPassword))
	mux.HandleFunc("POST /auth/reset-password", limit(auth.ResetPassword))

	// ============================================================================
	// ACCOUNT
	// ============================================================================

	mux.HandleFunc("GET /accounts/me", middleware.RequireAuth(account.Me))
	mux.HandleFunc("PATCH /accounts/me", middleware.RequireAuth(account.Update))

	// ============================================================================
	// PROFILES
	// ============================================================================

	mux.HandleFunc("POST /profiles", middleware.RequireAuth(profile.Create))
	mux.HandleFunc("GET /profiles/me", middleware.RequireProfile(profile.Me))
	mux.HandleFunc("PATCH /profiles/me", middleware.RequireProfile(profile.Update))
	mux.HandleFunc("DELETE /profiles/me", middleware.RequireProfile(profile.Delete))
	mux.HandleFunc("GET /profiles/me/followers", middleware.RequireProfile(profile.Followers))
	mux.HandleFunc("GET /profiles/me/following", middleware.RequireProfile(profile.Following))
	mux.HandleFunc("GET /profiles/{publicID}", profile.ByPublicID)

	// Follow graph, addressed by internal profile id
	mux.HandleFunc("POST /profiles/{id}/follow", middleware.RequireProfile(profile.Follow))
	mux.HandleFunc("POST /profiles/{id}/unfollow", middleware.RequireProfile(profile.Unfollow))

	// ============================================================================
	// STORIES
	// ============================================================================

	mux.HandleFunc("POST /stories", middleware.RequireProfile(story.Create))
	mux.HandleFunc("GET /stories/active", middleware.RequireProfile(story.Active))
	mux.HandleFunc("POST /stories/{id}/view", middleware.RequireProfile(story.View))

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.RequestLogging,
		middleware.Recover,
		middleware.Authenticate(app.AccountService, app.ProfileService),
	)
}
