package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"accesscontrol/internal/delivery/http/controllers"
	"accesscontrol/internal/delivery/http/helpers"
	"accesscontrol/internal/delivery/http/middleware"
	"accesscontrol/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes.
// ws may be nil, in which case /ws is not served.
func NewRouter(
	inviteController *controllers.InviteController,
	enrollmentController *controllers.EnrollmentController,
	ws http.Handler,
	verifier domain.TokenVerifier,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return auth(middleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)(next))
	}

	// Invites
	mux.HandleFunc("POST /invites", admin(inviteController.Issue))
	mux.HandleFunc("GET /invites/{token}/verify", inviteController.Verify)
	mux.HandleFunc("GET /sites/{siteID}/invites", admin(inviteController.ListSiteInvites))

	// Enrollments
	mux.HandleFunc("POST /enrollments", enrollmentController.Complete)
	mux.HandleFunc("GET /residents/{residentID}/sync-status", admin(enrollmentController.SyncStatus))

	// Realtime
	if ws != nil {
		mux.HandleFunc("GET /ws", auth(ws.ServeHTTP))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
