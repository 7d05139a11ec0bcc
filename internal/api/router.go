package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/planora/server/internal/api/handlers"
	"github.com/planora/server/internal/api/middleware"
	"github.com/planora/server/internal/auth"
	"github.com/planora/server/internal/config"
	"github.com/planora/server/internal/domain/events"
	"github.com/planora/server/internal/domain/registrations"
	"github.com/planora/server/internal/domain/users"
	"github.com/planora/server/internal/metrics"
)

// Deps carries the wired services into the router. Construction happens in
// the serve command; the router only arranges routes and middleware.
type Deps struct {
	Config     config.Config
	Logger     zerolog.Logger
	Pool       *pgxpool.Pool
	JWT        *auth.JWTManager
	Events     *events.Service
	Lifecycle  *events.LifecycleService
	Admissions *registrations.Service
	Users      *users.Service
	MediaDir   string // non-empty enables static serving of disk-stored uploads
}

func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment

	eventsHandler := handlers.NewEventsHandler(deps.Events, deps.Lifecycle, env)
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Admissions, env)
	authHandler := handlers.NewAuthHandler(deps.Users, env)
	usersHandler := handlers.NewUsersHandler(deps.Users, env)

	authed := middleware.Authenticate(deps.JWT, env)
	optional := middleware.OptionalAuthenticate(deps.JWT)
	manage := middleware.RequireRole(env, auth.RoleAdmin, auth.RoleOrganizer)
	adminOnly := middleware.RequireRole(env, auth.RoleAdmin)

	// The tier wrapper must run before the limiter so the limiter sees it.
	limit := middleware.RateLimit(deps.Config.RateLimit)
	public := limit
	userTier := func(next http.Handler) http.Handler {
		return middleware.WithRateLimitTier(middleware.TierUser)(limit(next))
	}
	loginTier := func(next http.Handler) http.Handler {
		return middleware.WithRateLimitTier(middleware.TierLogin)(limit(next))
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(deps.Pool))
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/v1/auth/signup", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(http.HandlerFunc(authHandler.Signup)),
	}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(http.HandlerFunc(authHandler.Login)),
	}))

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodGet:  public(optional(http.HandlerFunc(eventsHandler.List))),
		http.MethodPost: authed(manage(userTier(http.HandlerFunc(eventsHandler.Create)))),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    public(http.HandlerFunc(eventsHandler.Get)),
		http.MethodPatch:  authed(manage(userTier(http.HandlerFunc(eventsHandler.Update)))),
		http.MethodDelete: authed(manage(userTier(http.HandlerFunc(eventsHandler.Delete)))),
	}))
	mux.Handle("/api/v1/events/{id}/images", methodMux(map[string]http.Handler{
		http.MethodDelete: authed(manage(userTier(http.HandlerFunc(eventsHandler.DeleteImage)))),
	}))
	mux.Handle("/api/v1/events/{id}/status", methodMux(map[string]http.Handler{
		http.MethodPut: authed(adminOnly(http.HandlerFunc(eventsHandler.SetStatus))),
	}))
	mux.Handle("/api/v1/events/{id}/attendees", methodMux(map[string]http.Handler{
		http.MethodGet: authed(http.HandlerFunc(registrationsHandler.ListAttendees)),
	}))

	mux.Handle("/api/v1/registrations", methodMux(map[string]http.Handler{
		http.MethodPost: authed(userTier(http.HandlerFunc(registrationsHandler.Register))),
	}))
	mux.Handle("/api/v1/registrations/mine", methodMux(map[string]http.Handler{
		http.MethodGet: authed(http.HandlerFunc(registrationsHandler.ListMine)),
	}))

	mux.Handle("/api/v1/organizers", methodMux(map[string]http.Handler{
		http.MethodGet: authed(http.HandlerFunc(usersHandler.Organizers)),
	}))
	mux.Handle("/api/v1/organizers/{id}/events", methodMux(map[string]http.Handler{
		http.MethodGet: authed(http.HandlerFunc(eventsHandler.ListByOrganizer)),
	}))

	mux.Handle("/api/v1/users", methodMux(map[string]http.Handler{
		http.MethodGet: authed(adminOnly(http.HandlerFunc(usersHandler.List))),
	}))
	mux.Handle("/api/v1/users/me", methodMux(map[string]http.Handler{
		http.MethodGet: authed(http.HandlerFunc(usersHandler.Me)),
	}))
	mux.Handle("/api/v1/users/{id}", methodMux(map[string]http.Handler{
		http.MethodPatch: authed(http.HandlerFunc(usersHandler.UpdateProfile)),
	}))
	mux.Handle("/api/v1/users/{id}/status", methodMux(map[string]http.Handler{
		http.MethodPut: authed(adminOnly(http.HandlerFunc(usersHandler.SetStatus))),
	}))

	if deps.MediaDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(deps.MediaDir))))
	}

	var handler http.Handler = metrics.HTTPMiddleware(mux)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
