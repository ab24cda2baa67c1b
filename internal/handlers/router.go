package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/buildinfo"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/metrics"
	"github.com/xelth-com/commissariat/internal/middleware"
	"github.com/xelth-com/commissariat/internal/policy"
	"github.com/xelth-com/commissariat/internal/services/accounts"
	"github.com/xelth-com/commissariat/internal/services/declarations"
	"github.com/xelth-com/commissariat/internal/services/stations"
	"github.com/xelth-com/commissariat/internal/services/uploads"
	"github.com/xelth-com/commissariat/internal/websocket"
)

// Pinger reports database health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer dispatches to
type Deps struct {
	Accounts     *accounts.Service
	Stations     *stations.Service
	Declarations *declarations.Service
	Uploads      *uploads.Store
	Hub          *websocket.Hub
	Tokens       middleware.TokenVerifier
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	// DB is optional; without it the status endpoint reports no database
	DB Pinger
}

// Router wraps the mux router and the services
type Router struct {
	*mux.Router
	accounts     *accounts.Service
	stations     *stations.Service
	declarations *declarations.Service
	uploads      *uploads.Store
	hub          *websocket.Hub
	db           Pinger
	authn        *middleware.Authenticator
	log          *logrus.Entry
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	log := logger.Or(d.Logger)
	r := &Router{
		Router:       mux.NewRouter(),
		accounts:     d.Accounts,
		stations:     d.Stations,
		declarations: d.Declarations,
		uploads:      d.Uploads,
		hub:          d.Hub,
		db:           d.DB,
		authn:        middleware.NewAuthenticator(d.Tokens, d.Accounts),
		log:          log.Component("http"),
	}

	r.Use(middleware.Logging(log.Component("access")))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Auth routes
	authRoutes := api.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/register", r.register).Methods("POST")
	authRoutes.HandleFunc("/login", r.login).Methods("POST")
	authRoutes.Handle("/logout", r.protect(r.logout)).Methods("POST")
	authRoutes.Handle("/me", r.protect(r.me)).Methods("GET")
	authRoutes.Handle("/me", r.protect(r.updateMe)).Methods("PUT")
	authRoutes.Handle("/me/password", r.protect(r.changePassword)).Methods("PUT")

	// Stations: public reads, admin writes
	st := api.PathPrefix("/stations").Subrouter()
	st.HandleFunc("", r.listStations).Methods("GET")
	st.HandleFunc("/{id}", r.getStation).Methods("GET")
	st.Handle("", r.protect(r.createStation)).Methods("POST")
	st.Handle("/{id}", r.protect(r.updateStation)).Methods("PUT")
	st.Handle("/{id}", r.protect(r.deleteStation)).Methods("DELETE")

	// Account administration
	users := api.PathPrefix("/users").Subrouter()
	users.Use(r.authn.Require)
	users.HandleFunc("", r.listUsers).Methods("GET")
	users.HandleFunc("", r.createUser).Methods("POST")
	users.HandleFunc("/{id}", r.getUser).Methods("GET")
	users.HandleFunc("/{id}", r.updateUser).Methods("PUT")
	users.HandleFunc("/{id}", r.deleteUser).Methods("DELETE")

	// Declarations
	decl := api.PathPrefix("/declarations").Subrouter()
	decl.Use(r.authn.Require)
	decl.HandleFunc("", r.createDeclaration).Methods("POST")
	decl.HandleFunc("", r.listDeclarations).Methods("GET")
	decl.HandleFunc("/mine", r.listMyDeclarations).Methods("GET")
	decl.HandleFunc("/station/{id}", r.listStationDeclarations).Methods("GET")
	decl.HandleFunc("/station/{id}/stats", r.stationStats).Methods("GET")
	decl.HandleFunc("/{id}", r.getDeclaration).Methods("GET")
	decl.HandleFunc("/{id}", r.updateDeclaration).Methods("PUT")
	decl.HandleFunc("/{id}", r.deleteDeclaration).Methods("DELETE")
	decl.HandleFunc("/{id}/status", r.updateDeclarationStatus).Methods("PUT")
	decl.HandleFunc("/{id}/hide", r.hideDeclaration).Methods("POST")
	decl.HandleFunc("/{id}/receipt", r.issueReceipt).Methods("POST")
	decl.HandleFunc("/{id}/receipt", r.downloadReceipt).Methods("GET")

	// Photos
	if r.uploads != nil {
		api.Handle("/uploads", r.protect(r.uploadPhotos)).Methods("POST")
		r.PathPrefix(uploads.PublicPrefix).Handler(http.StripPrefix(uploads.PublicPrefix, noListing(http.FileServer(http.Dir(r.uploads.Dir()))))).Methods("GET")
	}

	// Notifications
	if r.hub != nil {
		r.HandleFunc("/ws", r.serveWs).Methods("GET")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})

	return r
}

func (r *Router) protect(h http.HandlerFunc) http.Handler {
	return r.authn.Require(h)
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus reports build information and database reachability
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	dbStatus := "not configured"
	if r.db != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := r.db.Ping(ctx); err != nil {
			r.log.WithError(err).Warn("database ping failed")
			dbStatus = "unavailable"
		} else {
			dbStatus = "ok"
		}
	}
	clients := 0
	if r.hub != nil {
		clients = r.hub.Count()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "running",
		"build":     buildinfo.Current(time.Now().UTC()),
		"database":  dbStatus,
		"wsClients": clients,
	})
}

// serveWs authenticates with the token query parameter; browsers cannot set
// headers on websocket handshakes
func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "token required")
		return
	}
	ctx, err := r.authn.Authenticate(req.Context(), token)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	actor, _ := middleware.ActorFrom(ctx)
	websocket.ServeWs(r.hub, actor, w, req)
}

func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "" || strings.HasSuffix(req.URL.Path, "/") {
			respondError(w, http.StatusNotFound, "file not found")
			return
		}
		next.ServeHTTP(w, req)
	})
}

// actor returns the authenticated caller; routes are wrapped by Require
func actor(req *http.Request) policy.Actor {
	a, _ := middleware.ActorFrom(req.Context())
	return a
}

func decodeJSON(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return apperrors.Validation("invalid request payload: %v", err)
	}
	return nil
}

// fail maps an error onto its HTTP status and logs unexpected failures
func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		r.log.WithError(err).WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
		}).Error("request failed")
		respondError(w, status, "internal server error")
		return
	}
	body := map[string]interface{}{"error": err.Error()}
	if fields := apperrors.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	respondJSON(w, status, body)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
