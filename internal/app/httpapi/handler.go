// Package httpapi is the request layer: it maps HTTP requests onto engine
// operations and engine errors onto status codes. No business rules live
// here.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/stellarworks/voyager/internal/app"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/errors"
	"github.com/stellarworks/voyager/internal/httputil"
	"github.com/stellarworks/voyager/internal/logging"
	"github.com/stellarworks/voyager/internal/middleware"
)

// Options configures the router.
type Options struct {
	// AuthPublicKey verifies bearer tokens on /api/v1 routes. Nil disables
	// authentication (tests and local development only).
	AuthPublicKey interface{}
	// StaticDir, when set, serves the game frontend from "/".
	StaticDir string
	// RateLimitPerSecond and RateLimitBurst throttle authenticated callers.
	// Zero disables rate limiting.
	RateLimitPerSecond int
	RateLimitBurst     int
}

type handler struct {
	app *app.Application
	log *logging.Logger
}

// NewRouter builds the full HTTP surface: health and metrics endpoints, the
// authenticated /api/v1 API and optional static frontend serving.
func NewRouter(application *app.Application, log *logging.Logger, opts Options) *mux.Router {
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.Use(middleware.TracingMiddleware(log))
	r.Use(mux.MiddlewareFunc(middleware.NewCORSMiddleware([]string{"*"}).Handler))
	r.Use(middleware.MetricsMiddleware("voyager", application.Metrics))

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.AuthPublicKey != nil {
		auth := middleware.NewAuthMiddleware(opts.AuthPublicKey, log, nil)
		api.Use(mux.MiddlewareFunc(auth.Handler))
	}
	api.Use(mux.MiddlewareFunc(middleware.RequireUserID))
	if opts.RateLimitPerSecond > 0 {
		limiter := middleware.NewRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst, log)
		api.Use(mux.MiddlewareFunc(limiter.Handler))
	}

	api.HandleFunc("/missions", h.listMissions).Methods(http.MethodGet)
	api.HandleFunc("/missions/start", h.startMission).Methods(http.MethodPost)
	api.HandleFunc("/missions/cancel", h.cancelMission).Methods(http.MethodPost)
	api.HandleFunc("/missions/complete", h.completeMission).Methods(http.MethodPost)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/journeys", h.journeys).Methods(http.MethodGet)
	api.HandleFunc("/profile", h.registerProfile).Methods(http.MethodPost)

	if opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listMissions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.app.Engine.ListMissions(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, defs)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Engine.Status(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) journeys(w http.ResponseWriter, r *http.Request) {
	events, err := h.app.Engine.Journey(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *handler) registerProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Ship profile.ShipStatus `json:"ship"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidFormat("body", err.Error()))
		return
	}

	p, err := h.app.Engine.RegisterProfile(r.Context(), middleware.GetUserID(r.Context()), payload.Ship)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *handler) startMission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MissionID string `json:"mission_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidFormat("body", err.Error()))
		return
	}
	if strings.TrimSpace(payload.MissionID) == "" {
		httputil.WriteError(w, errors.MissingParameters("mission_id"))
		return
	}

	active, err := h.app.Engine.Start(r.Context(), middleware.GetUserID(r.Context()), payload.MissionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, active)
}

func (h *handler) cancelMission(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.app.Engine.Cancel(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *handler) completeMission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MissionID   string `json:"mission_id"`
		MissionName string `json:"mission_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, errors.InvalidFormat("body", err.Error()))
		return
	}

	receipt, err := h.app.Engine.Complete(r.Context(), middleware.GetUserID(r.Context()),
		strings.TrimSpace(payload.MissionID), strings.TrimSpace(payload.MissionName))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
