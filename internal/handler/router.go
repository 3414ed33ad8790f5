package handler

import (
	"net/http"

	"venture-plan-server/internal/config"
	"venture-plan-server/internal/metrics"
	"venture-plan-server/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Ventures  *VentureHandler
	Versions  *VersionHandler
	WebSocket *WebSocketHandler

	JWTSecret string
	JWTIssuer string
	CORS      config.CORSConfig

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// MetricsHandler is mounted at MetricsPath when not nil.
	MetricsHandler http.Handler
	MetricsPath    string
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

	api.HandleFunc("/ventures", cfg.Ventures.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/ventures", cfg.Ventures.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/ventures/{id}", cfg.Ventures.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/ventures/{id}/state", cfg.Ventures.UpdateState).Methods("PUT", "OPTIONS")
	api.HandleFunc("/ventures/{id}/collaborators", cfg.Ventures.AddCollaborator).Methods("POST", "OPTIONS")

	api.HandleFunc("/ventures/{id}/versions", cfg.Versions.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/ventures/{id}/versions", cfg.Versions.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/ventures/{id}/versions/{vid}/restore", cfg.Versions.Restore).Methods("POST", "OPTIONS")

	api.HandleFunc("/versions/{vid}", cfg.Versions.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/versions/{vid}", cfg.Versions.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/versions/{vid}/diff", cfg.Versions.Diff).Methods("GET", "OPTIONS")

	api.HandleFunc("/diff", cfg.Versions.Compare).Methods("POST", "OPTIONS")

	if cfg.WebSocket != nil {
		r.HandleFunc("/ws", cfg.WebSocket.HandleConnection)
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler).Methods("GET")
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"venture-plan-server"}`))
}
