package handler

import (
	"net/http"

	"collabnotes-server/internal/config"
	"collabnotes-server/internal/middleware"

	"github.com/gorilla/mux"
)

func NewRouter(cfg *config.Config, notes *NoteHandler, socket *WebSocketHandler, health *HealthHandler) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RequestsPerMinute))
	}

	api.HandleFunc("/notes", notes.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes", notes.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes/{id}", notes.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/{id}", notes.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notes/{id}", notes.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/notes/{id}/editors", notes.Editors).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", socket.HandleConnection)

	r.HandleFunc("/health", health.Health).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	return r
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Collaborative Notes API","version":"1.0.0","endpoints":{"/api/v1/notes":"GET, POST","/api/v1/notes/{id}":"GET, PUT, DELETE","/api/v1/notes/{id}/editors":"GET","/ws":"WebSocket (join-note, leave-note, update-note, receive-update)"}}`))
}
