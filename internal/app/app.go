// Package app wires the HTTP layer around the proxy core: routing, CORS, and
// the client authentication gate.
package app

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"anonchat-proxy/internal/auth"
	"anonchat-proxy/internal/llm"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// App represents the application with its router and core server state.
type App struct {
	Router chi.Router
	State  *llm.ServerState
}

// NewApp creates and initializes the application around the given core state.
func NewApp(state *llm.ServerState) *App {
	a := &App{
		Router: chi.NewRouter(),
		State:  state,
	}

	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(corsMiddleware)

	a.Router.Get("/status", a.handleStatus)
	a.Router.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Post("/v1/chat/completions", a.State.HandleChatCompletion)
	})

	return a
}

// corsMiddleware mirrors the permissive CORS policy of the original
// deployment: any origin, any headers, GET/POST/OPTIONS.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware gates requests on a bearer credential: the static API token,
// or a JWT when AUTH_JWT_SECRET is configured. DISABLE_AUTH bypasses the gate
// for local development.
func (a *App) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := llm.GetConfig()
		if cfg.DisableAuth {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || bearer == "" {
			a.deny(w, r)
			return
		}
		if cfg.AuthJWTSecret != "" {
			if _, err := auth.ValidateAccessToken(bearer, cfg.AuthJWTSecret); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		if auth.VerifyAPIToken(bearer, cfg.APIToken) {
			next.ServeHTTP(w, r)
			return
		}

		a.deny(w, r)
	})
}

func (a *App) deny(w http.ResponseWriter, r *http.Request) {
	log.Printf("[handle] denied %s %s: unauthorized", r.Method, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"status": http.StatusUnauthorized,
		"body":   "Unauthorized",
	})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, ok := a.State.Service.Sessions().Snapshot()
	status := "rotating"
	if ok {
		status = "ready"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
