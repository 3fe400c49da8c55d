// Package app wires the relay's HTTP router and top-level services.
package app

import (
	"encoding/json"
	"net/http"

	"chat-relay/internal/auth"
)

// App represents the main application with its router and authentication service.
type App struct {
	Router *http.ServeMux
	Auth   *auth.Service
}

// NewApp creates and initializes a new instance of the App struct.
func NewApp() *App {
	app := &App{
		Router: http.NewServeMux(),
		Auth:   auth.NewService(),
	}

	app.initializeRoutes()
	return app
}

func (a *App) initializeRoutes() {
	a.Router.HandleFunc("/status", a.handleStatus)
	a.Router.HandleFunc("/healthz", a.handleHealth)
	a.Router.HandleFunc("/authenticate", a.handleAuthenticate)
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := a.Auth.GetStatus()
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *App) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	err := a.Auth.Authenticate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Authenticated successfully"))
}
