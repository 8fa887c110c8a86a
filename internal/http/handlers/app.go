package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"festcred/internal/service"
	"festcred/internal/storage"
)

// App is the handler container; the router mounts its methods.
type App struct {
	Service *service.RegistrationService
	Store   *storage.FileStore
	Signer  *storage.URLSigner
	Logger  zerolog.Logger
}

func NewApp(svc *service.RegistrationService, store *storage.FileStore, signer *storage.URLSigner, logger zerolog.Logger) *App {
	return &App{Service: svc, Store: store, Signer: signer, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
