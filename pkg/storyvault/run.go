package storyvault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router builds the HTTP API:
//
//	GET    /health                          - liveness
//	POST   /api/stories                     - create story
//	GET    /api/stories                     - list stories (?account_id=, ?status=)
//	GET    /api/stories/{id}                - get story
//	PUT    /api/stories/{id}                - update story
//	DELETE /api/stories/{id}                - delete story
//	GET    /api/stories/{id}/consistency    - cross-store consistency report
//	POST   /api/accounts                    - create account
//	GET    /api/accounts/{id}               - get account
//	PUT    /api/accounts/{id}               - update account
//	DELETE /api/accounts/{id}               - delete account
//	GET    /api/accounts/{id}/consistency   - cross-store consistency report
//	GET    /api/status                      - phase, breaker, cache, sweep state
//	GET    /api/admin/phase                 - current migration phase
//	POST   /api/admin/phase                 - transition migration phase
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/stories", a.handleCreateStory).Methods("POST")
	api.HandleFunc("/stories", a.handleListStories).Methods("GET")
	api.HandleFunc("/stories/{id}", a.handleGetStory).Methods("GET")
	api.HandleFunc("/stories/{id}", a.handleUpdateStory).Methods("PUT")
	api.HandleFunc("/stories/{id}", a.handleDeleteStory).Methods("DELETE")
	api.HandleFunc("/stories/{id}/consistency", a.handleStoryConsistency).Methods("GET")

	api.HandleFunc("/accounts", a.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{id}", a.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}", a.handleUpdateAccount).Methods("PUT")
	api.HandleFunc("/accounts/{id}", a.handleDeleteAccount).Methods("DELETE")
	api.HandleFunc("/accounts/{id}/consistency", a.handleAccountConsistency).Methods("GET")

	api.HandleFunc("/status", a.handleStatus).Methods("GET")
	api.HandleFunc("/admin/phase", a.handleGetPhase).Methods("GET")
	api.HandleFunc("/admin/phase", a.handleSetPhase).Methods("POST")

	return router
}

// Run starts the HTTP server and the background consistency sweep,
// blocking until ctx is cancelled or the server fails. Shutdown gives
// in-flight requests five seconds to complete.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	a.runner.Start(ctx)

	addr := fmt.Sprintf(":%s", a.config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: a.Router(),
	}

	a.logger.Info("starting server",
		"addr", addr,
		"phase", a.phases.Phase().String(),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
