package storyvault

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mystira/storyvault/pkg/migration"
	"github.com/mystira/storyvault/pkg/models"
	"github.com/mystira/storyvault/pkg/store"
	"github.com/mystira/storyvault/pkg/store/validate"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  a.phases.Phase().String(),
	})
}

// Story handlers

func (a *App) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var story models.Story
	if err := json.NewDecoder(r.Body).Decode(&story); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if _, err := a.stories.Create(r.Context(), &story); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "story already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, story)
}

func (a *App) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseStoryID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story ID")
		return
	}

	story, err := a.stories.GetByID(r.Context(), id.String())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if story == nil {
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	respondJSON(w, http.StatusOK, story)
}

func (a *App) handleUpdateStory(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseStoryID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story ID")
		return
	}

	var story models.Story
	if err := json.NewDecoder(r.Body).Decode(&story); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	story.ID = id

	if _, err := a.stories.Update(r.Context(), &story); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, story)
}

func (a *App) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseStoryID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story ID")
		return
	}

	if _, err := a.stories.Delete(r.Context(), id.String()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleListStories(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	if v := r.URL.Query().Get("account_id"); v != "" {
		accountID, err := models.ParseAccountID(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid account ID")
			return
		}
		filter["account_id"] = accountID.String()
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter["status"] = v
	}

	stories, err := a.stories.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stories)
}

func (a *App) handleStoryConsistency(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseStoryID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid story ID")
		return
	}

	report, err := a.stories.ValidateConsistency(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, validate.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Account handlers

func (a *App) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var account models.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if _, err := a.accounts.Create(r.Context(), &account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "account already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (a *App) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAccountID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	account, err := a.accounts.GetByID(r.Context(), id.String())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (a *App) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAccountID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	var account models.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	account.ID = id

	if _, err := a.accounts.Update(r.Context(), &account); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (a *App) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAccountID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	if _, err := a.accounts.Delete(r.Context(), id.String()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleAccountConsistency(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseAccountID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	report, err := a.accounts.ValidateConsistency(r.Context(), id.String())
	if err != nil {
		if errors.Is(err, validate.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Operational handlers

type statusResponse struct {
	Phase          string    `json:"phase"`
	StoryBreaker   string    `json:"story_breaker"`
	AccountBreaker string    `json:"account_breaker"`
	StoryCache     cacheInfo `json:"story_cache"`
	AccountCache   cacheInfo `json:"account_cache"`
	SweepLastRun   time.Time `json:"sweep_last_run"`
	SweepDivergent int       `json:"sweep_divergent"`
}

type cacheInfo struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	storyHits, storyMisses := a.stories.CacheStats()
	accountHits, accountMisses := a.accounts.CacheStats()
	inconsistent, lastRun := a.runner.Inconsistent()

	respondJSON(w, http.StatusOK, statusResponse{
		Phase:          a.phases.Phase().String(),
		StoryBreaker:   a.stories.Coordinator().Breaker().State().String(),
		AccountBreaker: a.accounts.Coordinator().Breaker().State().String(),
		StoryCache:     cacheInfo{Hits: storyHits, Misses: storyMisses},
		AccountCache:   cacheInfo{Hits: accountHits, Misses: accountMisses},
		SweepLastRun:   lastRun,
		SweepDivergent: len(inconsistent),
	})
}

func (a *App) handleGetPhase(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"phase": a.phases.Phase().String()})
}

func (a *App) handleSetPhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phase string `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	phase, err := migration.ParsePhase(req.Phase)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	previous := a.phases.Phase()
	a.phases.SetPhase(phase)
	a.logger.Info("migration phase changed",
		"from", previous.String(), "to", phase.String())
	respondJSON(w, http.StatusOK, map[string]string{
		"previous": previous.String(),
		"phase":    phase.String(),
	})
}
