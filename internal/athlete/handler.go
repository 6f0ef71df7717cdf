package athlete

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2beens/velotrain/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type athleteRepo interface {
	Get(ctx context.Context, athleteID int) (Athlete, error)
	Update(ctx context.Context, athleteID int, params UpdateParams) error
}

type Handler struct {
	repo athleteRepo
}

func NewHandler(repo athleteRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	athleteID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	a, err := handler.repo.Get(r.Context(), athleteID)
	if err != nil {
		if errors.Is(err, ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("get athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	athleteJson, err := json.Marshal(a)
	if err != nil {
		log.Errorf("marshal athlete: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, athleteJson)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	athleteID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	var params UpdateParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Errorf("update athlete, unmarshal json params: %s", err)
		http.Error(w, "update athlete failed", http.StatusBadRequest)
		return
	}
	if params.Empty() {
		http.Error(w, "error, no fields to update", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(r.Context(), athleteID, params); err != nil {
		if errors.Is(err, ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("update athlete %d: %s", athleteID, err)
		http.Error(w, "update athlete failed", http.StatusInternalServerError)
		return
	}

	updated, err := handler.repo.Get(r.Context(), athleteID)
	if err != nil {
		log.Errorf("get updated athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	updatedJson, err := json.Marshal(updated)
	if err != nil {
		log.Errorf("marshal updated athlete: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("athlete updated: [%d] ftp: %.0f", updated.ID, updated.FTPw)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, updatedJson)
}
