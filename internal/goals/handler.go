package goals

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

type goalsRepo interface {
	DeactivateAllAndInsert(ctx context.Context, goal Goal) (int, error)
	Active(ctx context.Context, athleteID int) (Goal, bool, error)
}

type Handler struct {
	repo goalsRepo
}

func NewHandler(repo goalsRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

type setGoalRequest struct {
	AthleteID        int      `json:"athleteId"`
	TargetWeightKg   *float64 `json:"targetWeightKg"`
	TargetBodyFatPct *float64 `json:"targetBodyfatPct"`
	TargetFTPw       *float64 `json:"targetFtpW"`
	GoalPrompt       string   `json:"goalPrompt"`
	TimeframeWeeks   *int     `json:"timeframeWeeks"`
}

// HandleSet stores a new active goal, retiring any previous one
func (handler *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "goals.handleSet")
	defer span.End()

	var req setGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("set goal, unmarshal json: %s", err)
		http.Error(w, "set goal failed", http.StatusBadRequest)
		return
	}

	if req.AthleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	goal := Goal{
		AthleteID:        req.AthleteID,
		TargetWeightKg:   req.TargetWeightKg,
		TargetBodyFatPct: req.TargetBodyFatPct,
		TargetFTPw:       req.TargetFTPw,
		GoalPrompt:       req.GoalPrompt,
		TimeframeWeeks:   req.TimeframeWeeks,
	}
	if goal.Empty() {
		http.Error(w, "error, goal empty", http.StatusBadRequest)
		return
	}

	id, err := handler.repo.DeactivateAllAndInsert(ctx, goal)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("set goal for athlete %d: %s", req.AthleteID, err)
		http.Error(w, "set goal failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(struct {
		GoalID int `json:"goalId"`
	}{GoalID: id})
	if err != nil {
		log.Errorf("marshal set goal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

type activeGoalResponse struct {
	AthleteID int   `json:"athleteId"`
	Goal      *Goal `json:"goal"`
}

// HandleActive returns the athlete's current goal, or a null goal when
// none is set
func (handler *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "goals.handleActive")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	resp := activeGoalResponse{AthleteID: athleteID}
	goal, found, err := handler.repo.Active(ctx, athleteID)
	if err != nil {
		log.Errorf("active goal for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if found {
		resp.Goal = &goal
	}

	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal active goal: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
