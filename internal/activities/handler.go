package activities

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	dateLayout         = "2006-01-02"
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

type activitiesRepo interface {
	Add(ctx context.Context, activity Activity) (int, error)
	ExistsDuplicate(ctx context.Context, activity Activity) (bool, error)
	ListRecent(ctx context.Context, athleteID, limit int) ([]Activity, error)
}

type Handler struct {
	repo activitiesRepo
}

func NewHandler(repo activitiesRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

type logActivityRequest struct {
	AthleteID       int      `json:"athleteId"`
	Date            string   `json:"date"`
	Sport           string   `json:"sport"`
	Title           string   `json:"title"`
	DurationMin     float64  `json:"durationMin"`
	IntensityFactor *float64 `json:"intensityFactor"`
	TSS             *float64 `json:"tss"`
}

// HandleLog records a completed training session. The stress score is
// either provided directly or estimated from duration and intensity
// factor.
func (handler *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "activities.handleLog")
	defer span.End()

	var req logActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("log activity, unmarshal json: %s", err)
		http.Error(w, "log activity failed", http.StatusBadRequest)
		return
	}

	if req.AthleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, "invalid_date_format (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	sport, err := ParseSport(req.Sport)
	if err != nil {
		http.Error(w, "error, sport invalid", http.StatusBadRequest)
		return
	}
	if req.DurationMin <= 0 {
		http.Error(w, "error, duration invalid", http.StatusBadRequest)
		return
	}

	var tss float64
	switch {
	case req.TSS != nil:
		tss = *req.TSS
	case req.IntensityFactor != nil:
		tss = float64(training.EstimateTSS(
			int(math.Round(req.DurationMin)), *req.IntensityFactor,
		))
	}

	activity := Activity{
		AthleteID:   req.AthleteID,
		Date:        date,
		Sport:       sport,
		Title:       req.Title,
		DurationMin: req.DurationMin,
		TSS:         tss,
		Source:      "manual",
	}

	id, err := handler.repo.Add(ctx, activity)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("log activity for athlete %d: %s", req.AthleteID, err)
		http.Error(w, "log activity failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(struct {
		ID  int     `json:"id"`
		TSS float64 `json:"tss"`
	}{ID: id, TSS: tss})
	if err != nil {
		log.Errorf("marshal log activity response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

// HandleRecent lists the athlete's most recent activities, newest first
func (handler *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "activities.handleRecent")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	limit := defaultRecentLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err = strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > maxRecentLimit {
			http.Error(w, "error, limit invalid", http.StatusBadRequest)
			return
		}
	}

	activities, err := handler.repo.ListRecent(ctx, athleteID, limit)
	if err != nil {
		log.Errorf("recent activities for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if activities == nil {
		activities = []Activity{}
	}

	respJson, err := json.Marshal(activities)
	if err != nil {
		log.Errorf("marshal recent activities: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
