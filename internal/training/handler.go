package training

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/goals"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

type athleteGetter interface {
	Get(ctx context.Context, id int) (athlete.Athlete, error)
}

type ftpGetter interface {
	LatestFTP(ctx context.Context, athleteID int) (time.Time, float64, string, bool, error)
}

type blocksRepo interface {
	AddBlock(ctx context.Context, block TrainingBlock) (int, error)
	LatestBlock(ctx context.Context, athleteID int) (TrainingBlock, bool, error)
}

type stressReader interface {
	TrailingSumTSS(ctx context.Context, athleteID int, asOf time.Time, windowDays int) (float64, error)
}

type goalsReader interface {
	Active(ctx context.Context, athleteID int) (goals.Goal, bool, error)
}

type Handler struct {
	generator    *Generator
	athleteRepo  athleteGetter
	ftpRepo      ftpGetter
	blocksRepo   blocksRepo
	stressReader stressReader
	goalsReader  goalsReader
	metrics      *metrics.Manager
	now          func() time.Time
}

func NewHandler(
	generator *Generator,
	athleteRepo athleteGetter,
	ftpRepo ftpGetter,
	blocksRepo blocksRepo,
	stressReader stressReader,
	goalsReader goalsReader,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		generator:    generator,
		athleteRepo:  athleteRepo,
		ftpRepo:      ftpRepo,
		blocksRepo:   blocksRepo,
		stressReader: stressReader,
		goalsReader:  goalsReader,
		metrics:      metricsManager,
		now:          time.Now,
	}
}

type weekPlanResponse struct {
	AthleteID    int            `json:"athleteId"`
	WeekStart    string         `json:"weekStart"`
	RecoveryWeek bool           `json:"recoveryWeek"`
	Fatigue7dTSS int            `json:"fatigue7dTss"`
	FTPw         float64        `json:"ftpW"`
	FTPSource    string         `json:"ftpSource"`
	Block        *TrainingBlock `json:"block"`
	Goal         *goals.Goal    `json:"goal"`
	Sessions     []Session      `json:"sessions"`
}

// HandleWeekPlan generates the athlete's next 7-day microcycle from the
// current block position, realized trailing load and the latest known
// FTP.
func (handler *Handler) HandleWeekPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "training.handleWeekPlan")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	startDate := day(handler.now())
	if startParam := r.URL.Query().Get("start"); startParam != "" {
		startDate, err = time.Parse(dateLayout, startParam)
		if err != nil {
			http.Error(w, "invalid_date_format (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}
	indoor := r.URL.Query().Get("indoor") == "true"

	a, err := handler.athleteRepo.Get(ctx, athleteID)
	if err != nil {
		if errors.Is(err, athlete.ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("week plan, get athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	ftpW, ftpSource := a.FTPw, "profile"
	if _, value, source, found, err := handler.ftpRepo.LatestFTP(ctx, athleteID); err != nil {
		log.Errorf("week plan, latest ftp for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	} else if found {
		ftpW, ftpSource = value, source
	}
	if ftpW <= 0 {
		ftpSource = "unknown"
	}

	fatigueSum, err := handler.stressReader.TrailingSumTSS(ctx, athleteID, startDate.AddDate(0, 0, -1), AcuteWindowDays)
	if err != nil {
		log.Errorf("week plan, trailing stress for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	fatigue7dTSS := int(fatigueSum)

	var block *TrainingBlock
	latestBlock, found, err := handler.blocksRepo.LatestBlock(ctx, athleteID)
	if err != nil {
		log.Errorf("week plan, latest block for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if found {
		block = &latestBlock
	}

	sessions := handler.generator.WeekPlan(WeekPlanParams{
		FTPw:         ftpW,
		Block:        block,
		StartDate:    startDate,
		Fatigue7dTSS: fatigue7dTSS,
		Indoor:       indoor,
	})

	recoveryWeek := false
	if block != nil {
		recoveryWeek = IsRecoveryWeek(&block.StartDate, block.BuildWeeks, block.RecoveryWeeks, startDate)
	}

	var goal *goals.Goal
	if activeGoal, found, err := handler.goalsReader.Active(ctx, athleteID); err != nil {
		// the goal is decoration on the plan, keep going without it
		log.Errorf("week plan, active goal for athlete %d: %s", athleteID, err)
	} else if found {
		goal = &activeGoal
	}

	handler.metrics.CounterPlansGenerated.Inc()

	respJson, err := json.Marshal(weekPlanResponse{
		AthleteID:    athleteID,
		WeekStart:    startDate.Format(dateLayout),
		RecoveryWeek: recoveryWeek,
		Fatigue7dTSS: fatigue7dTSS,
		FTPw:         ftpW,
		FTPSource:    ftpSource,
		Block:        block,
		Goal:         goal,
		Sessions:     sessions,
	})
	if err != nil {
		log.Errorf("marshal week plan: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

type addBlockRequest struct {
	AthleteID     int    `json:"athleteId"`
	StartDate     string `json:"startDate"`
	BuildWeeks    int    `json:"buildWeeks"`
	RecoveryWeeks int    `json:"recoveryWeeks"`
}

// HandleAddBlock starts a new build/recovery cycle for the athlete
func (handler *Handler) HandleAddBlock(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "training.handleAddBlock")
	defer span.End()

	var req addBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("add block, unmarshal json: %s", err)
		http.Error(w, "add block failed", http.StatusBadRequest)
		return
	}

	if req.AthleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "invalid_date_format (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	if req.BuildWeeks == 0 {
		req.BuildWeeks = DefaultBuildWeeks
		req.RecoveryWeeks = DefaultRecoveryWeeks
	}
	if req.BuildWeeks < 1 || req.RecoveryWeeks < 0 {
		http.Error(w, "error, block weeks invalid", http.StatusBadRequest)
		return
	}

	id, err := handler.blocksRepo.AddBlock(ctx, TrainingBlock{
		AthleteID:     req.AthleteID,
		StartDate:     startDate,
		BuildWeeks:    req.BuildWeeks,
		RecoveryWeeks: req.RecoveryWeeks,
	})
	if err != nil {
		log.Errorf("add block for athlete %d: %s", req.AthleteID, err)
		http.Error(w, "add block failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(struct {
		ID int `json:"id"`
	}{ID: id})
	if err != nil {
		log.Errorf("marshal add block response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}
