package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/internal/training"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	dateLayout = "2006-01-02"

	// weight fallback when neither profile nor metrics know it
	fallbackWeightKg = 75.0
)

type athleteGetter interface {
	Get(ctx context.Context, id int) (athlete.Athlete, error)
}

type weightReader interface {
	LatestNonNull(ctx context.Context, athleteID int, field bodymetrics.Field) (time.Time, float64, bool, error)
}

type blockReader interface {
	LatestBlock(ctx context.Context, athleteID int) (training.TrainingBlock, bool, error)
}

type Handler struct {
	athleteRepo athleteGetter
	metricsRepo weightReader
	blocksRepo  blockReader
	generator   *training.Generator
	now         func() time.Time
}

func NewHandler(
	athleteRepo athleteGetter,
	metricsRepo weightReader,
	blocksRepo blockReader,
	generator *training.Generator,
) *Handler {
	return &Handler{
		athleteRepo: athleteRepo,
		metricsRepo: metricsRepo,
		blocksRepo:  blocksRepo,
		generator:   generator,
		now:         time.Now,
	}
}

type todayResponse struct {
	AthleteID      int     `json:"athleteId"`
	Date           string  `json:"date"`
	TrainingDay    bool    `json:"trainingDay"`
	PlannedSession string  `json:"plannedSession"`
	Targets        Targets `json:"targets"`
}

// HandleToday computes the athlete's calorie and macro targets for
// today, picking the training-day or rest-day activity factor off the
// planned session.
func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "nutrition.handleToday")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	a, err := handler.athleteRepo.Get(ctx, athleteID)
	if err != nil {
		if errors.Is(err, athlete.ErrAthleteNotFound) {
			http.Error(w, "athlete_not_found", http.StatusNotFound)
			return
		}
		log.Errorf("nutrition today, get athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	weightKg := a.WeightKg
	if _, latestWeight, found, err := handler.metricsRepo.LatestNonNull(ctx, athleteID, bodymetrics.FieldWeightKg); err != nil {
		log.Errorf("nutrition today, latest weight for athlete %d: %s", athleteID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	} else if found {
		weightKg = latestWeight
	}
	if weightKg <= 0 {
		weightKg = fallbackWeightKg
	}

	today := handler.now()
	session := handler.todaySession(ctx, athleteID, a.FTPw, today)
	trainingDay := session.IntensityFactor > 0

	activityFactor := ActivityFactorRestDay
	if trainingDay {
		activityFactor = ActivityFactorTrainingDay
	}

	targets := Calculate(Params{
		Sex:            a.Sex,
		Age:            a.Age,
		HeightCm:       a.HeightCm,
		WeightKg:       weightKg,
		ActivityFactor: activityFactor,
		Goal:           GoalMaintenance,
		ProteinGPerKg:  DefaultProteinGPerKg,
		FatGPerKg:      DefaultFatGPerKg,
	})

	respJson, err := json.Marshal(todayResponse{
		AthleteID:      athleteID,
		Date:           today.Format(dateLayout),
		TrainingDay:    trainingDay,
		PlannedSession: session.Title,
		Targets:        targets,
	})
	if err != nil {
		log.Errorf("marshal nutrition today: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// todaySession resolves today's planned session from the athlete's
// current block position. Block lookup failure degrades to the default
// block instead of failing the whole request.
func (handler *Handler) todaySession(ctx context.Context, athleteID int, ftpW float64, today time.Time) training.Session {
	var block *training.TrainingBlock
	latestBlock, found, err := handler.blocksRepo.LatestBlock(ctx, athleteID)
	if err != nil {
		log.Errorf("nutrition today, latest block for athlete %d: %s", athleteID, err)
	} else if found {
		block = &latestBlock
	}

	plan := handler.generator.WeekPlan(training.WeekPlanParams{
		FTPw:      ftpW,
		Block:     block,
		StartDate: today,
	})
	return plan[0]
}
