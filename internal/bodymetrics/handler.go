package bodymetrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

type metricsRepo interface {
	Upsert(ctx context.Context, obs Observation) error
	LatestNonNull(ctx context.Context, athleteID int, field Field) (time.Time, float64, bool, error)
	LatestFTP(ctx context.Context, athleteID int) (time.Time, float64, string, bool, error)
}

type Handler struct {
	repo metricsRepo
}

func NewHandler(repo metricsRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

type FieldValue struct {
	Value *float64 `json:"value"`
	Date  *string  `json:"date"`
}

type FTPProvenance struct {
	Source    string  `json:"source"`
	UpdatedAt *string `json:"updatedAt"`
}

type LatestMetricsResponse struct {
	AthleteID  int                   `json:"athleteId"`
	AsOf       *string               `json:"asOf"`
	Metrics    map[string]FieldValue `json:"metrics"`
	Provenance struct {
		FTPw FTPProvenance `json:"ftpW"`
	} `json:"provenance"`
}

// HandleLatest assembles, per metric field, the value from the most
// recent day that field was observed
func (handler *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "bodymetrics.handleLatest")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	resp := LatestMetricsResponse{
		AthleteID: athleteID,
		Metrics:   make(map[string]FieldValue),
	}

	var asOf time.Time
	for _, field := range []Field{
		FieldWeightKg, FieldBodyFatPct, FieldVO2Max, FieldRestingHR, FieldHRVms, FieldSleepMin,
	} {
		date, value, found, err := handler.repo.LatestNonNull(ctx, athleteID, field)
		if err != nil {
			log.Errorf("latest metrics, field %s: %s", field, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !found {
			resp.Metrics[string(field)] = FieldValue{}
			continue
		}
		dateStr := date.Format(dateLayout)
		v := value
		resp.Metrics[string(field)] = FieldValue{Value: &v, Date: &dateStr}
		if date.After(asOf) {
			asOf = date
		}
	}

	ftpDate, ftpValue, ftpSource, ftpFound, err := handler.repo.LatestFTP(ctx, athleteID)
	if err != nil {
		log.Errorf("latest metrics, ftp: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if ftpFound {
		ftpDateStr := ftpDate.Format(dateLayout)
		v := ftpValue
		resp.Metrics[string(FieldFTPw)] = FieldValue{Value: &v, Date: &ftpDateStr}
		resp.Provenance.FTPw = FTPProvenance{Source: ftpSource, UpdatedAt: &ftpDateStr}
		if ftpDate.After(asOf) {
			asOf = ftpDate
		}
	} else {
		resp.Metrics[string(FieldFTPw)] = FieldValue{}
		resp.Provenance.FTPw = FTPProvenance{Source: "unknown"}
	}

	if !asOf.IsZero() {
		asOfStr := asOf.Format(dateLayout)
		resp.AsOf = &asOfStr
	}

	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal latest metrics: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

type logObservationRequest struct {
	AthleteID  int      `json:"athleteId"`
	Date       string   `json:"date"`
	WeightKg   *float64 `json:"weightKg"`
	BodyFatPct *float64 `json:"bodyfatPct"`
	VO2Max     *float64 `json:"vo2maxMlkgmin"`
	RestingHR  *float64 `json:"restingHrBpm"`
	FTPw       *float64 `json:"ftpW"`
	HRVms      *float64 `json:"hrvMs"`
	SleepMin   *float64 `json:"sleepMin"`
	FTPSource  string   `json:"ftpSource"`
}

// HandleLog stores a manual daily observation, merging into any
// existing row for that day
func (handler *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var req logObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("log observation, unmarshal json: %s", err)
		http.Error(w, "log observation failed", http.StatusBadRequest)
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

	ftpSource := req.FTPSource
	if req.FTPw != nil && ftpSource == "" {
		ftpSource = "manual"
	}

	obs := Observation{
		AthleteID:  req.AthleteID,
		Date:       date,
		WeightKg:   req.WeightKg,
		BodyFatPct: req.BodyFatPct,
		VO2Max:     req.VO2Max,
		RestingHR:  req.RestingHR,
		FTPw:       req.FTPw,
		HRVms:      req.HRVms,
		SleepMin:   req.SleepMin,
		FTPSource:  ftpSource,
	}

	if err := handler.repo.Upsert(r.Context(), obs); err != nil {
		log.Errorf("log observation for athlete %d: %s", req.AthleteID, err)
		http.Error(w, "log observation failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponse(w, pkg.ContentType.JSON, `{"ok":true}`, http.StatusCreated)
}
