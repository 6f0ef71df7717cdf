package plan

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

type Handler struct {
	builder *Builder
	now     func() time.Time
}

func NewHandler(builder *Builder) *Handler {
	return &Handler{
		builder: builder,
		now:     time.Now,
	}
}

type previewRequest struct {
	AthleteID int    `json:"athleteId"`
	GoalText  string `json:"goalText"`
	Weeks     int    `json:"weeks"`
	StartDate string `json:"startDate"`
}

// HandlePreview builds a multi-week plan preview from a free-text goal.
// Nothing is persisted.
func (handler *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "plan.handlePreview")
	defer span.End()

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("plan preview, unmarshal json: %s", err)
		http.Error(w, "plan preview failed", http.StatusBadRequest)
		return
	}

	if req.AthleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	start := day(handler.now())
	if req.StartDate != "" {
		var err error
		start, err = time.Parse(dateLayout, req.StartDate)
		if err != nil {
			http.Error(w, "invalid_date_format (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}

	p, err := handler.builder.Build(ctx, req.AthleteID, req.GoalText, req.Weeks, start)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidWeeks):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, athlete.ErrAthleteNotFound):
			http.Error(w, "athlete_not_found", http.StatusNotFound)
		default:
			log.Errorf("plan preview for athlete %d: %s", req.AthleteID, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	respJson, err := json.Marshal(p)
	if err != nil {
		log.Errorf("marshal plan preview: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
