package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	defaultAfterDays = 30
	maxAfterDays     = 3650
)

type importRunner interface {
	Import(ctx context.Context, athleteID, afterDays int) (ImportReport, error)
}

type Handler struct {
	importer importRunner
	tokens   accessTokenSource
}

func NewHandler(importer importRunner, tokens accessTokenSource) *Handler {
	return &Handler{
		importer: importer,
		tokens:   tokens,
	}
}

type importResponse struct {
	OK        bool `json:"ok"`
	Imported  int  `json:"imported"`
	Skipped   int  `json:"skipped"`
	AfterDays int  `json:"afterDays"`
}

func (handler *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "strava.handleImport")
	defer span.End()

	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	afterDays := defaultAfterDays
	if afterDaysParam := r.URL.Query().Get("after_days"); afterDaysParam != "" {
		afterDays, err = strconv.Atoi(afterDaysParam)
		if err != nil || afterDays < 1 || afterDays > maxAfterDays {
			http.Error(w, "error, after_days invalid", http.StatusBadRequest)
			return
		}
	}

	report, err := handler.importer.Import(ctx, athleteID, afterDays)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			http.Error(w, "strava_rate_limited", http.StatusTooManyRequests)
			return
		}
		log.Errorf("strava import for athlete %d: %s", athleteID, err)
		http.Error(w, "strava_import_failed", http.StatusBadGateway)
		return
	}

	respJson, err := json.Marshal(importResponse{
		OK:        true,
		Imported:  report.Imported,
		Skipped:   report.Skipped,
		AfterDays: afterDays,
	})
	if err != nil {
		log.Errorf("marshal strava import response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

// HandlePing verifies token refresh works without touching any athlete
// endpoints.
func (handler *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "strava.handlePing")
	defer span.End()

	token, err := handler.tokens.AccessToken(ctx)
	if err != nil {
		log.Errorf("strava ping: %s", err)
		http.Error(w, "strava_token_error", http.StatusBadGateway)
		return
	}

	respJson, err := json.Marshal(map[string]interface{}{
		"ok":       true,
		"tokenLen": len(token),
	})
	if err != nil {
		log.Errorf("marshal strava ping response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
