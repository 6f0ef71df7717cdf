package applehealth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	defaultSinceDays = 180
	maxSinceDays     = 3650
	// export archives run large, but they stream from a temp file past
	// this point
	maxUploadMemory = 64 << 20
)

type importRunner interface {
	Import(ctx context.Context, athleteID int, archive io.ReaderAt, size int64, sinceDays int) (ImportReport, error)
}

type Handler struct {
	importer importRunner
}

func NewHandler(importer importRunner) *Handler {
	return &Handler{
		importer: importer,
	}
}

type importResponse struct {
	OK bool `json:"ok"`
	ImportReport
}

// HandleImport ingests an Apple Health export (multipart form: file +
// athlete_id + optional since_days).
func (handler *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "applehealth.handleImport")
	defer span.End()

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		log.Errorf("apple health import, parse multipart form: %s", err)
		http.Error(w, "invalid_upload", http.StatusBadRequest)
		return
	}

	athleteID, err := strconv.Atoi(r.FormValue("athlete_id"))
	if err != nil || athleteID < 1 {
		http.Error(w, "error, athlete id invalid", http.StatusBadRequest)
		return
	}

	sinceDays := defaultSinceDays
	if sinceDaysParam := r.FormValue("since_days"); sinceDaysParam != "" {
		sinceDays, err = strconv.Atoi(sinceDaysParam)
		if err != nil || sinceDays < 1 || sinceDays > maxSinceDays {
			http.Error(w, "error, since_days invalid", http.StatusBadRequest)
			return
		}
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "error, export file missing", http.StatusBadRequest)
		return
	}
	defer file.Close()

	report, err := handler.importer.Import(ctx, athleteID, file, fileHeader.Size, sinceDays)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidArchive):
			http.Error(w, "invalid_zip", http.StatusBadRequest)
		case errors.Is(err, ErrExportXMLNotFound):
			http.Error(w, "export_xml_not_found", http.StatusBadRequest)
		default:
			log.Errorf("apple health import for athlete %d: %s", athleteID, err)
			http.Error(w, "apple_health_import_failed", http.StatusInternalServerError)
		}
		return
	}

	respJson, err := json.Marshal(importResponse{OK: true, ImportReport: report})
	if err != nil {
		log.Errorf("marshal apple health import response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
