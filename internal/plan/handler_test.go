package plan

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2beens/velotrain/internal/athlete"
	"github.com/2beens/velotrain/internal/bodymetrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanHandler() *Handler {
	builder := newTestBuilder(
		map[int]athlete.Athlete{1: {ID: 1, Sex: "male", Age: 35, HeightCm: 176, WeightKg: 75}},
		map[bodymetrics.Field]float64{bodymetrics.FieldFTPw: 250},
	)
	return NewHandler(builder)
}

func TestHandler_HandlePreview(t *testing.T) {
	handler := newTestPlanHandler()

	reqBody := `{"athleteId":1,"goalText":"raise my FTP","weeks":6,"startDate":"2025-03-10"}`
	req := httptest.NewRequest("POST", "/plan/preview", strings.NewReader(reqBody))
	rr := httptest.NewRecorder()
	handler.HandlePreview(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp Plan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, PlanCyclingFTP, resp.PlanType)
	assert.Equal(t, "2025-03-10", resp.Summary.StartDate)
	assert.Len(t, resp.Blocks, 6)
}

func TestHandler_HandlePreview_validation(t *testing.T) {
	testCases := map[string]struct {
		body     string
		wantCode int
	}{
		"bad json":        {`{"athleteId"`, http.StatusBadRequest},
		"bad athlete id":  {`{"athleteId":0,"goalText":"ftp"}`, http.StatusBadRequest},
		"bad date":        {`{"athleteId":1,"goalText":"ftp","startDate":"10.03.2025"}`, http.StatusBadRequest},
		"too many weeks":  {`{"athleteId":1,"goalText":"ftp","weeks":53}`, http.StatusBadRequest},
		"unknown athlete": {`{"athleteId":42,"goalText":"ftp"}`, http.StatusNotFound},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			handler := newTestPlanHandler()

			req := httptest.NewRequest("POST", "/plan/preview", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			handler.HandlePreview(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
		})
	}
}
