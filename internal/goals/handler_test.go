package goals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGoalsRepo struct {
	goals     []Goal
	nextID    int
	insertErr error
}

func (f *fakeGoalsRepo) DeactivateAllAndInsert(_ context.Context, goal Goal) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	for i := range f.goals {
		if f.goals[i].AthleteID == goal.AthleteID {
			f.goals[i].Active = false
		}
	}
	f.nextID++
	goal.ID = f.nextID
	goal.Active = true
	goal.CreatedAt = time.Now()
	f.goals = append(f.goals, goal)
	return goal.ID, nil
}

func (f *fakeGoalsRepo) Active(_ context.Context, athleteID int) (Goal, bool, error) {
	for i := len(f.goals) - 1; i >= 0; i-- {
		if f.goals[i].AthleteID == athleteID && f.goals[i].Active {
			return f.goals[i], true, nil
		}
	}
	return Goal{}, false, nil
}

func TestHandler_HandleSet_retiresPrevious(t *testing.T) {
	repo := &fakeGoalsRepo{}
	handler := NewHandler(repo)

	for _, body := range []string{
		`{"athleteId":1,"goalPrompt":"drop to 72kg","targetWeightKg":72,"timeframeWeeks":12}`,
		`{"athleteId":1,"goalPrompt":"raise FTP for the spring fondo","targetFtpW":280}`,
	} {
		req := httptest.NewRequest("POST", "/goals", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleSet(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	active, found, err := repo.Active(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "raise FTP for the spring fondo", active.GoalPrompt)
	require.NotNil(t, active.TargetFTPw)
	assert.InDelta(t, 280, *active.TargetFTPw, 0.001)

	var activeCount int
	for _, g := range repo.goals {
		if g.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestHandler_HandleSet_validation(t *testing.T) {
	testCases := map[string]string{
		"bad json":    `{"athleteId":`,
		"bad athlete": `{"athleteId":0,"goalPrompt":"get fast"}`,
		"empty goal":  `{"athleteId":1}`,
	}

	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			repo := &fakeGoalsRepo{}
			handler := NewHandler(repo)

			req := httptest.NewRequest("POST", "/goals", strings.NewReader(body))
			rr := httptest.NewRecorder()
			handler.HandleSet(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, repo.goals)
		})
	}
}

func TestHandler_HandleSet_unknownAthlete(t *testing.T) {
	repo := &fakeGoalsRepo{
		insertErr: &pgconn.PgError{Code: "23503"},
	}
	handler := NewHandler(repo)

	body := `{"athleteId":42,"goalPrompt":"get fast"}`
	req := httptest.NewRequest("POST", "/goals", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleSet(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "athlete_not_found")
}

func TestHandler_HandleActive(t *testing.T) {
	repo := &fakeGoalsRepo{}
	targetWeight := 72.0
	_, err := repo.DeactivateAllAndInsert(context.Background(), Goal{
		AthleteID:      1,
		TargetWeightKg: &targetWeight,
		GoalPrompt:     "drop to 72kg",
	})
	require.NoError(t, err)

	handler := NewHandler(repo)

	req := httptest.NewRequest("GET", "/goals?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleActive(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp activeGoalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.AthleteID)
	require.NotNil(t, resp.Goal)
	assert.Equal(t, "drop to 72kg", resp.Goal.GoalPrompt)
	require.NotNil(t, resp.Goal.TargetWeightKg)
	assert.InDelta(t, 72, *resp.Goal.TargetWeightKg, 0.001)
}

func TestHandler_HandleActive_noneSet(t *testing.T) {
	handler := NewHandler(&fakeGoalsRepo{})

	req := httptest.NewRequest("GET", "/goals?athlete_id=1", nil)
	rr := httptest.NewRecorder()
	handler.HandleActive(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp activeGoalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Nil(t, resp.Goal)
}
