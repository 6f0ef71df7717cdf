package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/velotrain/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const activitiesPerPage = 100

// ErrRateLimited marks an upstream 429; callers decide whether and when
// to retry, the client never does
var ErrRateLimited = errors.New("strava rate limited")

type accessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// apiActivity is the subset of the Strava activity payload the importer
// needs
type apiActivity struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	StartDateLocal string `json:"start_date_local"`
	StartDate      string `json:"start_date"`
	MovingTimeSec  int    `json:"moving_time"`
}

type Client struct {
	httpClient *http.Client
	tokens     accessTokenSource
	baseURL    string
}

func NewClient(httpClient *http.Client, tokens accessTokenSource, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    baseURL,
	}
}

// ListActivities returns one page of the athlete's activities started
// after the given moment. An empty page means the listing is exhausted.
func (c *Client) ListActivities(ctx context.Context, after time.Time, page int) ([]apiActivity, error) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.client.listActivities")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/api/v3/athlete/activities", nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	query := req.URL.Query()
	query.Set("after", strconv.FormatInt(after.Unix(), 10))
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(activitiesPerPage))
	req.URL.RawQuery = query.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		err = ErrRateLimited
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		err = fmt.Errorf("list activities status %d: %s", resp.StatusCode, body)
		return nil, err
	}

	var items []apiActivity
	if err = json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode activities page: %w", err)
	}
	return items, nil
}
