package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2beens/velotrain/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	accessTokenRedisKey = "strava::access-token"
	// refresh slightly before the upstream expiry to avoid handing out
	// a token that dies mid-import
	tokenExpiryHeadroom = 5 * time.Minute
)

var ErrCredentialsMissing = errors.New("strava credentials missing")

// TokenSource exchanges a long-lived refresh token for short-lived
// access tokens, caching them in redis until shortly before expiry.
type TokenSource struct {
	httpClient   *http.Client
	redisClient  *redis.Client
	oauthURL     string
	clientID     string
	clientSecret string
	refreshToken string
	// set when the operator provides a ready access token directly,
	// skips the oauth exchange entirely
	staticToken string
}

func NewTokenSource(
	httpClient *http.Client,
	redisClient *redis.Client,
	oauthURL string,
	clientID, clientSecret, refreshToken string,
	staticToken string,
) *TokenSource {
	return &TokenSource{
		httpClient:   httpClient,
		redisClient:  redisClient,
		oauthURL:     oauthURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		staticToken:  staticToken,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken returns a currently valid access token, refreshing and
// re-caching one when needed.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.tokens.accessToken")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if ts.staticToken != "" {
		return ts.staticToken, nil
	}
	if ts.clientID == "" || ts.clientSecret == "" || ts.refreshToken == "" {
		return "", ErrCredentialsMissing
	}

	cached, err := ts.redisClient.Get(ctx, accessTokenRedisKey).Result()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Errorf("get cached strava token: %s", err)
	}

	token, expiresIn, err := ts.refresh(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(expiresIn)*time.Second - tokenExpiryHeadroom
	if ttl > 0 {
		if err := ts.redisClient.Set(ctx, accessTokenRedisKey, token, ttl).Err(); err != nil {
			log.Errorf("cache strava token: %s", err)
		}
	}
	return token, nil
}

func (ts *TokenSource) refresh(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", ts.refreshToken)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, ts.oauthURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", 0, fmt.Errorf("token exchange status %d: %s", resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, errors.New("token exchange returned empty access token")
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}
