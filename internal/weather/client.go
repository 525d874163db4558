// Package weather fetches current conditions from weatherapi.com.
package weather

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

	"github.com/soyeahso/mirror/internal/logging"
	"github.com/soyeahso/mirror/internal/version"
)

// ErrNoLocation is returned when Current is called with a blank location.
var ErrNoLocation = errors.New("weather: location is required")

// Client performs current-conditions lookups.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a weather client. baseURL defaults to the public API.
func NewClient(apiKey, baseURL string, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://api.weatherapi.com"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Sub("weather"),
	}
}

// Current returns the current conditions for a free-text location.
func (c *Client) Current(ctx context.Context, location string) (*Result, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrNoLocation
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", location)
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/current.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("weather: creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("weather: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("weather: decoding response: %w", err)
	}

	c.log.Debug().
		Str("query", location).
		Str("matched", result.Location.Name).
		Float64("tempF", result.Current.TempF).
		Dur("duration", time.Since(start)).
		Msg("weather lookup")

	return &result, nil
}
