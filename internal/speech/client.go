// Package speech synthesizes reply text into audio with ElevenLabs.
package speech

import (
	"bytes"
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

// ErrEmptyText is returned when there is nothing left to speak.
var ErrEmptyText = errors.New("speech: empty text")

// APIError is returned when the provider answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech: %d %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	APIKey          string
	VoiceID         string
	BaseURL         string
	Stability       float64
	SimilarityBoost float64
}

// Audio is a synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
	Duration    time.Duration // zero when the clip could not be measured
}

// Client calls the ElevenLabs text-to-speech endpoint.
type Client struct {
	opts       Options
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a speech client.
func NewClient(opts Options, log *logging.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.elevenlabs.io"
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.Sub("speech"),
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize converts text to audio. Markdown is stripped first.
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	spoken := PlainText(text)
	if spoken == "" {
		return nil, ErrEmptyText
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text: spoken,
		VoiceSettings: voiceSettings{
			Stability:       c.opts.Stability,
			SimilarityBoost: c.opts.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("speech: marshal request: %w", err)
	}

	endpoint := c.opts.BaseURL + "/v1/text-to-speech/" + url.PathEscape(c.opts.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: creating request: %w", err)
	}
	req.Header.Set("xi-api-key", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("speech: empty audio response")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	audio := &Audio{Data: body, ContentType: contentType}
	if d, err := ClipDuration(body); err == nil {
		audio.Duration = d
	} else {
		c.log.Debug().Err(err).Msg("could not measure clip")
	}

	c.log.Info().
		Int("chars", len(spoken)).
		Int("bytes", len(body)).
		Dur("clip", audio.Duration).
		Dur("duration", time.Since(start)).
		Msg("speech synthesized")

	return audio, nil
}
