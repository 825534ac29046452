// Groq chat-completions implementation of [Classifier]
//
// Groq exposes an OpenAI-compatible API: https://console.groq.com/docs/api-reference
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/songsift/songsift/internal/models"
	"github.com/songsift/songsift/internal/retry"
	"github.com/songsift/songsift/internal/shared"
)

const (
	groqBaseURL = "https://api.groq.com/openai/v1"

	// DefaultGroqModel is used when the config names no model.
	DefaultGroqModel = "llama-3.3-70b-versatile"

	// DefaultTemperature is the sampling temperature for classification.
	DefaultTemperature = 0.7
)

// classifierPrompt instructs the model to answer with the exact JSON object
// the pipeline parses. Titles with no discernible song come back as
// "unknown" in every field.
const classifierPrompt = `You are a JSON extraction assistant. Always respond with a valid JSON using the structure below.
If there are no explicit mentions of a song (artist name and/or track title), return unknown for the fields.

{
    "artist": "artist name here",
    "track": "track name here",
    "title": "full title here, artist + track"
}`

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponseFormat struct {
	Type string `json:"type"`
}

type groqRequest struct {
	Model          string              `json:"model"`
	Messages       []groqMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	ResponseFormat *groqResponseFormat `json:"response_format,omitempty"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
}

type groqErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GroqService implements the [Classifier] interface against Groq's
// chat-completions endpoint.
type GroqService struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewGroqService creates a new Groq classifier. A zero temperature selects
// [DefaultTemperature].
func NewGroqService(creds shared.GroqConfig, temperature float64) (*GroqService, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: groq api_key", shared.ErrMissingCredentials)
	}

	model := creds.Model
	if model == "" {
		model = DefaultGroqModel
	}
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	return &GroqService{
		baseURL:     groqBaseURL,
		apiKey:      creds.APIKey,
		model:       model,
		temperature: temperature,
		httpClient:  http.DefaultClient,
	}, nil
}

func (g *GroqService) Name() string {
	return "Groq"
}

// Model returns the model name classification requests are sent to.
func (g *GroqService) Model() string {
	return g.model
}

// ClassifyTitle sends one title through the extraction prompt and parses
// the model's JSON answer into song fields.
func (g *GroqService) ClassifyTitle(ctx context.Context, title string) (models.SongFields, error) {
	reqBody := groqRequest{
		Model: g.model,
		Messages: []groqMessage{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: title},
		},
		Temperature:    g.temperature,
		ResponseFormat: &groqResponseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.SongFields{}, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return models.SongFields{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.SongFields{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.SongFields{}, groqRateLimitError(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := groqErrorMessage(resp.Body); msg != "" {
			return models.SongFields{}, fmt.Errorf("%w: groq status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
		}
		return models.SongFields{}, fmt.Errorf("%w: groq status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var response groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return models.SongFields{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return models.SongFields{}, fmt.Errorf("empty choices: %w", shared.ErrMalformedClassification)
	}

	fields, err := parseSongFields(response.Choices[0].Message.Content)
	if err != nil {
		return models.SongFields{}, err
	}

	return fields, nil
}

func groqRateLimitError(resp *http.Response) error {
	rle := &retry.RateLimitError{
		StatusCode: resp.StatusCode,
		Message:    groqErrorMessage(resp.Body),
	}
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, err := strconv.ParseFloat(after, 64); err == nil {
			rle.RetryAfter = time.Duration(seconds * float64(time.Second))
		}
	}
	return rle
}

func groqErrorMessage(body io.Reader) string {
	var errResp groqErrorResponse
	if err := json.NewDecoder(body).Decode(&errResp); err != nil {
		return ""
	}
	return errResp.Error.Message
}

// parseSongFields validates the model's answer: it must be a JSON object
// carrying all three expected keys.
func parseSongFields(content string) (models.SongFields, error) {
	content = stripCodeFence(strings.TrimSpace(content))

	var raw struct {
		Artist *string `json:"artist"`
		Track  *string `json:"track"`
		Title  *string `json:"title"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return models.SongFields{}, fmt.Errorf("%w: %v", shared.ErrMalformedClassification, err)
	}
	if raw.Artist == nil || raw.Track == nil || raw.Title == nil {
		return models.SongFields{}, fmt.Errorf("%w: missing artist, track, or title key", shared.ErrMalformedClassification)
	}

	return models.SongFields{Artist: *raw.Artist, Track: *raw.Track, Title: *raw.Title}, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap JSON answers in despite the prompt.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag on the opening fence
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
