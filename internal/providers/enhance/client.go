// Package enhance wraps the external AI photo-enhancement API behind a small
// facade so the worker can time-box the call and degrade to the raw photo
// when the service misbehaves.
package enhance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoCredentials is returned when no API key is configured. Callers skip
// the enhancement step entirely rather than making doomed calls.
var ErrNoCredentials = errors.New("enhance: api key not configured")

const enhanceInstruction = "Enhance this portrait photo for an ID card: correct exposure and white balance, " +
	"sharpen gently, keep the subject's features unaltered, return only the image."

// Options controls how the enhancement client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client talks to a Gemini-style generateContent endpoint for image-to-image
// enhancement. The model is fixed at construction: capability probing happens
// once at startup via ResolveModel, never through a shared mutable cache.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs an enhancement client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      opts.Model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether a real API call can be attempted.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// ResolveModel probes the candidate models in order and returns a client
// bound to the first one that answers. Probing happens at service startup;
// the result is injected into whoever needs it for the life of the process.
func ResolveModel(ctx context.Context, opts Options, candidates []string) (*Client, error) {
	base := NewClient(opts)
	if !base.HasCredentials() {
		return nil, ErrNoCredentials
	}
	var lastErr error
	for _, model := range candidates {
		probe := NewClient(opts)
		probe.model = model
		if err := probe.ping(ctx); err != nil {
			lastErr = err
			probe.logger.Warn().Err(err).Str("model", model).Msg("enhance: model probe failed")
			continue
		}
		probe.logger.Info().Str("model", model).Msg("enhance: resolved model")
		return probe, nil
	}
	if lastErr == nil {
		lastErr = errors.New("enhance: no candidate models")
	}
	return nil, fmt.Errorf("enhance: no usable model: %w", lastErr)
}

// Enhance runs the photo through the enhancement model and returns the
// resulting image bytes. The caller bounds the call with its context.
func (c *Client) Enhance(ctx context.Context, photo []byte) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}
	if len(photo) == 0 {
		return nil, errors.New("enhance: empty photo")
	}

	payload := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: enhanceInstruction},
				{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(photo)}},
			},
		}},
	}

	var response generateContentResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("enhance: decode inline data: %w", err)
			}
			if len(data) > 0 {
				return data, nil
			}
		}
	}
	return nil, errors.New("enhance: response carried no image")
}

// ping issues a minimal text request to confirm the model answers at all.
func (c *Client) ping(ctx context.Context) error {
	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: "ping"}},
		}},
	}
	var response generateContentResponse
	return c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response)
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke enhancement api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("enhancement api status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("enhancement api status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("enhancement api status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode enhancement response: %w", err)
	}
	return nil
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}
