// Package remote talks to the networked speech service.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readaloud/tts"
)

// API endpoints.
const (
	apiVoices = "/api/tts/voices"
	apiSpeak  = "/api/tts/speak"
)

const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	defaultMimeType     = "audio/wav"

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 4 << 10
)

// ErrService is returned when the service rejects a request.
var ErrService = errors.New("speech service error")

// Client implements tts.RemoteService over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *log.Logger
}

// voicesResponse is the body of GET /api/tts/voices.
type voicesResponse struct {
	Success bool              `json:"success"`
	Voices  []tts.ServerVoice `json:"voices"`
	Message string            `json:"message,omitempty"`
}

// speakResponse is the body of POST /api/tts/speak.
type speakResponse struct {
	Success  bool   `json:"success"`
	Audio    string `json:"audio,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Message  string `json:"message,omitempty"`
}

// NewClient creates a client for the service configured in cfg.
func NewClient(cfg tts.RemoteConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 2)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		limiter:    limiter,
		logger:     logger.WithPrefix("remote"),
	}
}

// Voices fetches the voice catalog.
func (c *Client) Voices(ctx context.Context) ([]tts.ServerVoice, error) {
	req, err := c.newRequest(ctx, http.MethodGet, apiVoices, nil)
	if err != nil {
		return nil, err
	}

	var body voicesResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, serviceError(http.StatusOK, body.Message)
	}
	c.logger.Debug("Fetched voices", "count", len(body.Voices))
	return body.Voices, nil
}

// Speak generates audio for one request.
func (c *Client) Speak(ctx context.Context, sr tts.SpeakRequest) (tts.SpeechAudio, error) {
	if strings.TrimSpace(sr.Text) == "" {
		return tts.SpeechAudio{}, errors.New("text cannot be empty")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return tts.SpeechAudio{}, err
		}
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return tts.SpeechAudio{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, apiSpeak, payload)
	if err != nil {
		return tts.SpeechAudio{}, err
	}

	var body speakResponse
	if err := c.do(req, &body); err != nil {
		return tts.SpeechAudio{}, err
	}
	if !body.Success {
		return tts.SpeechAudio{}, serviceError(http.StatusOK, body.Message)
	}
	if body.Audio == "" {
		return tts.SpeechAudio{}, fmt.Errorf("%w: response has no audio", ErrService)
	}

	data, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		return tts.SpeechAudio{}, fmt.Errorf("%w: invalid audio encoding: %w", ErrService, err)
	}
	mimeType := body.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return tts.SpeechAudio{Data: data, MimeType: mimeType}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerAccept, contentTypeJSON)
	if payload != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response: %w", ErrService, err)
	}
	return nil
}

// parseErrorResponse reads the service message from a failed response.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		msg = body.Message
	}
	return serviceError(resp.StatusCode, msg)
}

func serviceError(status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("%w (%d): %s", ErrService, status, msg)
}
