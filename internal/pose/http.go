package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"repcount/internal/frame"
)

// HTTPDetector calls a pose estimation sidecar over HTTP.
//
// POST {endpoint}/pose takes a multipart form with the JPEG in "file" and
// answers with a Result as JSON. GET {endpoint}/health must answer 200 with
// model_loaded set once the model is ready.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
}

// HealthResponse is the sidecar health payload.
type HealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPDetector checks the sidecar health and returns a detector bound to it.
func NewHTTPDetector(ctx context.Context, endpoint string, timeout time.Duration) (*HTTPDetector, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &HTTPDetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}

	health, err := d.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
	}
	if !health.ModelLoaded {
		return nil, fmt.Errorf("%w: pose model not loaded at %s", ErrDetectionUnavailable, d.endpoint)
	}
	return d, nil
}

func (d *HTTPDetector) Name() string { return BackendHTTP }

// Health returns the sidecar health information.
func (d *HTTPDetector) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check pose service health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pose health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// Detect uploads the frame and decodes the landmarks.
func (d *HTTPDetector) Detect(ctx context.Context, f *frame.Frame) (*Result, error) {
	data, err := f.JPEG(frame.DefaultQuality)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/pose", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pose service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode pose response: %w", err)
	}
	return &result, nil
}

// Close releases idle connections.
func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

var _ Detector = (*HTTPDetector)(nil)
