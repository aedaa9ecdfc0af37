// Package scoring is the HTTP client for the deepfake inference service.
// The service itself (frame sampling, classifier) is an external
// collaborator; the custody engine only consumes its scalar probability and
// the count of frames sampled, as metadata to attach to a case record.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Prediction is the inference service's final output.
type Prediction struct {
	Score  float64 `json:"score"`           // deepfake probability in [0, 1]
	Frames int     `json:"frames_analyzed"` // frames sampled by the classifier
}

// Client calls the scoring service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Client for the service at baseURL. timeout of 0 selects
// one minute, which covers frame extraction on typical clips.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Score uploads the video at path and returns the service's prediction.
func (c *Client) Score(ctx context.Context, path string) (*Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", pr)
	if err != nil {
		return nil, fmt.Errorf("build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call scoring service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	c.logger.Debug("video scored",
		zap.String("file", filepath.Base(path)),
		zap.Float64("score", prediction.Score),
		zap.Int("frames", prediction.Frames),
	)
	return &prediction, nil
}
