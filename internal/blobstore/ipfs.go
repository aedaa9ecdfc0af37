// Package blobstore pins evidence payloads to an IPFS node so the raw bytes
// remain retrievable after ingestion. Only the returned CID is persisted; the
// ledger record never references it.
package blobstore

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

// Client talks to the IPFS HTTP API (/api/v0).
type Client struct {
	apiURL string
	http   *http.Client
	logger *zap.Logger
}

// New creates a Client for the IPFS API at apiURL, e.g. http://127.0.0.1:5001.
func New(apiURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type addResponse struct {
	Hash string `json:"Hash"`
	Name string `json:"Name"`
	Size string `json:"Size"`
}

// Add uploads the file at path and returns its CID.
func (c *Client) Add(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open evidence file: %w", err)
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/add", pr)
	if err != nil {
		return "", fmt.Errorf("build ipfs request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ipfs node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ipfs add returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("decode ipfs response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("ipfs add returned no CID")
	}

	c.logger.Debug("payload pinned",
		zap.String("file", filepath.Base(path)),
		zap.String("cid", added.Hash),
	)
	return added.Hash, nil
}
