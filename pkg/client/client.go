// Package client is the Go SDK for the custodia evidence API. It covers the
// full surface: operator authentication, evidence ingestion, verification,
// the replayed audit listing, and per-evidence results.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the server has no results for an evidence id.
var ErrNotFound = errors.New("not found")

// IngestionResult mirrors the server's registration response.
type IngestionResult struct {
	CaseID        string    `json:"case_id"`
	EvidenceID    string    `json:"evidence_id"`
	ContentHash   string    `json:"content_hash"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	GasUsed       uint64    `json:"gas_used,omitempty"`
	BlockTime     time.Time `json:"block_time,omitempty"`
	Outcome       string    `json:"outcome"`
}

// VerificationResult mirrors the server's verification response.
type VerificationResult struct {
	EvidenceID   string    `json:"evidence_id"`
	ComputedHash string    `json:"computed_hash"`
	StoredHash   string    `json:"stored_hash,omitempty"`
	Verdict      string    `json:"verdict"`
	CheckedAt    time.Time `json:"checked_at"`
}

// EvidenceRecord is one entry of the audit listing.
type EvidenceRecord struct {
	Number      int    `json:"number"`
	CaseID      string `json:"case_id"`
	EvidenceID  string `json:"evidence_id"`
	Hash        string `json:"hash"`
	Timestamp   int64  `json:"timestamp"`
	Datetime    string `json:"datetime"`
	BlockNumber uint64 `json:"block_number"`
	Transaction string `json:"transaction"`
}

// Results is the accumulated off-chain results row for an evidence id.
type Results struct {
	CaseID        string    `json:"case_id"`
	EvidenceID    string    `json:"evidence_id"`
	ContentHash   string    `json:"content_hash,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	StorageCID    string    `json:"storage_cid,omitempty"`
	Verdict       string    `json:"verdict,omitempty"`
	StoredHash    string    `json:"stored_hash,omitempty"`
	VerifiedAt    time.Time `json:"verified_at,omitempty"`
	DeepfakeScore float64   `json:"deepfake_score,omitempty"`
	FramesScored  int       `json:"frames_scored,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client is the SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets a pre-issued bearer token, skipping Authenticate.
func WithToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithTimeout sets the per-request timeout. Ingestion of large files against
// a slow chain can exceed the 2 minute default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the custodia server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// do sends the request with auth attached and decodes a 2xx JSON body into
// out (when non-nil). Other statuses come back as *APIError, except where
// the caller handles them first.
func (c *Client) do(req *http.Request, out any) error {
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call custodia server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) *APIError {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// Authenticate exchanges operator credentials for a session token and keeps
// it for subsequent calls.
func (c *Client) Authenticate(ctx context.Context, username, secret string) error {
	payload, _ := json.Marshal(map[string]string{"username": username, "secret": secret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.bearerToken = resp.Token
	c.mu.Unlock()
	return nil
}

// evidenceRequest builds a multipart request uploading the file at path with
// the given form fields.
func (c *Client) evidenceRequest(ctx context.Context, url string, fields map[string]string, path string) (*http.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open evidence file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req, nil
}

// Register uploads a file for registration bound to (caseID, evidenceID).
// A duplicate comes back as a normal result with Outcome "DUPLICATE", not an
// error, mirroring the server's 409 body.
func (c *Client) Register(ctx context.Context, caseID, evidenceID, path string) (*IngestionResult, error) {
	req, err := c.evidenceRequest(ctx, c.baseURL+"/api/v1/evidence", map[string]string{
		"case_id":     caseID,
		"evidence_id": evidenceID,
	}, path)
	if err != nil {
		return nil, err
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call custodia server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusConflict:
		var result IngestionResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &result, nil
	default:
		return nil, apiError(resp)
	}
}

// Verify uploads a file for comparison against evidenceID's ledger record.
func (c *Client) Verify(ctx context.Context, evidenceID, path string) (*VerificationResult, error) {
	req, err := c.evidenceRequest(ctx, c.baseURL+"/api/v1/evidence/"+evidenceID+"/verify", nil, path)
	if err != nil {
		return nil, err
	}

	var result VerificationResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List fetches the full audit listing in ledger order.
func (c *Client) List(ctx context.Context) ([]EvidenceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/evidence", nil)
	if err != nil {
		return nil, err
	}

	var records []EvidenceRecord
	if err := c.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Results fetches the accumulated off-chain results for an evidence id.
func (c *Client) Results(ctx context.Context, evidenceID string) (*Results, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/evidence/"+evidenceID+"/results", nil)
	if err != nil {
		return nil, err
	}

	var results Results
	if err := c.do(req, &results); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", evidenceID, ErrNotFound)
		}
		return nil, err
	}
	return &results, nil
}

// Health reports whether the server and its dependencies are up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
