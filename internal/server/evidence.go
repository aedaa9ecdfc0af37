// Package server exposes the custody engine over HTTP: evidence ingestion,
// verification, the replayed audit listing, per-case results, and the
// operator activity trail.
package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/custody"
	"github.com/custodia-chain/custodia/internal/ledger"
	"github.com/custodia-chain/custodia/internal/metadata"
	"github.com/custodia-chain/custodia/internal/scoring"
)

// Registrar records evidence on the ledger.
type Registrar interface {
	Register(ctx context.Context, caseID, evidenceID, path string) (*custody.IngestionResult, error)
}

// Verifier checks a file against its ledger record.
type Verifier interface {
	Verify(ctx context.Context, evidenceID, path string) (*custody.VerificationResult, error)
}

// Lister replays the full audit listing from ledger events.
type Lister interface {
	ListAll(ctx context.Context) ([]custody.EvidenceRecord, error)
}

// ResultsStore is the slice of the metadata store the handlers depend on.
type ResultsStore interface {
	AttachIngestion(ctx context.Context, caseID, evidenceID, contentHash, transactionID string, blockNumber uint64) error
	AttachVerification(ctx context.Context, caseID, evidenceID, computedHash, storedHash, verdict string, checkedAt time.Time) error
	AttachPrediction(ctx context.Context, caseID, evidenceID string, score float64, frames int) error
	AttachStorage(ctx context.Context, caseID, evidenceID, cid string) error
	GetResults(ctx context.Context, evidenceID string) (*metadata.Results, error)
	LogActivity(ctx context.Context, username, action string, detail map[string]string) (*metadata.Activity, error)
	ListActivity(ctx context.Context, username string, limit int) ([]*metadata.Activity, error)
}

// Scorer runs deepfake inference on an evidence file.
type Scorer interface {
	Score(ctx context.Context, path string) (*scoring.Prediction, error)
}

// Pinner stores the raw evidence payload and returns a content identifier.
type Pinner interface {
	Add(ctx context.Context, path string) (string, error)
}

// EvidenceHandler handles HTTP requests for the evidence API.
type EvidenceHandler struct {
	registrar Registrar
	verifier  Verifier
	lister    Lister
	results   ResultsStore // nil = no metadata persistence
	scorer    Scorer       // nil = scoring disabled
	pinner    Pinner       // nil = payload pinning disabled
	tokens    *TokenIssuer // nil = no auth enforcement
	logger    *zap.Logger
}

// NewEvidenceHandler creates an EvidenceHandler. tokens may be nil to
// disable JWT auth on mutating routes.
func NewEvidenceHandler(r Registrar, v Verifier, l Lister, tokens *TokenIssuer, logger *zap.Logger) *EvidenceHandler {
	return &EvidenceHandler{registrar: r, verifier: v, lister: l, tokens: tokens, logger: logger}
}

// SetResultsStore configures metadata persistence for ingestion and
// verification outcomes.
func (h *EvidenceHandler) SetResultsStore(rs ResultsStore) {
	h.results = rs
}

// SetScorer configures deepfake scoring on ingested payloads.
func (h *EvidenceHandler) SetScorer(s Scorer) {
	h.scorer = s
}

// SetPinner configures raw payload pinning on ingestion.
func (h *EvidenceHandler) SetPinner(p Pinner) {
	h.pinner = p
}

// requireToken returns the RequireToken middleware when auth is configured,
// or a no-op middleware for development/open mode.
func (h *EvidenceHandler) requireToken() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return RequireToken(h.tokens)
}

// Register registers all evidence routes on the given router group.
func (h *EvidenceHandler) Register(rg *gin.RouterGroup) {
	evidence := rg.Group("/evidence")
	{
		evidence.POST("", h.requireToken(), h.Ingest)
		evidence.GET("", h.List)
		evidence.POST("/:evidence_id/verify", h.requireToken(), h.VerifyEvidence)
		evidence.GET("/:evidence_id/results", h.GetResults)
	}
	rg.GET("/activity", h.requireToken(), h.ListActivity)
}

// spoolUpload writes the uploaded file to a temp path and returns it with a
// cleanup func. The custody flows hash from disk, so the payload has to land
// on the filesystem first.
func (h *EvidenceHandler) spoolUpload(c *gin.Context, file *multipart.FileHeader) (string, func(), error) {
	dir, err := os.MkdirTemp("", "custodia-upload-")
	if err != nil {
		return "", nil, fmt.Errorf("create spool dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("spool upload: %w", err)
	}
	return path, cleanup, nil
}

func (h *EvidenceHandler) username(c *gin.Context) string {
	if claims := ClaimsFromCtx(c); claims != nil {
		return claims.Username
	}
	return "anonymous"
}

func (h *EvidenceHandler) logActivity(ctx context.Context, username, action string, detail map[string]string) {
	if h.results == nil {
		return
	}
	if _, err := h.results.LogActivity(ctx, username, action, detail); err != nil {
		h.logger.Warn("record activity", zap.String("action", action), zap.Error(err))
	}
}

// Ingest handles POST /evidence — registers an uploaded file on the ledger.
//
// Multipart form fields: case_id, evidence_id, file. Responds 201 with the
// ingestion result on success, 409 when the evidence id already has a
// record, 502 when the ledger is unreachable, and 202 when the transaction
// was broadcast but not confirmed in time.
func (h *EvidenceHandler) Ingest(c *gin.Context) {
	caseID := strings.TrimSpace(c.PostForm("case_id"))
	evidenceID := strings.TrimSpace(c.PostForm("evidence_id"))
	if caseID == "" || evidenceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_id and evidence_id are required"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	path, cleanup, err := h.spoolUpload(c, file)
	if err != nil {
		h.logger.Error("spool upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer cleanup()

	ctx := c.Request.Context()
	username := h.username(c)

	start := time.Now()
	result, err := h.registrar.Register(ctx, caseID, evidenceID, path)
	ObserveRegistration(time.Since(start))
	if err != nil {
		var pending *ledger.PendingError
		outcome := custody.OutcomeForError(err)
		if errors.As(err, &pending) {
			RecordSubmission("PENDING")
		} else {
			RecordSubmission(string(outcome))
		}

		switch {
		case pending != nil:
			c.JSON(http.StatusAccepted, gin.H{
				"outcome":     "PENDING",
				"transaction": pending.Tx.Hex(),
				"error":       "transaction broadcast but not confirmed in time",
			})
		case outcome == custody.OutcomeConnectivityError:
			c.JSON(http.StatusBadGateway, gin.H{"outcome": outcome, "error": "ledger unreachable"})
		default:
			h.logger.Error("register evidence",
				zap.String("case_id", caseID),
				zap.String("evidence_id", evidenceID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"outcome": outcome, "error": "registration failed"})
		}
		return
	}

	RecordSubmission(string(result.Outcome))

	if result.Outcome == custody.OutcomeDuplicate {
		h.logActivity(ctx, username, "ingest_duplicate", map[string]string{
			"case_id":     caseID,
			"evidence_id": evidenceID,
		})
		c.JSON(http.StatusConflict, result)
		return
	}

	if h.results != nil {
		if err := h.results.AttachIngestion(ctx, caseID, evidenceID, result.ContentHash, result.TransactionID, result.BlockNumber); err != nil {
			h.logger.Warn("persist ingestion result", zap.Error(err))
		}
	}
	h.logActivity(ctx, username, "ingest", map[string]string{
		"case_id":     caseID,
		"evidence_id": evidenceID,
		"transaction": result.TransactionID,
	})

	// Pinning and scoring are enrichment, not custody: their failures are
	// logged but never fail the request.
	if h.pinner != nil {
		if cid, err := h.pinner.Add(ctx, path); err != nil {
			h.logger.Warn("pin payload", zap.String("evidence_id", evidenceID), zap.Error(err))
		} else if h.results != nil {
			if err := h.results.AttachStorage(ctx, caseID, evidenceID, cid); err != nil {
				h.logger.Warn("persist storage cid", zap.Error(err))
			}
		}
	}
	if h.scorer != nil {
		if pred, err := h.scorer.Score(ctx, path); err != nil {
			h.logger.Warn("score payload", zap.String("evidence_id", evidenceID), zap.Error(err))
		} else if h.results != nil {
			if err := h.results.AttachPrediction(ctx, caseID, evidenceID, pred.Score, pred.Frames); err != nil {
				h.logger.Warn("persist prediction", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusCreated, result)
}

// VerifyEvidence handles POST /evidence/:evidence_id/verify — recomputes an
// uploaded file's hash and compares it against the ledger record. The
// verdict (AUTHENTIC, TAMPERED, NOT_FOUND) is always a 200; only transport
// failures produce errors.
func (h *EvidenceHandler) VerifyEvidence(c *gin.Context) {
	evidenceID := strings.TrimSpace(c.Param("evidence_id"))

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	path, cleanup, err := h.spoolUpload(c, file)
	if err != nil {
		h.logger.Error("spool upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer cleanup()

	ctx := c.Request.Context()

	result, err := h.verifier.Verify(ctx, evidenceID, path)
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unreachable"})
			return
		}
		h.logger.Error("verify evidence", zap.String("evidence_id", evidenceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	RecordVerification(string(result.Verdict))

	caseID := strings.TrimSpace(c.PostForm("case_id"))
	if h.results != nil && caseID != "" {
		if err := h.results.AttachVerification(ctx, caseID, evidenceID, result.ComputedHash, result.StoredHash, string(result.Verdict), result.CheckedAt); err != nil {
			h.logger.Warn("persist verification result", zap.Error(err))
		}
	}
	h.logActivity(ctx, h.username(c), "verify", map[string]string{
		"evidence_id": evidenceID,
		"verdict":     string(result.Verdict),
	})

	c.JSON(http.StatusOK, result)
}

// List handles GET /evidence — returns the full audit listing replayed from
// ledger events, as a JSON array in ledger order.
func (h *EvidenceHandler) List(c *gin.Context) {
	records, err := h.lister.ListAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unreachable"})
			return
		}
		h.logger.Error("list evidence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list evidence"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetResults handles GET /evidence/:evidence_id/results — returns the
// accumulated off-chain results row for an evidence id.
func (h *EvidenceHandler) GetResults(c *gin.Context) {
	if h.results == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "results store not configured"})
		return
	}

	evidenceID := strings.TrimSpace(c.Param("evidence_id"))
	results, err := h.results.GetResults(c.Request.Context(), evidenceID)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no results for evidence id"})
			return
		}
		h.logger.Error("get results", zap.String("evidence_id", evidenceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get results"})
		return
	}
	c.JSON(http.StatusOK, results)
}

// ListActivity handles GET /activity — returns the operator audit trail,
// newest first. Optional ?username= filters by operator; ?limit= caps the
// page size.
func (h *EvidenceHandler) ListActivity(c *gin.Context) {
	if h.results == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "results store not configured"})
		return
	}

	username := strings.TrimSpace(c.Query("username"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := h.results.ListActivity(c.Request.Context(), username, limit)
	if err != nil {
		h.logger.Error("list activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list activity"})
		return
	}
	if entries == nil {
		entries = []*metadata.Activity{}
	}

	c.JSON(http.StatusOK, gin.H{"activity": entries, "count": len(entries)})
}
