package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/internal/storage"
	"github.com/charlesng35/everkeep/pkg/logger"
	"github.com/charlesng35/everkeep/pkg/metrics"
)

// DefaultMaxCertificateBytes caps death-certificate uploads at 10 MiB.
const DefaultMaxCertificateBytes int64 = 10 << 20

var (
	// ErrCertificateTooLarge is returned when an upload exceeds the size cap.
	// The check runs before any byte is persisted.
	ErrCertificateTooLarge = errors.New("verification: certificate exceeds size limit")
	// ErrVerificationRejected indicates the authority declined the evidence.
	ErrVerificationRejected = errors.New("verification: evidence rejected")
	// ErrNotActiveExecutor indicates the submitter has no active relationship
	// with the planner.
	ErrNotActiveExecutor = errors.New("verification: no active executorship for this planner")
)

// VerificationAuthority attests death evidence. Implementations may call out
// to professional verification providers; the default accepts any well-formed
// submission.
type VerificationAuthority interface {
	Attest(ctx context.Context, submission EvidenceSubmission) error
}

// EvidenceSubmission is the evidence handed to a VerificationAuthority.
type EvidenceSubmission struct {
	PlannerID   string
	ExecutorID  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// AutoApprovalAuthority accepts every well-formed submission. It stands in
// until a professional verification integration exists.
type AutoApprovalAuthority struct{}

// Attest implements VerificationAuthority.
func (AutoApprovalAuthority) Attest(_ context.Context, submission EvidenceSubmission) error {
	if submission.SizeBytes <= 0 {
		return ErrVerificationRejected
	}
	return nil
}

// VerificationService runs the death-verification saga: an active executor
// submits a death certificate, the authority attests it, the evidence is
// stored, and the death trigger latches.
type VerificationService struct {
	db        *gorm.DB
	executors *ExecutorService
	triggers  *TriggerService
	audit     *AuditService
	blobs     storage.BlobStore
	authority VerificationAuthority
	maxBytes  int64
	log       *zap.Logger
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(db *gorm.DB, executors *ExecutorService, triggers *TriggerService, audit *AuditService, blobs storage.BlobStore, opts ...VerificationOption) (*VerificationService, error) {
	if db == nil {
		return nil, errors.New("verification service: db is required")
	}
	if executors == nil {
		return nil, errors.New("verification service: executor service is required")
	}
	if triggers == nil {
		return nil, errors.New("verification service: trigger service is required")
	}
	if audit == nil {
		return nil, errors.New("verification service: audit service is required")
	}
	if blobs == nil {
		return nil, errors.New("verification service: blob store is required")
	}

	service := &VerificationService{
		db:        db,
		executors: executors,
		triggers:  triggers,
		audit:     audit,
		blobs:     blobs,
		authority: AutoApprovalAuthority{},
		maxBytes:  DefaultMaxCertificateBytes,
		log:       logger.WithModule("verification"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// VerificationOption customises VerificationService behaviour.
type VerificationOption func(*VerificationService)

// WithAuthority replaces the attestation authority.
func WithAuthority(authority VerificationAuthority) VerificationOption {
	return func(s *VerificationService) {
		if authority != nil {
			s.authority = authority
		}
	}
}

// WithMaxCertificateBytes overrides the upload size cap.
func WithMaxCertificateBytes(limit int64) VerificationOption {
	return func(s *VerificationService) {
		if limit > 0 {
			s.maxBytes = limit
		}
	}
}

// CertificateUpload describes an incoming death-certificate file.
type CertificateUpload struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	Content     io.Reader
}

// VerificationResult reports the outcome of a successful submission.
type VerificationResult struct {
	Trigger  *models.TriggerEvent `json:"trigger"`
	Document *models.Document     `json:"document"`
}

// SubmitDeathCertificate runs the saga for the signed-in executor against one
// planner. Resubmission after the trigger has fired re-stores the evidence
// but leaves the latch untouched. A failure at any step before the latch
// leaves the trigger unfired.
func (s *VerificationService) SubmitDeathCertificate(ctx context.Context, user *models.User, plannerID string, upload CertificateUpload) (*VerificationResult, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, errors.New("verification service: user is required")
	}
	if upload.Content == nil {
		return nil, errors.New("verification service: certificate content is required")
	}
	if upload.SizeBytes > s.maxBytes {
		metrics.VerificationSubmissions.WithLabelValues("rejected").Inc()
		return nil, ErrCertificateTooLarge
	}

	executor, err := s.executors.ActiveForUser(ctx, user, plannerID)
	if err != nil {
		if errors.Is(err, ErrExecutorNotFound) {
			metrics.VerificationSubmissions.WithLabelValues("rejected").Inc()
			return nil, ErrNotActiveExecutor
		}
		metrics.VerificationSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	submission := EvidenceSubmission{
		PlannerID:   executor.PlannerID,
		ExecutorID:  executor.ID,
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		SizeBytes:   upload.SizeBytes,
	}
	if err := s.authority.Attest(ctx, submission); err != nil {
		metrics.VerificationSubmissions.WithLabelValues("rejected").Inc()
		s.recordAudit(ctx, user, executor, "failure")
		if errors.Is(err, ErrVerificationRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("verification service: attest: %w", err)
	}

	storagePath := certificatePath(executor.PlannerID, executor.ID, upload.FileName)

	// Capped reader backstops a lying size header; storing one byte past the
	// cap fails the upload.
	limited := io.LimitReader(upload.Content, s.maxBytes+1)
	written, err := s.blobs.Upload(ctx, storagePath, limited)
	if err != nil {
		metrics.VerificationSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("verification service: store certificate: %w", err)
	}
	if written > s.maxBytes {
		if delErr := s.blobs.Delete(ctx, storagePath); delErr != nil {
			s.log.Warn("failed to remove oversized certificate", zap.String("path", storagePath), zap.Error(delErr))
		}
		metrics.VerificationSubmissions.WithLabelValues("rejected").Inc()
		return nil, ErrCertificateTooLarge
	}

	document, err := s.upsertDocument(ctx, executor, upload, storagePath, written)
	if err != nil {
		metrics.VerificationSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	trigger, err := s.triggers.Ensure(ctx, executor.PlannerID, executor.ID, models.TriggerTypeDeath)
	if err != nil {
		metrics.VerificationSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	trigger, err = s.triggers.SetTriggered(ctx, trigger.ID, map[string]any{
		"note":        "Death certificate uploaded and verified by executor",
		"document_id": document.ID,
	})
	if err != nil {
		// The stored certificate and its document row are intentionally left
		// in place: the storage path is deterministic, so a retry overwrites
		// them and picks up where this attempt stopped. The trigger stays
		// unfired until a submission completes.
		metrics.VerificationSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	s.recordAudit(ctx, user, executor, "success")
	metrics.VerificationSubmissions.WithLabelValues("verified").Inc()

	return &VerificationResult{Trigger: trigger, Document: document}, nil
}

// upsertDocument records the certificate in the planner's document inventory,
// replacing the row for the same storage path on resubmission.
func (s *VerificationService) upsertDocument(ctx context.Context, executor *models.Executor, upload CertificateUpload, storagePath string, size int64) (*models.Document, error) {
	var document models.Document
	err := s.db.WithContext(ctx).
		Where("planner_id = ? AND storage_path = ?", executor.PlannerID, storagePath).
		Take(&document).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		document = models.Document{
			PlannerID:   executor.PlannerID,
			Category:    models.DocumentCategoryLegal,
			Name:        "Death certificate",
			StoragePath: storagePath,
			ContentType: upload.ContentType,
			SizeBytes:   size,
		}
		if err := s.db.WithContext(ctx).Create(&document).Error; err != nil {
			return nil, fmt.Errorf("verification service: create document: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("verification service: find document: %w", err)
	default:
		if err := s.db.WithContext(ctx).Model(&document).Updates(map[string]any{
			"content_type": upload.ContentType,
			"size_bytes":   size,
		}).Error; err != nil {
			return nil, fmt.Errorf("verification service: update document: %w", err)
		}
	}
	return &document, nil
}

func (s *VerificationService) recordAudit(ctx context.Context, user *models.User, executor *models.Executor, result string) {
	s.audit.Record(ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   models.AuditActionDeathVerified,
		Resource: "planner:" + executor.PlannerID,
		Result:   result,
		Metadata: map[string]any{"executor_id": executor.ID},
	})
}

// certificatePath derives the deterministic evidence location for a
// relationship. The extension is the only caller-controlled fragment and it
// is sanitised.
func certificatePath(plannerID, executorID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	ext = storage.SanitizeFragment(ext)
	return fmt.Sprintf("planners/%s/executors/%s/death-certificate%s", plannerID, executorID, ext)
}
