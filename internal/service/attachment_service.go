package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusops/report-portal/internal/models"
	appErrors "github.com/campusops/report-portal/pkg/errors"
	"github.com/campusops/report-portal/pkg/storage"
)

type attachmentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type attachmentSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// AttachmentService stores uploaded files and links them to reports.
type AttachmentService struct {
	reports   *ReportService
	storage   attachmentStorage
	signer    attachmentSigner
	logger    *zap.Logger
	maxBytes  int64
	allowed   map[string]struct{}
	baseURL   string
	urlPrefix string
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(reports *ReportService, store attachmentStorage, signer attachmentSigner, logger *zap.Logger, maxBytes int64, allowedMIMEs []string, baseURL string) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, mime := range allowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &AttachmentService{
		reports:   reports,
		storage:   store,
		signer:    signer,
		logger:    logger,
		maxBytes:  maxBytes,
		allowed:   allowed,
		baseURL:   baseURL,
		urlPrefix: "/api/reports",
	}
}

// Upload validates and stores an uploaded file, then appends the attachment
// record to the report's embedded collection.
func (s *AttachmentService) Upload(ctx context.Context, reportID string, header *multipart.FileHeader, claims *models.JWTClaims, meta models.LoginRequest) (*models.Attachment, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if header == nil {
		return nil, appErrors.Validation([]string{"file"})
	}
	if s.maxBytes > 0 && header.Size > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if semicolon := strings.Index(contentType, ";"); semicolon >= 0 {
		contentType = strings.TrimSpace(contentType[:semicolon])
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[contentType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %q is not allowed", contentType))
		}
	}

	src, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload")
	}
	defer src.Close() //nolint:errcheck

	attachmentID := uuid.NewString()
	relPath := filepath.Join("attachments", reportID, attachmentID+filepath.Ext(header.Filename))

	if _, err := s.storage.SaveStream(relPath, io.LimitReader(src, s.maxBytes+1)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	attachment := models.Attachment{
		ID:         attachmentID,
		Name:       header.Filename,
		Type:       contentType,
		URL:        fmt.Sprintf("%s%s/%s/attachments/%s", s.baseURL, s.urlPrefix, reportID, attachmentID),
		UploadedBy: claims.UserID,
		UploadDate: time.Now().UTC(),
	}

	_, err = s.reports.withRetry(ctx, reportID, claims, func(report *models.Report) error {
		report.Attachments = append(report.Attachments, attachment)
		return nil
	})
	if err != nil {
		// The file is orphaned if the report write failed, remove it.
		if cleanupErr := s.storage.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to clean up orphaned upload", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, err
	}

	s.reports.recordAudit(ctx, claims.UserID, models.AuditActionReportUpdate, reportID, nil, attachment, meta)
	return &attachment, nil
}

// Download resolves an attachment to a short-lived signed URL.
func (s *AttachmentService) Download(ctx context.Context, reportID, attachmentID string, claims *models.JWTClaims) (string, time.Time, error) {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return "", time.Time{}, err
	}

	attachment, ok := findAttachment(report.Attachments, attachmentID)
	if !ok {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}

	relPath := filepath.Join("attachments", reportID, attachment.ID+filepath.Ext(attachment.Name))
	token, expiresAt, err := s.signer.Generate(attachment.ID, relPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}

	return fmt.Sprintf("%s/api/files?token=%s", s.baseURL, token), expiresAt, nil
}

// OpenSigned validates a signed token and opens the backing file.
func (s *AttachmentService) OpenSigned(token string) (*os.File, string, error) {
	id, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrSignedURLExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link has expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "attachment file not found")
	}
	return file, id, nil
}

// Delete removes an attachment from the report and from storage. Admin only.
func (s *AttachmentService) Delete(ctx context.Context, reportID, attachmentID string, claims *models.JWTClaims, meta models.LoginRequest) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}

	var removed *models.Attachment
	_, err := s.reports.withRetry(ctx, reportID, claims, func(report *models.Report) error {
		attachment, ok := findAttachment(report.Attachments, attachmentID)
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		removed = &attachment
		filtered := report.Attachments[:0]
		for _, entry := range report.Attachments {
			if entry.ID != attachmentID {
				filtered = append(filtered, entry)
			}
		}
		report.Attachments = filtered
		return nil
	})
	if err != nil {
		return err
	}

	relPath := filepath.Join("attachments", reportID, removed.ID+filepath.Ext(removed.Name))
	if err := s.storage.Delete(relPath); err != nil {
		s.logger.Warn("failed to delete attachment file", zap.String("path", relPath), zap.Error(err))
	}

	s.reports.recordAudit(ctx, claims.UserID, models.AuditActionReportUpdate, reportID, removed, nil, meta)
	return nil
}

func findAttachment(attachments models.Attachments, id string) (models.Attachment, bool) {
	for _, entry := range attachments {
		if entry.ID == id {
			return entry, true
		}
	}
	return models.Attachment{}, false
}
