package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fleetdocs/internal/model"
	"fleetdocs/internal/repository"
	"fleetdocs/internal/storage"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidDocType   = errors.New("unrecognized document type")
	ErrValidToRequired  = errors.New("valid_to is required")
	ErrNoAttachment     = errors.New("document has no attachment")
	ErrReaderNil        = errors.New("reader is nil")
	ErrDaysOutOfRange   = errors.New("days must be between 1 and 365")
)

// attachmentURLExpiry bounds how long a presigned download link stays valid.
const attachmentURLExpiry = 15 * time.Minute

// CreateDocumentInput is the payload for adding a document to a vehicle.
// DocType accepts free-text synonyms; they are normalized before the
// allow-list check.
type CreateDocumentInput struct {
	VehicleID string     `json:"vehicle_id"`
	DocType   string     `json:"doc_type"`
	ValidFrom *time.Time `json:"valid_from"`
	ValidTo   time.Time  `json:"valid_to"`
	Note      string     `json:"note"`
}

// UpdateDocumentInput is the payload for rewriting a document's fields.
type UpdateDocumentInput struct {
	DocType   string     `json:"doc_type"`
	ValidFrom *time.Time `json:"valid_from"`
	ValidTo   time.Time  `json:"valid_to"`
	Note      string     `json:"note"`
}

// ExpiringDocument is one row of the "expiring within N days" report.
type ExpiringDocument struct {
	ID               string               `json:"id"`
	Plate            string               `json:"plate"`
	DocType          model.DocType        `json:"doc_type"`
	ValidTo          time.Time            `json:"valid_to"`
	ResponsibleEmail string               `json:"responsible_email,omitempty"`
	DaysLeft         int                  `json:"days_left"`
	Status           model.DocumentStatus `json:"status"`
}

// DocumentService defines the use cases for handling vehicle documents.
type DocumentService interface {
	// Create validates and stores a document, sends a best-effort
	// informational mail, and fires an immediate threshold reminder (with a
	// ledger record) when the document is created already at a threshold.
	Create(ctx context.Context, in CreateDocumentInput) (*DocumentView, error)

	// Update rewrites a document's fields. A change of valid_to or doc_type
	// re-arms its future threshold notifications.
	Update(ctx context.Context, id string, in UpdateDocumentInput) (*DocumentView, error)

	// Delete removes a document and its ledger rows, with a best-effort
	// informational mail.
	Delete(ctx context.Context, id string) error

	// Expiring lists documents whose valid_to falls within the next N days.
	// It never consults the notification ledger.
	Expiring(ctx context.Context, days int) ([]ExpiringDocument, error)

	// Attach streams an attachment blob to object storage and links it to
	// the document, rolling the blob back if the link cannot be persisted.
	Attach(ctx context.Context, id string, r io.Reader, originalFilename, contentType string, size int64) (*model.Document, error)

	// AttachmentURL returns a time-limited download URL for the attachment.
	AttachmentURL(ctx context.Context, id string) (string, error)
}

type documentService struct {
	docs       repository.DocumentRepository
	vehicles   repository.VehicleRepository
	ledger     repository.NotificationLogRepository
	store      storage.Storage
	notifier   MailNotifier
	thresholds []int
	panelURL   string
	now        func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(
	docs repository.DocumentRepository,
	vehicles repository.VehicleRepository,
	ledger repository.NotificationLogRepository,
	store storage.Storage,
	notifier MailNotifier,
	thresholds []int,
	panelURL string,
	now func() time.Time,
) DocumentService {
	if now == nil {
		now = time.Now
	}
	return &documentService{
		docs:       docs,
		vehicles:   vehicles,
		ledger:     ledger,
		store:      store,
		notifier:   notifier,
		thresholds: thresholds,
		panelURL:   panelURL,
		now:        now,
	}
}

func (s *documentService) Create(ctx context.Context, in CreateDocumentInput) (*DocumentView, error) {
	if in.VehicleID == "" {
		return nil, ErrIDRequired
	}
	if in.ValidTo.IsZero() {
		return nil, ErrValidToRequired
	}
	docType := model.NormalizeDocType(in.DocType)
	if !docType.Valid() {
		return nil, ErrInvalidDocType
	}

	vehicle, err := s.vehicles.FindByID(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	doc := &model.Document{
		ID:        uuid.New().String(),
		VehicleID: vehicle.ID,
		DocType:   docType,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
		Note:      in.Note,
	}
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		return nil, err
	}

	daysLeft := model.DaysLeft(stored.ValidTo, s.now())

	s.sendInfoMail(ctx, vehicle.ResponsibleEmail, "document_created",
		fmt.Sprintf("Belge Eklendi: %s - %s", vehicle.Plate, docType),
		renderDocumentAlert(vehicle.Plate, docType, stored.ValidTo, daysLeft, s.panelURL))

	// A document created exactly at a threshold gets its reminder right
	// away instead of waiting for the next daily pass.
	if containsThreshold(s.thresholds, daysLeft) {
		s.sendThresholdAlert(ctx, stored.ID, vehicle.Plate, vehicle.ResponsibleEmail, docType, stored.ValidTo, daysLeft)
	}

	return &DocumentView{
		Document: *stored,
		DaysLeft: daysLeft,
		Status:   model.StatusFor(daysLeft),
	}, nil
}

func (s *documentService) Update(ctx context.Context, id string, in UpdateDocumentInput) (*DocumentView, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if in.ValidTo.IsZero() {
		return nil, ErrValidToRequired
	}
	docType := model.NormalizeDocType(in.DocType)
	if !docType.Valid() {
		return nil, ErrInvalidDocType
	}

	updated, err := s.docs.Update(ctx, &model.Document{
		ID:        id,
		DocType:   docType,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
		Note:      in.Note,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	daysLeft := model.DaysLeft(updated.ValidTo, s.now())
	return &DocumentView{
		Document: *updated,
		DaysLeft: daysLeft,
		Status:   model.StatusFor(daysLeft),
	}, nil
}

func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	deleted, err := s.docs.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDocumentNotFound
		}
		return err
	}

	// Orphaned attachment blobs are removed best-effort; the DB row is
	// already gone and a leftover object is harmless.
	if deleted.AttachmentKey != "" && s.store != nil {
		if err := s.store.Delete(ctx, deleted.AttachmentKey); err != nil {
			logJSON(map[string]any{
				"component":     "document_service",
				"event":         "attachment_cleanup_failed",
				"document_id":   deleted.ID,
				"error_message": err.Error(),
			})
		}
	}

	// The vehicle row still exists (only the document cascaded away); its
	// responsible address receives the deletion notice.
	var to string
	if v, err := s.vehicles.FindByID(ctx, deleted.VehicleID); err == nil {
		to = v.ResponsibleEmail
	}
	s.sendInfoMail(ctx, to, "document_deleted",
		fmt.Sprintf("Belge Silindi: %s", deleted.DocType),
		fmt.Sprintf("<p>%s belgesi silindi. Eski geçerlilik: %s</p>",
			deleted.DocType, deleted.ValidTo.Format("2006-01-02")))

	return nil
}

func (s *documentService) Expiring(ctx context.Context, days int) ([]ExpiringDocument, error) {
	if days < 1 || days > 365 {
		return nil, ErrDaysOutOfRange
	}

	today := s.now()
	until := today.AddDate(0, 0, days)
	rows, err := s.docs.FindExpiring(ctx, dateOnly(today), dateOnly(until))
	if err != nil {
		return nil, err
	}

	out := make([]ExpiringDocument, 0, len(rows))
	for _, r := range rows {
		out = append(out, ExpiringDocument{
			ID:               r.DocumentID,
			Plate:            r.Plate,
			DocType:          r.DocType,
			ValidTo:          r.ValidTo,
			ResponsibleEmail: r.ResponsibleEmail,
			DaysLeft:         r.DaysLeft,
			Status:           model.StatusFor(r.DaysLeft),
		})
	}
	return out, nil
}

func (s *documentService) Attach(ctx context.Context, id string, r io.Reader, originalFilename, contentType string, size int64) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if r == nil {
		return nil, ErrReaderNil
	}

	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	ext := filepath.Ext(originalFilename)
	key := filepath.ToSlash(filepath.Join("attachments", uuid.New().String()+ext))

	if _, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": originalFilename,
			"document-id":       doc.ID,
		},
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	if err := s.docs.SetAttachmentKey(ctx, doc.ID, key); err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	// Replace semantics: drop the previous blob once the new key is linked.
	if doc.AttachmentKey != "" && doc.AttachmentKey != key {
		if err := s.store.Delete(ctx, doc.AttachmentKey); err != nil {
			logJSON(map[string]any{
				"component":     "document_service",
				"event":         "attachment_cleanup_failed",
				"document_id":   doc.ID,
				"error_message": err.Error(),
			})
		}
	}

	doc.AttachmentKey = key
	return doc, nil
}

func (s *documentService) AttachmentURL(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}
	if doc.AttachmentKey == "" {
		return "", ErrNoAttachment
	}
	return s.store.PresignGet(ctx, doc.AttachmentKey, attachmentURLExpiry)
}

// sendThresholdAlert sends one reminder and appends the ledger row that
// suppresses any further reminder for this (document, threshold) pair.
func (s *documentService) sendThresholdAlert(ctx context.Context, docID, plate, to string, docType model.DocType, validTo time.Time, daysLeft int) {
	// At most one reminder per (document, threshold) pair. A lookup error
	// falls through to the send; the ledger insert dedups regardless.
	if notified, err := s.ledger.IsNotified(ctx, docID, daysLeft); err == nil && notified {
		return
	}

	subject := fmt.Sprintf("Araç Belge Uyarısı: %s - %s (%dg)", plate, docType, daysLeft)
	html := renderDocumentAlert(plate, docType, validTo, daysLeft, s.panelURL)

	if _, _, err := s.notifier.Send(ctx, to, subject, html); err != nil {
		logJSON(map[string]any{
			"component":     "document_service",
			"event":         "immediate_alert_failed",
			"document_id":   docID,
			"threshold":     daysLeft,
			"error_message": err.Error(),
		})
		return
	}
	if err := s.ledger.Record(ctx, docID, daysLeft, s.now().UTC()); err != nil {
		logJSON(map[string]any{
			"component":     "document_service",
			"event":         "ledger_write_failed",
			"document_id":   docID,
			"threshold":     daysLeft,
			"error_message": err.Error(),
		})
	}
}

func (s *documentService) sendInfoMail(ctx context.Context, to, event, subject, html string) {
	if s.notifier == nil {
		return
	}
	if _, _, err := s.notifier.Send(ctx, to, subject, html); err != nil {
		logJSON(map[string]any{
			"component":     "document_service",
			"event":         event,
			"status":        "mail_failed",
			"error_message": err.Error(),
		})
	}
}

func containsThreshold(thresholds []int, daysLeft int) bool {
	for _, t := range thresholds {
		if t == daysLeft {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
