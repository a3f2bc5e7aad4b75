package repository

import (
	"context"
	"errors"
	"time"

	"fleetdocs/internal/model"
)

// ErrDuplicatePlate is returned by VehicleRepository.Create when the plate
// is already registered.
var ErrDuplicatePlate = errors.New("plate already exists")

// VehicleRepository defines data access for vehicles using SQL queries only.
// No business logic here — strictly persistence operations.
type VehicleRepository interface {
	// Create inserts a new vehicle and returns the stored row.
	Create(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error)

	// FindByID returns a vehicle by its ID.
	FindByID(ctx context.Context, id string) (*model.Vehicle, error)

	// List returns vehicles ordered by plate. When q is non-empty, it
	// filters by case-insensitive substring match on plate, make or model.
	List(ctx context.Context, q string) ([]model.Vehicle, error)

	// Delete removes a vehicle and returns the deleted row.
	// Returns sql.ErrNoRows if no such vehicle exists.
	Delete(ctx context.Context, id string) (*model.Vehicle, error)
}

// DocumentRepository defines data access for vehicle documents.
type DocumentRepository interface {
	// Create inserts a new document row and returns the stored record.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListAll returns every document ordered by doc_type, valid_to.
	ListAll(ctx context.Context) ([]model.Document, error)

	// Update rewrites doc_type, valid_from, valid_to and note of an existing
	// document. When valid_to or doc_type changes, the document's ledger
	// rows are deleted in the same transaction so future threshold
	// notifications re-arm.
	Update(ctx context.Context, doc *model.Document) (*model.Document, error)

	// Delete removes a document and returns the deleted row.
	// Returns sql.ErrNoRows if no such document exists.
	Delete(ctx context.Context, id string) (*model.Document, error)

	// SetAttachmentKey stores the object-storage key of the document's
	// attachment blob.
	SetAttachmentKey(ctx context.Context, id, key string) error

	// FindExpiring returns documents whose valid_to falls in [today, until],
	// joined with their vehicle, ordered by valid_to ascending. It does not
	// consult the notification ledger.
	FindExpiring(ctx context.Context, today, until time.Time) ([]model.DueDocument, error)

	// FindDue returns documents whose days-left relative to today equals one
	// of the given thresholds and that have no ledger entry yet for that
	// (document, threshold) pair, ordered by valid_to ascending. A non-nil
	// vehicleID restricts the scan to that vehicle.
	FindDue(ctx context.Context, today time.Time, thresholds []int, vehicleID *string) ([]model.DueDocument, error)
}

// NotificationLogRepository is the persisted ledger of sent notifications.
type NotificationLogRepository interface {
	// Record inserts a ledger row for (documentID, threshold). Inserting an
	// already-present pair is a no-op, never an error: the uniqueness
	// constraint resolves concurrent duplicates to a single logical row.
	Record(ctx context.Context, documentID string, threshold int, sentAt time.Time) error

	// IsNotified reports whether a ledger row exists for the pair.
	IsNotified(ctx context.Context, documentID string, threshold int) (bool, error)
}
