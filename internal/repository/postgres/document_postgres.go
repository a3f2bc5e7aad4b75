package postgres

import (
	"context"
	"database/sql"
	"time"

	"fleetdocs/internal/model"
	"fleetdocs/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentColumns = `id, vehicle_id, doc_type, valid_from, valid_to, note, attachment_key`

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, vehicle_id, doc_type, valid_from, valid_to, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.VehicleID,
		string(doc.DocType),
		doc.ValidFrom,
		doc.ValidTo,
		doc.Note,
	)
	var out model.Document
	if err := scanDocument(row, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var d model.Document
	if err := scanDocument(r.db.QueryRowContext(ctx, q, id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListAll returns every document, grouped by type and soonest-expiring first.
func (r *DocumentPostgres) ListAll(ctx context.Context) ([]model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents ORDER BY doc_type, valid_to`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		var d model.Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Update rewrites the mutable fields of a document. When valid_to or
// doc_type changed, the document's ledger rows are removed in the same
// transaction so future threshold notifications fire again.
func (r *DocumentPostgres) Update(ctx context.Context, doc *model.Document) (*model.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const qPrev = `SELECT doc_type, valid_to FROM documents WHERE id = $1 FOR UPDATE`
	var (
		prevType string
		prevTo   time.Time
	)
	if err := tx.QueryRowContext(ctx, qPrev, doc.ID).Scan(&prevType, &prevTo); err != nil {
		return nil, err
	}

	const qUpdate = `
		UPDATE documents
		SET doc_type = $2, valid_from = $3, valid_to = $4, note = $5
		WHERE id = $1
		RETURNING ` + documentColumns
	var out model.Document
	row := tx.QueryRowContext(ctx, qUpdate,
		doc.ID,
		string(doc.DocType),
		doc.ValidFrom,
		doc.ValidTo,
		doc.Note,
	)
	if err := scanDocument(row, &out); err != nil {
		return nil, err
	}

	if prevType != string(doc.DocType) || !sameDate(prevTo, doc.ValidTo) {
		const qRearm = `DELETE FROM notifications_log WHERE document_id = $1`
		if _, err := tx.ExecContext(ctx, qRearm, doc.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a document by ID and returns the deleted row. Ledger rows
// cascade with it.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) (*model.Document, error) {
	const q = `DELETE FROM documents WHERE id = $1 RETURNING ` + documentColumns
	var d model.Document
	if err := scanDocument(r.db.QueryRowContext(ctx, q, id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetAttachmentKey stores the object-storage key for the document's blob.
func (r *DocumentPostgres) SetAttachmentKey(ctx context.Context, id, key string) error {
	const q = `UPDATE documents SET attachment_key = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindExpiring returns documents expiring in [today, until], joined with
// their vehicle, soonest-expiring first. The notification ledger is not
// consulted: this feeds the dashboard, not the notifier.
func (r *DocumentPostgres) FindExpiring(ctx context.Context, today, until time.Time) ([]model.DueDocument, error) {
	const q = `
		SELECT d.id, v.plate, d.doc_type, d.valid_to, v.responsible_email,
		       (d.valid_to - $1::date) AS days_left
		FROM documents d
		JOIN vehicles v ON v.id = d.vehicle_id
		WHERE d.valid_to BETWEEN $1 AND $2
		ORDER BY d.valid_to ASC
	`
	rows, err := r.db.QueryContext(ctx, q, today, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDueRows(rows)
}

// FindDue implements the threshold evaluator scan: unexpired documents whose
// days-left equals a configured threshold and that have no ledger row yet
// for that exact (document, threshold) pair.
func (r *DocumentPostgres) FindDue(ctx context.Context, today time.Time, thresholds []int, vehicleID *string) ([]model.DueDocument, error) {
	const q = `
		SELECT due.id, due.plate, due.doc_type, due.valid_to, due.responsible_email, due.days_left
		FROM (
			SELECT d.id, v.plate, d.doc_type, d.valid_to, v.responsible_email,
			       (d.valid_to - $1::date) AS days_left, d.vehicle_id
			FROM documents d
			JOIN vehicles v ON v.id = d.vehicle_id
			WHERE d.valid_to >= $1
		) due
		WHERE due.days_left = ANY($2)
		  AND NOT EXISTS (
			SELECT 1 FROM notifications_log nl
			WHERE nl.document_id = due.id AND nl.threshold_days = due.days_left
		  )
		  AND ($3::uuid IS NULL OR due.vehicle_id = $3)
		ORDER BY due.valid_to ASC
	`
	ts := make([]int32, len(thresholds))
	for i, t := range thresholds {
		ts[i] = int32(t)
	}
	rows, err := r.db.QueryContext(ctx, q, today, ts, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDueRows(rows)
}

func collectDueRows(rows *sql.Rows) ([]model.DueDocument, error) {
	items := make([]model.DueDocument, 0)
	for rows.Next() {
		var (
			d     model.DueDocument
			dt    string
			email sql.NullString
		)
		if err := rows.Scan(&d.DocumentID, &d.Plate, &dt, &d.ValidTo, &email, &d.DaysLeft); err != nil {
			return nil, err
		}
		d.DocType = model.DocType(dt)
		d.ResponsibleEmail = email.String
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanDocument(row rowScanner, d *model.Document) error {
	var (
		dt      string
		from    sql.NullTime
		note    sql.NullString
		blobKey sql.NullString
	)
	if err := row.Scan(&d.ID, &d.VehicleID, &dt, &from, &d.ValidTo, &note, &blobKey); err != nil {
		return err
	}
	d.DocType = model.DocType(dt)
	if from.Valid {
		t := from.Time
		d.ValidFrom = &t
	}
	d.Note = note.String
	d.AttachmentKey = blobKey.String
	return nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
