package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"fleetdocs/internal/model"
	"fleetdocs/internal/repository"
)

// VehiclePostgres is a PostgreSQL implementation of repository.VehicleRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type VehiclePostgres struct {
	db *sql.DB
}

// NewVehiclePostgres creates a new VehiclePostgres repository.
func NewVehiclePostgres(db *sql.DB) *VehiclePostgres {
	return &VehiclePostgres{db: db}
}

var _ repository.VehicleRepository = (*VehiclePostgres)(nil)

const uniqueViolation = "23505"

// Create inserts a new vehicle row and returns the stored record.
// A plate collision surfaces as repository.ErrDuplicatePlate.
func (r *VehiclePostgres) Create(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	const q = `
		INSERT INTO vehicles (id, plate, make, model, year, responsible_email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, plate, make, model, year, responsible_email, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		v.ID,
		v.Plate,
		v.Make,
		v.Model,
		v.Year,
		v.ResponsibleEmail,
		v.CreatedAt,
	)
	var out model.Vehicle
	if err := scanVehicle(row, &out); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicatePlate
		}
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single vehicle by its ID.
func (r *VehiclePostgres) FindByID(ctx context.Context, id string) (*model.Vehicle, error) {
	const q = `
		SELECT id, plate, make, model, year, responsible_email, created_at
		FROM vehicles
		WHERE id = $1
	`
	var v model.Vehicle
	if err := scanVehicle(r.db.QueryRowContext(ctx, q, id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns vehicles ordered by plate, optionally filtered by a
// case-insensitive substring match over plate, make and model.
func (r *VehiclePostgres) List(ctx context.Context, q string) ([]model.Vehicle, error) {
	const qAll = `
		SELECT id, plate, make, model, year, responsible_email, created_at
		FROM vehicles
		ORDER BY plate
	`
	const qFiltered = `
		SELECT id, plate, make, model, year, responsible_email, created_at
		FROM vehicles
		WHERE plate ILIKE $1 OR make ILIKE $1 OR model ILIKE $1
		ORDER BY plate
	`

	var rows *sql.Rows
	var err error
	if q == "" {
		rows, err = r.db.QueryContext(ctx, qAll)
	} else {
		rows, err = r.db.QueryContext(ctx, qFiltered, "%"+q+"%")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Vehicle, 0)
	for rows.Next() {
		var v model.Vehicle
		if err := scanVehicle(rows, &v); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a vehicle by ID and returns the deleted row. Documents and
// their ledger rows go with it via ON DELETE CASCADE.
func (r *VehiclePostgres) Delete(ctx context.Context, id string) (*model.Vehicle, error) {
	const q = `
		DELETE FROM vehicles
		WHERE id = $1
		RETURNING id, plate, make, model, year, responsible_email, created_at
	`
	var v model.Vehicle
	if err := scanVehicle(r.db.QueryRowContext(ctx, q, id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner, v *model.Vehicle) error {
	var (
		mk, md, email sql.NullString
		year          sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.Plate, &mk, &md, &year, &email, &v.CreatedAt); err != nil {
		return err
	}
	v.Make = mk.String
	v.Model = md.String
	v.Year = int(year.Int64)
	v.ResponsibleEmail = email.String
	return nil
}
