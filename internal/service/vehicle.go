package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetdocs/internal/model"
	"fleetdocs/internal/repository"
)

var (
	ErrIDRequired      = errors.New("id is required")
	ErrPlateRequired   = errors.New("plate is required")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrPlateExists     = errors.New("plate already registered")
)

// CreateVehicleInput is the payload for registering a vehicle.
type CreateVehicleInput struct {
	Plate            string `json:"plate"`
	Make             string `json:"make"`
	Model            string `json:"model"`
	Year             int    `json:"year"`
	ResponsibleEmail string `json:"responsible_email"`
}

// DocumentView decorates a document with its derived expiry fields.
type DocumentView struct {
	model.Document
	DaysLeft int                  `json:"days_left"`
	Status   model.DocumentStatus `json:"status"`
}

// VehicleWithDocuments is the dashboard payload: a vehicle, its documents
// and a summary of the next document to expire.
type VehicleWithDocuments struct {
	model.Vehicle
	Documents     []DocumentView       `json:"documents"`
	DocumentCount int                  `json:"document_count"`
	NextValidTo   *time.Time           `json:"next_valid_to,omitempty"`
	NextDaysLeft  *int                 `json:"days_left,omitempty"`
	NextStatus    model.DocumentStatus `json:"next_status,omitempty"`
}

// VehicleService defines the use cases for managing fleet vehicles.
type VehicleService interface {
	// Create registers a vehicle and sends a best-effort informational mail.
	Create(ctx context.Context, in CreateVehicleInput) (*model.Vehicle, error)

	// List returns vehicles with their documents and expiry summaries,
	// optionally filtered by a search term.
	List(ctx context.Context, q string) ([]VehicleWithDocuments, error)

	// Delete removes a vehicle (documents and ledger rows cascade) and
	// sends a best-effort informational mail.
	Delete(ctx context.Context, id string) error
}

type vehicleService struct {
	vehicles repository.VehicleRepository
	docs     repository.DocumentRepository
	notifier MailNotifier
	panelURL string
	now      func() time.Time
}

// NewVehicleService constructs a new VehicleService.
func NewVehicleService(vehicles repository.VehicleRepository, docs repository.DocumentRepository, notifier MailNotifier, panelURL string, now func() time.Time) VehicleService {
	if now == nil {
		now = time.Now
	}
	return &vehicleService{
		vehicles: vehicles,
		docs:     docs,
		notifier: notifier,
		panelURL: panelURL,
		now:      now,
	}
}

func (s *vehicleService) Create(ctx context.Context, in CreateVehicleInput) (*model.Vehicle, error) {
	if in.Plate == "" {
		return nil, ErrPlateRequired
	}

	v := &model.Vehicle{
		ID:               uuid.New().String(),
		Plate:            in.Plate,
		Make:             in.Make,
		Model:            in.Model,
		Year:             in.Year,
		ResponsibleEmail: in.ResponsibleEmail,
		CreatedAt:        s.now().UTC(),
	}
	stored, err := s.vehicles.Create(ctx, v)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePlate) {
			return nil, ErrPlateExists
		}
		return nil, err
	}

	// Informational mail only; a mail failure must not fail the create.
	s.sendInfoMail(ctx, stored.ResponsibleEmail, "vehicle_created",
		fmt.Sprintf("Yeni Araç Eklendi: %s", stored.Plate),
		fmt.Sprintf("<p>%s plakalı araç sisteme eklendi.</p><p>Panel: <a href=%q>%s/vehicles</a></p>",
			stored.Plate, s.panelURL+"/vehicles", s.panelURL))

	return stored, nil
}

func (s *vehicleService) List(ctx context.Context, q string) ([]VehicleWithDocuments, error) {
	vehicles, err := s.vehicles.List(ctx, q)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	today := s.now()
	byVehicle := make(map[string][]DocumentView, len(vehicles))
	for _, d := range docs {
		daysLeft := model.DaysLeft(d.ValidTo, today)
		byVehicle[d.VehicleID] = append(byVehicle[d.VehicleID], DocumentView{
			Document: d,
			DaysLeft: daysLeft,
			Status:   model.StatusFor(daysLeft),
		})
	}

	out := make([]VehicleWithDocuments, 0, len(vehicles))
	for _, v := range vehicles {
		views := byVehicle[v.ID]
		if views == nil {
			views = []DocumentView{}
		}
		row := VehicleWithDocuments{
			Vehicle:       v,
			Documents:     views,
			DocumentCount: len(views),
		}
		// Soonest unexpired document drives the vehicle-level summary.
		for i := range views {
			dv := views[i]
			if dv.DaysLeft < 0 {
				continue
			}
			if row.NextDaysLeft == nil || dv.DaysLeft < *row.NextDaysLeft {
				dl := dv.DaysLeft
				vt := dv.ValidTo
				row.NextDaysLeft = &dl
				row.NextValidTo = &vt
				row.NextStatus = dv.Status
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *vehicleService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	deleted, err := s.vehicles.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVehicleNotFound
		}
		return err
	}

	s.sendInfoMail(ctx, deleted.ResponsibleEmail, "vehicle_deleted",
		fmt.Sprintf("Araç Silindi: %s", deleted.Plate),
		fmt.Sprintf("<p>%s plakalı araç sistemden silindi.</p><p>Detaylar için panel: <a href=%q>%s/vehicles</a></p>",
			deleted.Plate, s.panelURL+"/vehicles", s.panelURL))

	return nil
}

// sendInfoMail dispatches a best-effort informational mail to the vehicle's
// responsible address (the notifier's override wins when configured).
// Failures are logged and swallowed.
func (s *vehicleService) sendInfoMail(ctx context.Context, to, event, subject, html string) {
	if s.notifier == nil {
		return
	}
	if _, _, err := s.notifier.Send(ctx, to, subject, html); err != nil {
		logJSON(map[string]any{
			"component":     "vehicle_service",
			"event":         event,
			"status":        "mail_failed",
			"error_message": err.Error(),
		})
	}
}
