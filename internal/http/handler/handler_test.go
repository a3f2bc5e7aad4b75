package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fleetdocs/internal/mail"
	"fleetdocs/internal/model"
	"fleetdocs/internal/service"
	serviceMocks "fleetdocs/internal/service/mocks"
)

type testRig struct {
	app       *fiber.App
	vehicles  *serviceMocks.MockVehicleService
	documents *serviceMocks.MockDocumentService
	notify    *serviceMocks.MockNotifyService
	dbMock    sqlmock.Sqlmock
}

// runnerStub forwards manual triggers straight to the notify mock; the
// scheduler's serialization is covered by its own tests.
type runnerStub struct {
	notify *serviceMocks.MockNotifyService
}

func (r runnerStub) RunNow(ctx context.Context, vehicleID *string) (*service.RunReport, error) {
	return r.notify.Run(ctx, vehicleID)
}

func newRig(t *testing.T, adminPassword string) *testRig {
	t.Helper()
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rig := &testRig{
		vehicles:  new(serviceMocks.MockVehicleService),
		documents: new(serviceMocks.MockDocumentService),
		notify:    new(serviceMocks.MockNotifyService),
		dbMock:    dbMock,
	}
	rig.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(rig.app, Deps{
		DB:            db,
		Vehicles:      rig.vehicles,
		Documents:     rig.documents,
		Notify:        rig.notify,
		Runner:        runnerStub{notify: rig.notify},
		AdminPassword: adminPassword,
	})
	return rig
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	rig := newRig(t, "")

	t.Run("healthy", func(t *testing.T) {
		rig.dbMock.ExpectPing().WillReturnError(nil)

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unhealthy", func(t *testing.T) {
		rig.dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLiveness(t *testing.T) {
	rig := newRig(t, "")

	resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListVehicles(t *testing.T) {
	rig := newRig(t, "")
	rig.vehicles.On("List", mock.Anything, "").Return([]service.VehicleWithDocuments{
		{Vehicle: model.Vehicle{ID: uuid.New().String(), Plate: "34ABC123"}, Documents: []service.DocumentView{}},
	}, nil).Once()

	resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/vehicles", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[[]service.VehicleWithDocuments](t, resp)
	require.Len(t, body, 1)
	assert.Equal(t, "34ABC123", body[0].Plate)
}

func TestListVehicles_SearchTermForwarded(t *testing.T) {
	rig := newRig(t, "")
	rig.vehicles.On("List", mock.Anything, "34abc").Return([]service.VehicleWithDocuments{}, nil).Once()

	resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/vehicles?q=34abc", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	rig.vehicles.AssertExpectations(t)
}

func TestCreateVehicle(t *testing.T) {
	rig := newRig(t, "")

	t.Run("created", func(t *testing.T) {
		rig.vehicles.On("Create", mock.Anything, service.CreateVehicleInput{Plate: "34ABC123", Make: "Ford"}).
			Return(&model.Vehicle{ID: uuid.New().String(), Plate: "34ABC123"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/vehicles",
			strings.NewReader(`{"plate":"34ABC123","make":"Ford"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("duplicate plate", func(t *testing.T) {
		rig.vehicles.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrPlateExists).Once()

		req := httptest.NewRequest(http.MethodPost, "/vehicles", strings.NewReader(`{"plate":"34ABC123"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "PLATE_EXISTS", body.Error.Code)
	})

	t.Run("missing plate", func(t *testing.T) {
		rig.vehicles.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrPlateRequired).Once()

		req := httptest.NewRequest(http.MethodPost, "/vehicles", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteVehicle_AdminGuard(t *testing.T) {
	rig := newRig(t, "s3cret")
	id := uuid.New().String()

	t.Run("missing password", func(t *testing.T) {
		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodDelete, "/vehicles/"+id, nil))

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		rig.vehicles.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("header password", func(t *testing.T) {
		rig.vehicles.On("Delete", mock.Anything, id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/vehicles/"+id, nil)
		req.Header.Set("X-Admin-Password", "s3cret")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("query fallback", func(t *testing.T) {
		rig.vehicles.On("Delete", mock.Anything, id).Return(nil).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodDelete, "/vehicles/"+id+"?admin_password=s3cret", nil))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		rig.vehicles.On("Delete", mock.Anything, id).Return(service.ErrVehicleNotFound).Once()

		req := httptest.NewRequest(http.MethodDelete, "/vehicles/"+id, nil)
		req.Header.Set("X-Admin-Password", "s3cret")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCreateDocument(t *testing.T) {
	vehicleID := uuid.New().String()

	t.Run("vehicle id in path", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateDocumentInput) bool {
			return in.VehicleID == vehicleID &&
				in.DocType == "kasko" &&
				in.ValidTo.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
		})).Return(&service.DocumentView{Document: model.Document{ID: uuid.New().String()}}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/vehicles/"+vehicleID+"/documents",
			strings.NewReader(`{"doc_type":"kasko","valid_to":"2024-06-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		rig.documents.AssertExpectations(t)
	})

	t.Run("vehicle id in body", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateDocumentInput) bool {
			return in.VehicleID == vehicleID
		})).Return(&service.DocumentView{Document: model.Document{ID: uuid.New().String()}}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"vehicle_id":"`+vehicleID+`","doc_type":"muayene","valid_to":"2024-06-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("missing vehicle id", func(t *testing.T) {
		rig := newRig(t, "")

		req := httptest.NewRequest(http.MethodPost, "/documents",
			strings.NewReader(`{"doc_type":"kasko","valid_to":"2024-06-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "VEHICLE_ID_REQUIRED", body.Error.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		rig := newRig(t, "")

		req := httptest.NewRequest(http.MethodPost, "/vehicles/"+vehicleID+"/documents",
			strings.NewReader(`{"doc_type":"kasko","valid_to":"01.06.2024"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "INVALID_DATE", body.Error.Code)
	})

	t.Run("unknown doc type", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrInvalidDocType).Once()

		req := httptest.NewRequest(http.MethodPost, "/vehicles/"+vehicleID+"/documents",
			strings.NewReader(`{"doc_type":"ruhsat","valid_to":"2024-06-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "INVALID_DOC_TYPE", body.Error.Code)
	})
}

func TestUpdateDocument(t *testing.T) {
	id := uuid.New().String()

	t.Run("updated", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Update", mock.Anything, id, mock.MatchedBy(func(in service.UpdateDocumentInput) bool {
			return in.DocType == "trafik" && in.ValidTo.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		})).Return(&service.DocumentView{Document: model.Document{ID: id}}, nil).Once()

		req := httptest.NewRequest(http.MethodPut, "/documents/"+id,
			strings.NewReader(`{"doc_type":"trafik","valid_to":"2025-01-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Update", mock.Anything, id, mock.Anything).Return(nil, service.ErrDocumentNotFound).Once()

		req := httptest.NewRequest(http.MethodPut, "/documents/"+id,
			strings.NewReader(`{"doc_type":"kasko","valid_to":"2025-01-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		rig := newRig(t, "")

		req := httptest.NewRequest(http.MethodPut, "/documents/not-a-uuid",
			strings.NewReader(`{"doc_type":"kasko","valid_to":"2025-01-01"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUploadAttachment(t *testing.T) {
	id := uuid.New().String()

	t.Run("uploaded", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("Attach", mock.Anything, id, mock.Anything, "policy.pdf", mock.Anything, mock.Anything).
			Return(&model.Document{ID: id, AttachmentKey: "attachments/blob.pdf"}, nil).Once()

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fw, err := w.CreateFormFile("file", "policy.pdf")
		require.NoError(t, err)
		fw.Write([]byte("%PDF-1.4"))
		w.Close()

		req := httptest.NewRequest(http.MethodPost, "/documents/"+id+"/attachment", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		rig.documents.AssertExpectations(t)
	})

	t.Run("file missing", func(t *testing.T) {
		rig := newRig(t, "")

		req := httptest.NewRequest(http.MethodPost, "/documents/"+id+"/attachment", nil)
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "FILE_REQUIRED", body.Error.Code)
	})
}

func TestDownloadAttachment(t *testing.T) {
	id := uuid.New().String()

	t.Run("returns presigned url", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("AttachmentURL", mock.Anything, id).Return("https://minio.local/presigned", nil).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/attachment", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "https://minio.local/presigned", body["url"])
	})

	t.Run("no attachment", func(t *testing.T) {
		rig := newRig(t, "")
		rig.documents.On("AttachmentURL", mock.Anything, id).Return("", service.ErrNoAttachment).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/attachment", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "NO_ATTACHMENT", body.Error.Code)
	})
}

func TestExpiring(t *testing.T) {
	rig := newRig(t, "")

	t.Run("default window", func(t *testing.T) {
		rig.documents.On("Expiring", mock.Anything, 30).Return([]service.ExpiringDocument{
			{ID: uuid.New().String(), Plate: "34ABC123", DaysLeft: 7, Status: model.StatusCritical},
		}, nil).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/expiring", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]json.RawMessage](t, resp)
		assert.JSONEq(t, "30", string(body["days"]))
		assert.JSONEq(t, "1", string(body["count"]))
	})

	t.Run("custom window", func(t *testing.T) {
		rig.documents.On("Expiring", mock.Anything, 60).Return([]service.ExpiringDocument{}, nil).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/expiring?days=60", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid days", func(t *testing.T) {
		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/expiring?days=soon", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("days out of range", func(t *testing.T) {
		rig.documents.On("Expiring", mock.Anything, 400).Return(nil, service.ErrDaysOutOfRange).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodGet, "/expiring?days=400", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp)
		assert.Equal(t, "INVALID_DAYS", body.Error.Code)
	})
}

func TestRunNotifications(t *testing.T) {
	t.Run("fleet-wide", func(t *testing.T) {
		rig := newRig(t, "s3cret")
		rig.notify.On("Run", mock.Anything, (*string)(nil)).
			Return(&service.RunReport{Scanned: 3, Sent: 2, Skipped: 1}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/notifications/run", nil)
		req.Header.Set("X-Admin-Password", "s3cret")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[service.RunReport](t, resp)
		assert.Equal(t, 2, body.Sent)
	})

	t.Run("vehicle scoped", func(t *testing.T) {
		rig := newRig(t, "s3cret")
		veh := uuid.New().String()
		rig.notify.On("Run", mock.Anything, mock.MatchedBy(func(id *string) bool {
			return id != nil && *id == veh
		})).Return(&service.RunReport{}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/notifications/run?vehicle_id="+veh, nil)
		req.Header.Set("X-Admin-Password", "s3cret")
		resp, _ := rig.app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		rig.notify.AssertExpectations(t)
	})

	t.Run("guarded", func(t *testing.T) {
		rig := newRig(t, "s3cret")

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodPost, "/notifications/run", nil))

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestSendTest(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		rig := newRig(t, "")
		rig.notify.On("SendTest", mock.Anything, "ops@example.com").Return("resend", nil).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodPost, "/debug/send_test?to=ops%40example.com", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "resend", body["provider"])
	})

	t.Run("to required", func(t *testing.T) {
		rig := newRig(t, "")

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodPost, "/debug/send_test", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no transport configured", func(t *testing.T) {
		rig := newRig(t, "")
		rig.notify.On("SendTest", mock.Anything, "ops@example.com").Return("", mail.ErrNoTransport).Once()

		resp, _ := rig.app.Test(httptest.NewRequest(http.MethodPost, "/debug/send_test?to=ops%40example.com", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
