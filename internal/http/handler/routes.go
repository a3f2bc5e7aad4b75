package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetdocs/internal/mail"
	"fleetdocs/internal/service"
)

// NotifyRunner triggers a notification pass. The scheduler implements it so
// manual runs share the same serialization as the daily cron pass.
type NotifyRunner interface {
	RunNow(ctx context.Context, vehicleID *string) (*service.RunReport, error)
}

// Deps bundles everything the HTTP routes need.
type Deps struct {
	DB        *sql.DB
	Vehicles  service.VehicleService
	Documents service.DocumentService
	Notify    service.NotifyService
	Runner    NotifyRunner
	Gatherer  prometheus.Gatherer

	// AdminPassword guards destructive and manual-trigger endpoints. An
	// empty value disables the guard.
	AdminPassword string
}

type createVehicleRequest struct {
	Plate            string `json:"plate"`
	Make             string `json:"make"`
	Model            string `json:"model"`
	Year             int    `json:"year"`
	ResponsibleEmail string `json:"responsible_email"`
}

type documentRequest struct {
	VehicleID string `json:"vehicle_id"`
	DocType   string `json:"doc_type"`
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to"`
	Note      string `json:"note"`
}

// parseDate accepts plain dates and full RFC3339 timestamps.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal: parse, delegate to services, translate errors.
func RegisterRoutes(app *fiber.App, deps Deps) {
	requireAdmin := func(c *fiber.Ctx) bool {
		if deps.AdminPassword == "" {
			return true
		}
		given := c.Get("X-Admin-Password")
		if given == "" {
			given = c.Query("admin_password")
		}
		return given == deps.AdminPassword
	}

	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := deps.DB.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Liveness endpoint for orchestration checks
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// List vehicles with documents and expiry summaries
	app.Get("/vehicles", func(c *fiber.Ctx) error {
		res, err := deps.Vehicles.List(c.UserContext(), c.Query("q"))
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	})

	// Register a vehicle
	app.Post("/vehicles", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		var req createVehicleRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		v, err := deps.Vehicles.Create(c.UserContext(), service.CreateVehicleInput{
			Plate:            req.Plate,
			Make:             req.Make,
			Model:            req.Model,
			Year:             req.Year,
			ResponsibleEmail: req.ResponsibleEmail,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrPlateRequired):
				return writeError(c, fiber.StatusBadRequest, "PLATE_REQUIRED", "plate is required")
			case errors.Is(err, service.ErrPlateExists):
				return writeError(c, fiber.StatusConflict, "PLATE_EXISTS", "plate already registered")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	})

	// Delete a vehicle (documents and ledger rows cascade)
	app.Delete("/vehicles/:id", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := deps.Vehicles.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrVehicleNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "vehicle not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	createDocument := func(c *fiber.Ctx, vehicleID string) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		var req documentRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if vehicleID == "" {
			vehicleID = req.VehicleID
		}
		if vehicleID == "" {
			return writeError(c, fiber.StatusBadRequest, "VEHICLE_ID_REQUIRED", "vehicle_id is required")
		}
		if _, err := uuid.Parse(vehicleID); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid vehicle id format")
		}

		in := service.CreateDocumentInput{
			VehicleID: vehicleID,
			DocType:   req.DocType,
			Note:      req.Note,
		}
		if req.ValidTo != "" {
			t, err := parseDate(req.ValidTo)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "valid_to must be YYYY-MM-DD")
			}
			in.ValidTo = t
		}
		if req.ValidFrom != "" {
			t, err := parseDate(req.ValidFrom)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "valid_from must be YYYY-MM-DD")
			}
			in.ValidFrom = &t
		}

		view, err := deps.Documents.Create(c.UserContext(), in)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrValidToRequired):
				return writeError(c, fiber.StatusBadRequest, "VALID_TO_REQUIRED", "valid_to is required")
			case errors.Is(err, service.ErrInvalidDocType):
				return writeError(c, fiber.StatusBadRequest, "INVALID_DOC_TYPE", "unrecognized document type")
			case errors.Is(err, service.ErrVehicleNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "vehicle not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}

	// Add a document to a vehicle (vehicle id in path)
	app.Post("/vehicles/:id/documents", func(c *fiber.Ctx) error {
		return createDocument(c, c.Params("id"))
	})

	// Add a document (vehicle_id in body)
	app.Post("/documents", func(c *fiber.Ctx) error {
		return createDocument(c, "")
	})

	// Rewrite a document's fields; a date or type change re-arms reminders
	app.Put("/documents/:id", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req documentRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		in := service.UpdateDocumentInput{DocType: req.DocType, Note: req.Note}
		if req.ValidTo != "" {
			t, err := parseDate(req.ValidTo)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "valid_to must be YYYY-MM-DD")
			}
			in.ValidTo = t
		}
		if req.ValidFrom != "" {
			t, err := parseDate(req.ValidFrom)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "valid_from must be YYYY-MM-DD")
			}
			in.ValidFrom = &t
		}

		view, err := deps.Documents.Update(c.UserContext(), id, in)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrValidToRequired):
				return writeError(c, fiber.StatusBadRequest, "VALID_TO_REQUIRED", "valid_to is required")
			case errors.Is(err, service.ErrInvalidDocType):
				return writeError(c, fiber.StatusBadRequest, "INVALID_DOC_TYPE", "unrecognized document type")
			case errors.Is(err, service.ErrDocumentNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(view)
	})

	// Delete a document and its ledger rows
	app.Delete("/documents/:id", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := deps.Documents.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrDocumentNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Upload an attachment (multipart/form-data, field name: file)
	app.Post("/documents/:id/attachment", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		doc, err := deps.Documents.Attach(c.UserContext(), id, f, fh.Filename, ct, fh.Size)
		if err != nil {
			if errors.Is(err, service.ErrDocumentNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	})

	// Hand out a time-limited download URL for the attachment
	app.Get("/documents/:id/attachment", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		url, err := deps.Documents.AttachmentURL(c.UserContext(), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrDocumentNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			case errors.Is(err, service.ErrNoAttachment):
				return writeError(c, fiber.StatusNotFound, "NO_ATTACHMENT", "document has no attachment")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"url": url})
	})

	// Documents expiring within the next N days (default 30)
	app.Get("/expiring", func(c *fiber.Ctx) error {
		days, err := strconv.Atoi(c.Query("days", "30"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_DAYS", "days must be an integer")
		}
		res, err := deps.Documents.Expiring(c.UserContext(), days)
		if err != nil {
			if errors.Is(err, service.ErrDaysOutOfRange) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_DAYS", "days must be between 1 and 365")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"days": days, "count": len(res), "items": res})
	})

	// Manually trigger a notification pass, optionally for one vehicle
	app.Post("/notifications/run", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		var vehicleID *string
		if v := c.Query("vehicle_id"); v != "" {
			if _, err := uuid.Parse(v); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid vehicle id format")
			}
			vehicleID = &v
		}
		report, err := deps.Runner.RunNow(c.UserContext(), vehicleID)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(report)
	})

	// Send a test reminder to verify mail configuration
	app.Post("/debug/send_test", func(c *fiber.Ctx) error {
		if !requireAdmin(c) {
			return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "admin password required")
		}
		to := c.Query("to")
		if to == "" {
			return writeError(c, fiber.StatusBadRequest, "TO_REQUIRED", "to is required")
		}
		provider, err := deps.Notify.SendTest(c.UserContext(), to)
		if err != nil {
			if errors.Is(err, mail.ErrNoTransport) {
				return writeError(c, fiber.StatusServiceUnavailable, "MAIL_NOT_CONFIGURED", "no mail transport configured")
			}
			var dErr *mail.DeliveryError
			if errors.As(err, &dErr) {
				return writeError(c, fiber.StatusBadGateway, "MAIL_DELIVERY_FAILED", "all mail transports failed")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"status": "sent", "provider": provider})
	})
}
