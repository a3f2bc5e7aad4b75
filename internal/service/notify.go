package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fleetdocs/internal/mail"
	"fleetdocs/internal/model"
	"fleetdocs/internal/repository"
)

// MailNotifier is the slice of *mail.Notifier the services need. It returns
// the accepting provider, the tagged per-provider attempts and an error.
type MailNotifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, []mail.Attempt, error)
}

var _ MailNotifier = (*mail.Notifier)(nil)

// RunReport summarizes one notification pipeline pass.
type RunReport struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// NotifyService runs the expiry notification pipeline: scan for documents
// that crossed a configured threshold today, send one reminder each, and
// append the ledger row that makes the send unrepeatable.
type NotifyService interface {
	// Run executes one pipeline pass. A non-nil vehicleID scopes the scan to
	// one vehicle (manual/debug triggering). Row-level delivery failures are
	// counted and logged but never abort the pass.
	Run(ctx context.Context, vehicleID *string) (*RunReport, error)

	// SendTest pushes one test message through the notifier and reports the
	// provider that accepted it.
	SendTest(ctx context.Context, to string) (string, error)
}

// NotifyMetrics holds the pipeline's Prometheus counters.
type NotifyMetrics struct {
	runs    prometheus.Counter
	sent    *prometheus.CounterVec
	skipped prometheus.Counter
	failed  prometheus.Counter
}

// NewNotifyMetrics registers the pipeline counters on the given registry.
func NewNotifyMetrics(reg prometheus.Registerer) (*NotifyMetrics, error) {
	m := &NotifyMetrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_runs_total",
			Help: "Total number of notification pipeline passes.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of expiry reminders sent, by mail provider.",
		}, []string{"provider"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_skipped_total",
			Help: "Total number of due rows skipped for missing responsible email.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of due rows whose delivery failed.",
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.sent, m.skipped, m.failed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type notifyService struct {
	docs       repository.DocumentRepository
	ledger     repository.NotificationLogRepository
	notifier   MailNotifier
	thresholds []int
	panelURL   string
	loc        *time.Location
	now        func() time.Time
	metrics    *NotifyMetrics
}

// NewNotifyService constructs the notification pipeline. The clock and
// location are injectable so passes can be tested on fixed dates.
func NewNotifyService(
	docs repository.DocumentRepository,
	ledger repository.NotificationLogRepository,
	notifier MailNotifier,
	thresholds []int,
	panelURL string,
	loc *time.Location,
	now func() time.Time,
	metrics *NotifyMetrics,
) NotifyService {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &notifyService{
		docs:       docs,
		ledger:     ledger,
		notifier:   notifier,
		thresholds: thresholds,
		panelURL:   panelURL,
		loc:        loc,
		now:        now,
		metrics:    metrics,
	}
}

func (s *notifyService) Run(ctx context.Context, vehicleID *string) (*RunReport, error) {
	start := s.now()
	today := dateOnly(start.In(s.loc))

	due, err := s.docs.FindDue(ctx, today, s.thresholds, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("scan due documents: %w", err)
	}

	if s.metrics != nil {
		s.metrics.runs.Inc()
	}

	report := &RunReport{}
	for _, row := range due {
		report.Scanned++

		// No responsible email means nobody to notify. Not an error: the
		// row stays due and will be picked up once the address is filled in.
		if row.ResponsibleEmail == "" {
			report.Skipped++
			if s.metrics != nil {
				s.metrics.skipped.Inc()
			}
			logJSON(map[string]any{
				"component":   "notify",
				"event":       "row_skipped",
				"reason":      "no_responsible_email",
				"document_id": row.DocumentID,
				"plate":       row.Plate,
				"threshold":   row.DaysLeft,
			})
			continue
		}

		subject := fmt.Sprintf("Araç Belge Uyarısı: %s - %s (%dg)", row.Plate, row.DocType, row.DaysLeft)
		html := renderDocumentAlert(row.Plate, row.DocType, row.ValidTo, row.DaysLeft, s.panelURL)

		provider, _, err := s.notifier.Send(ctx, row.ResponsibleEmail, subject, html)
		if err != nil {
			// Leave no ledger trace: the pair stays due and the next pass
			// re-attempts it. The failure must not block the rest of the run.
			report.Failed++
			if s.metrics != nil {
				s.metrics.failed.Inc()
			}
			logJSON(map[string]any{
				"component":     "notify",
				"event":         "row_failed",
				"document_id":   row.DocumentID,
				"plate":         row.Plate,
				"threshold":     row.DaysLeft,
				"error_message": err.Error(),
			})
			continue
		}

		// The ledger write happens only after the confirmed send. A
		// constraint race on the insert resolves silently to the existing
		// row; any other write error is logged but cannot be user-visible.
		if err := s.ledger.Record(ctx, row.DocumentID, row.DaysLeft, s.now().UTC()); err != nil {
			logJSON(map[string]any{
				"component":     "notify",
				"event":         "ledger_write_failed",
				"document_id":   row.DocumentID,
				"threshold":     row.DaysLeft,
				"error_message": err.Error(),
			})
		}

		report.Sent++
		if s.metrics != nil {
			s.metrics.sent.WithLabelValues(provider).Inc()
		}
	}

	logJSON(map[string]any{
		"component":   "notify",
		"event":       "run_finished",
		"scanned":     report.Scanned,
		"sent":        report.Sent,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return report, nil
}

func (s *notifyService) SendTest(ctx context.Context, to string) (string, error) {
	validTo := dateOnly(s.now().In(s.loc)).AddDate(0, 0, 5)
	html := renderDocumentAlert("TEST-PLAKA", model.DocTypeInspection, validTo, 5, s.panelURL)
	provider, _, err := s.notifier.Send(ctx, to, "Test Bildirimi", html)
	return provider, err
}

// renderDocumentAlert produces the reminder body shared by the pipeline and
// the immediate alert on document creation.
func renderDocumentAlert(plate string, docType model.DocType, validTo time.Time, daysLeft int, panelURL string) string {
	return fmt.Sprintf(`<h3>🚨 Araç Belge Uyarısı</h3>
<p><b>Plaka:</b> %s<br/>
<b>Belge:</b> %s<br/>
<b>Bitiş Tarihi:</b> %s (%d gün kaldı)</p>
<a href="%s/vehicles?plate=%s">Web panelde görüntüle</a>`,
		plate, docType, validTo.Format("2006-01-02"), daysLeft, panelURL, plate)
}

// logJSON writes one structured log line to stdout, matching the service's
// JSON log format elsewhere.
func logJSON(data map[string]any) {
	data["ts"] = time.Now().Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		data["level"] = "info"
	}
	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
