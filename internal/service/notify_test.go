package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fleetdocs/internal/mail"
	"fleetdocs/internal/model"
	repoMocks "fleetdocs/internal/repository/mocks"
)

// fakeNotifier implements MailNotifier and records every send.
type fakeNotifier struct {
	err      error
	failOnTo string // fail only sends addressed to this recipient

	sends []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (f *fakeNotifier) Send(_ context.Context, to, subject, htmlBody string) (string, []mail.Attempt, error) {
	if f.err != nil && (f.failOnTo == "" || f.failOnTo == to) {
		return "", []mail.Attempt{{Provider: "resend", Err: f.err}}, f.err
	}
	f.sends = append(f.sends, sentMail{to: to, subject: subject, body: htmlBody})
	return "resend", []mail.Attempt{{Provider: "resend"}}, nil
}

var thresholds = []int{30, 15, 10, 7, 1}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newNotify(docs *repoMocks.MockDocumentRepository, ledger *repoMocks.MockNotificationLogRepository, n MailNotifier, now time.Time) NotifyService {
	return NewNotifyService(docs, ledger, n, thresholds, "http://panel.local", time.UTC, fixedClock(now), nil)
}

func TestNotifyService_Run_SendsAndRecords(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	validTo := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	ledger := new(repoMocks.MockNotificationLogRepository)
	notifier := &fakeNotifier{}

	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return([]model.DueDocument{
		{
			DocumentID:       "doc-1",
			Plate:            "34ABC123",
			DocType:          model.DocTypeInspection,
			ValidTo:          validTo,
			ResponsibleEmail: "fleet@example.com",
			DaysLeft:         7,
		},
	}, nil)
	ledger.On("Record", ctx, "doc-1", 7, mock.AnythingOfType("time.Time")).Return(nil)

	report, err := newNotify(docs, ledger, notifier, now).Run(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, &RunReport{Scanned: 1, Sent: 1}, report)
	require.Len(t, notifier.sends, 1)
	assert.Equal(t, "fleet@example.com", notifier.sends[0].to)
	assert.Contains(t, notifier.sends[0].subject, "34ABC123")
	assert.Contains(t, notifier.sends[0].subject, "(7g)")
	assert.Contains(t, notifier.sends[0].body, "2024-01-08")
	docs.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestNotifyService_Run_LedgerHitMeansNoResend(t *testing.T) {
	// After a successful pass the ledger row exists, so the evaluator query
	// no longer returns the pair: the re-run sends nothing.
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	ledger := new(repoMocks.MockNotificationLogRepository)
	notifier := &fakeNotifier{}

	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return([]model.DueDocument{}, nil)

	report, err := newNotify(docs, ledger, notifier, now).Run(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, &RunReport{}, report)
	assert.Empty(t, notifier.sends)
	ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyService_Run_FailureLeavesRowDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	ledger := new(repoMocks.MockNotificationLogRepository)
	// First row's recipient fails, second row must still be processed.
	notifier := &fakeNotifier{err: errors.New("api 500"), failOnTo: "down@example.com"}

	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return([]model.DueDocument{
		{DocumentID: "doc-1", Plate: "34ABC123", DocType: model.DocTypeKasko, ValidTo: today.AddDate(0, 0, 7), ResponsibleEmail: "down@example.com", DaysLeft: 7},
		{DocumentID: "doc-2", Plate: "06XYZ77", DocType: model.DocTypeInspection, ValidTo: today.AddDate(0, 0, 15), ResponsibleEmail: "up@example.com", DaysLeft: 15},
	}, nil)
	ledger.On("Record", ctx, "doc-2", 15, mock.AnythingOfType("time.Time")).Return(nil)

	report, err := newNotify(docs, ledger, notifier, now).Run(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, &RunReport{Scanned: 2, Sent: 1, Failed: 1}, report)
	// The failed row wrote no ledger entry, so it stays due for tomorrow.
	ledger.AssertNotCalled(t, "Record", ctx, "doc-1", 7, mock.Anything)
	ledger.AssertExpectations(t)
}

func TestNotifyService_Run_SkipsRowsWithoutEmail(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	ledger := new(repoMocks.MockNotificationLogRepository)
	notifier := &fakeNotifier{}

	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return([]model.DueDocument{
		{DocumentID: "doc-1", Plate: "34ABC123", DocType: model.DocTypeKasko, ValidTo: today.AddDate(0, 0, 7), DaysLeft: 7},
	}, nil)

	report, err := newNotify(docs, ledger, notifier, now).Run(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, &RunReport{Scanned: 1, Skipped: 1}, report)
	assert.Empty(t, notifier.sends)
	ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyService_Run_VehicleScope(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	veh := "veh-uuid"

	docs := new(repoMocks.MockDocumentRepository)
	ledger := new(repoMocks.MockNotificationLogRepository)

	docs.On("FindDue", ctx, today, thresholds, &veh).Return([]model.DueDocument{}, nil)

	_, err := newNotify(docs, ledger, &fakeNotifier{}, now).Run(ctx, &veh)

	require.NoError(t, err)
	docs.AssertExpectations(t)
}

func TestNotifyService_Run_ScanError(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return(nil, errors.New("db down"))

	_, err := newNotify(docs, new(repoMocks.MockNotificationLogRepository), &fakeNotifier{}, now).Run(ctx, nil)

	assert.ErrorContains(t, err, "scan due documents")
}

func TestNotifyService_Run_LocalDateCrossing(t *testing.T) {
	// 01:30 on Jan 2 in Istanbul is still Jan 1 in UTC; the pass must use
	// the configured location's calendar date.
	ctx := context.Background()
	ist, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC) // 01:30 Jan 2 in Istanbul
	today := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	docs := new(repoMocks.MockDocumentRepository)
	docs.On("FindDue", ctx, today, thresholds, (*string)(nil)).Return([]model.DueDocument{}, nil)

	svc := NewNotifyService(docs, new(repoMocks.MockNotificationLogRepository), &fakeNotifier{}, thresholds, "http://panel.local", ist, fixedClock(now), nil)
	_, err = svc.Run(ctx, nil)

	require.NoError(t, err)
	docs.AssertExpectations(t)
}

func TestNotifyService_SendTest(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newNotify(new(repoMocks.MockDocumentRepository), new(repoMocks.MockNotificationLogRepository), notifier, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	provider, err := svc.SendTest(context.Background(), "ops@example.com")

	require.NoError(t, err)
	assert.Equal(t, "resend", provider)
	require.Len(t, notifier.sends, 1)
	assert.Equal(t, "ops@example.com", notifier.sends[0].to)
	assert.Contains(t, notifier.sends[0].body, "TEST-PLAKA")
}
