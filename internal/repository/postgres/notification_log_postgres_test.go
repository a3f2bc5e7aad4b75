package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestNotificationLogPostgres_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewNotificationLogPostgres(db)
	ctx := context.Background()
	sentAt := time.Date(2024, 1, 1, 8, 0, 5, 0, time.UTC)

	t.Run("first insert", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO notifications_log").
			WithArgs("doc-1", 7, sentAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Record(ctx, "doc-1", 7, sentAt))
	})

	t.Run("duplicate pair is a no-op, not an error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO notifications_log").
			WithArgs("doc-1", 7, sentAt).
			WillReturnResult(sqlmock.NewResult(0, 0)) // ON CONFLICT DO NOTHING

		assert.NoError(t, repo.Record(ctx, "doc-1", 7, sentAt))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationLogPostgres_IsNotified(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewNotificationLogPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", 7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	notified, err := repo.IsNotified(ctx, "doc-1", 7)
	assert.NoError(t, err)
	assert.True(t, notified)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1", 30).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	notified, err = repo.IsNotified(ctx, "doc-1", 30)
	assert.NoError(t, err)
	assert.False(t, notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}
