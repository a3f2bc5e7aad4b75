package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockNotificationLogRepository struct {
	mock.Mock
}

func (m *MockNotificationLogRepository) Record(ctx context.Context, documentID string, threshold int, sentAt time.Time) error {
	args := m.Called(ctx, documentID, threshold, sentAt)
	return args.Error(0)
}

func (m *MockNotificationLogRepository) IsNotified(ctx context.Context, documentID string, threshold int) (bool, error) {
	args := m.Called(ctx, documentID, threshold)
	return args.Bool(0), args.Error(1)
}
