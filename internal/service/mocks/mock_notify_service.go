package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fleetdocs/internal/service"
)

type MockNotifyService struct {
	mock.Mock
}

func (m *MockNotifyService) Run(ctx context.Context, vehicleID *string) (*service.RunReport, error) {
	args := m.Called(ctx, vehicleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RunReport), args.Error(1)
}

func (m *MockNotifyService) SendTest(ctx context.Context, to string) (string, error) {
	args := m.Called(ctx, to)
	return args.String(0), args.Error(1)
}
