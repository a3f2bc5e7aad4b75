package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fleetdocs/internal/model"
	"fleetdocs/internal/service"
)

type MockVehicleService struct {
	mock.Mock
}

func (m *MockVehicleService) Create(ctx context.Context, in service.CreateVehicleInput) (*model.Vehicle, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Vehicle), args.Error(1)
}

func (m *MockVehicleService) List(ctx context.Context, q string) ([]service.VehicleWithDocuments, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.VehicleWithDocuments), args.Error(1)
}

func (m *MockVehicleService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
