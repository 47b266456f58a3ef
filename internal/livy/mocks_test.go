package livy

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockShortcutProvisioner struct {
	mock.Mock
}

func (m *mockShortcutProvisioner) CreateShortcuts(ctx context.Context, jsonSpec string) error {
	args := m.Called(ctx, jsonSpec)
	return args.Error(0)
}
