package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

func TestIsVersionConflict(t *testing.T) {
	wrapped := fmt.Errorf("save: %w", domain.ErrOrderVersionConflict)
	assert.True(t, domain.IsVersionConflict(wrapped))
	assert.False(t, domain.IsVersionConflict(errors.New("other")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, domain.IsNotFound(fmt.Errorf("get: %w", domain.ErrOrderNotFound)))
	assert.True(t, domain.IsNotFound(domain.ErrProductNotFound))
	assert.True(t, domain.IsNotFound(domain.ErrVariantNotFound))
	assert.False(t, domain.IsNotFound(domain.ErrStockConflict))
}

func TestShortfallErrorUnwrapsAndListsItems(t *testing.T) {
	err := error(&domain.ShortfallError{Shortfalls: []domain.Shortfall{
		{ProductID: "p1", ItemName: "Ibuprofen", SelectedSize: "200mg", RequestedQuantity: 3, AvailableStock: 1},
		{ProductID: "p2", RequestedQuantity: 1, AvailableStock: 0},
	}})

	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), `"Ibuprofen" (size 200mg): requested 3, available 1`)
	assert.Contains(t, err.Error(), `"p2": requested 1, available 0`)

	var shortfall *domain.ShortfallError
	require.True(t, errors.As(fmt.Errorf("create: %w", err), &shortfall))
	assert.Len(t, shortfall.Shortfalls, 2)
}

func TestConflictErrorNamesItem(t *testing.T) {
	err := error(&domain.ConflictError{ProductID: "p1", ItemName: "Vitamin C", SelectedSize: "100ml", Requested: 2, Available: 0})

	require.ErrorIs(t, err, domain.ErrStockConflict)
	assert.Equal(t, `insufficient stock for "Vitamin C" (size 100ml): requested 2, available 0`, err.Error())
}

func TestIsValidation(t *testing.T) {
	assert.True(t, domain.IsValidation(fmt.Errorf("x: %w", domain.ErrInvalidTransition)))
	assert.True(t, domain.IsValidation(domain.ErrItemsRequired))
	assert.False(t, domain.IsValidation(domain.ErrForbidden))
}
