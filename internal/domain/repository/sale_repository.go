package repository

import (
	"context"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// SaleRepository entrega la instantánea de una venta cerrada del PDV.
type SaleRepository interface {
	// GetSnapshot devuelve nil, nil si la venta no existe.
	GetSnapshot(ctx context.Context, saleID string) (*entity.Sale, error)
}
