package repository

import (
	"context"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// IssuerRepository define el puerto de lectura de la configuración del emisor.
type IssuerRepository interface {
	// GetActive devuelve el emisor activo con sus series y CSC por modelo; nil, nil si no hay.
	GetActive(ctx context.Context) (*entity.IssuerProfile, error)
	GetByID(ctx context.Context, id string) (*entity.IssuerProfile, error)
}
