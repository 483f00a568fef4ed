package repository

import (
	"context"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// MunicipalityRepository resuelve códigos IBGE de municipio.
type MunicipalityRepository interface {
	// FindByName busca por UF y nombre sin distinguir acentos ni mayúsculas; nil, nil si no existe.
	FindByName(ctx context.Context, uf, name string) (*entity.Municipality, error)
}
