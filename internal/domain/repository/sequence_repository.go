package repository

import (
	"context"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// SequenceRepository es el contador durable de numeración por emisor+serie+modelo.
// Next debe ser un incremento-y-lectura atómico en el almacenamiento, nunca leer y luego escribir.
type SequenceRepository interface {
	Next(ctx context.Context, key entity.SequenceKey) (int64, error)
	// Current devuelve el último número entregado (0 si el contador no existe).
	Current(ctx context.Context, key entity.SequenceKey) (int64, error)
	// Seed fija el último número solo si el contador aún no existe (migración desde otro sistema).
	Seed(ctx context.Context, key entity.SequenceKey, last int64) error
}
