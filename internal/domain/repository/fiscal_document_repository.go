package repository

import (
	"context"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// FiscalDocumentRepository define el puerto de persistencia de documentos fiscales.
type FiscalDocumentRepository interface {
	// Claim reserva el par venta+modelo para documentID con una inserción condicional.
	// Devuelve domain.ErrDuplicateActiveDocument si otro documento activo ya lo ocupa.
	Claim(ctx context.Context, saleID string, model entity.DocumentModel, documentID string) error
	// Release libera la reserva solo si pertenece a documentID (rechazo o cancelación).
	Release(ctx context.Context, saleID string, model entity.DocumentModel, documentID string) error

	Create(ctx context.Context, doc *entity.FiscalDocument) error
	// UpdateStatus persiste el documento solo si su estado actual sigue siendo from.
	// Devuelve domain.ErrInvalidTransition si otro proceso cambió el estado antes.
	UpdateStatus(ctx context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error

	// GetByAccessKey devuelve nil, nil si la clave no existe.
	GetByAccessKey(ctx context.Context, accessKey string) (*entity.FiscalDocument, error)
	// FindActiveBySaleAndModel devuelve el documento pendiente o autorizado de la venta, o nil.
	FindActiveBySaleAndModel(ctx context.Context, saleID string, model entity.DocumentModel) (*entity.FiscalDocument, error)
	// ListPending lista documentos pendientes emitidos antes de olderThan (conciliación).
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.FiscalDocument, error)
}
