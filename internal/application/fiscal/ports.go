package fiscal

import (
	"context"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// TaxCalculator entrega las cifras de impuestos por línea de una venta, en el orden de sus ítems.
// El motor las toma como correctas y no las recalcula.
type TaxCalculator interface {
	Summarize(ctx context.Context, saleID string) (*entity.TaxSummary, error)
}

// Clock es la fuente de tiempo del motor; los tests inyectan un reloj fijo.
type Clock interface {
	Now() time.Time
}

// SystemClock usa el reloj del sistema.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
