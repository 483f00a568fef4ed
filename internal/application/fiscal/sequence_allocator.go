package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/metrics"
)

const maxDocumentNumber = 999_999_999

// AllocatorConfig controla los reintentos del incremento atómico.
type AllocatorConfig struct {
	Backend string        // etiqueta para métricas y logs: postgres|redis|bolt|memory
	Retries int           // reintentos adicionales tras el primer intento
	Backoff time.Duration // espera entre reintentos (lineal)
}

// SequenceAllocator entrega números de documento únicos por emisor+serie+modelo.
// Nunca fabrica un número localmente: cada intento es el mismo incremento atómico del almacén.
type SequenceAllocator struct {
	store   repository.SequenceRepository
	cfg     AllocatorConfig
	metrics *metrics.Fiscal
	log     zerolog.Logger
}

// NewSequenceAllocator construye el asignador.
func NewSequenceAllocator(store repository.SequenceRepository, cfg AllocatorConfig, m *metrics.Fiscal, log zerolog.Logger) *SequenceAllocator {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backend == "" {
		cfg.Backend = "unknown"
	}
	return &SequenceAllocator{store: store, cfg: cfg, metrics: m, log: log}
}

// NextNumber devuelve el siguiente número de la serie. Cualquier fallo del almacén
// termina en domain.ErrSequenceUnavailable.
func (a *SequenceAllocator) NextNumber(ctx context.Context, issuerID string, series int, model entity.DocumentModel) (int64, error) {
	key := entity.SequenceKey{IssuerID: issuerID, Series: series, Model: model}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*a.cfg.Backoff); err != nil {
				lastErr = err
				break
			}
		}

		n, err := a.store.Next(ctx, key)
		if err == nil {
			if n < 1 || n > maxDocumentNumber {
				return 0, fmt.Errorf("%w: serie %s agotada o corrupta (valor %d)", domain.ErrSequenceUnavailable, key, n)
			}
			return n, nil
		}

		lastErr = err
		a.metrics.IncrementSequenceFailure(a.cfg.Backend)
		a.log.Warn().Err(err).
			Str("sequence", key.String()).
			Str("backend", a.cfg.Backend).
			Int("attempt", attempt+1).
			Msg("incremento del contador falló")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	return 0, fmt.Errorf("%w: %s: %v", domain.ErrSequenceUnavailable, key, lastErr)
}

// Current devuelve el último número entregado de la serie (0 si nunca se usó).
func (a *SequenceAllocator) Current(ctx context.Context, issuerID string, series int, model entity.DocumentModel) (int64, error) {
	key := entity.SequenceKey{IssuerID: issuerID, Series: series, Model: model}
	n, err := a.store.Current(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrSequenceUnavailable, key, err)
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
