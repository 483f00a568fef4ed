package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo es el contador durable en la tabla fiscal_sequences.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next incrementa y lee en una sola sentencia. El bloqueo de fila del UPSERT serializa
// a los llamadores concurrentes de la misma clave.
func (r *SequenceRepo) Next(ctx context.Context, key entity.SequenceKey) (int64, error) {
	query := `
		INSERT INTO fiscal_sequences (issuer_id, series, model, last_number, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (issuer_id, series, model)
		DO UPDATE SET last_number = fiscal_sequences.last_number + 1, updated_at = now()
		RETURNING last_number`
	var n int64
	if err := r.q.QueryRow(ctx, query, key.IssuerID, key.Series, string(key.Model)).Scan(&n); err != nil {
		return 0, fmt.Errorf("incrementar secuencia %s: %w", key, err)
	}
	return n, nil
}

func (r *SequenceRepo) Current(ctx context.Context, key entity.SequenceKey) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx,
		`SELECT last_number FROM fiscal_sequences WHERE issuer_id = $1 AND series = $2 AND model = $3`,
		key.IssuerID, key.Series, string(key.Model)).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("leer secuencia %s: %w", key, err)
	}
	return n, nil
}

func (r *SequenceRepo) Seed(ctx context.Context, key entity.SequenceKey, last int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO fiscal_sequences (issuer_id, series, model, last_number, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (issuer_id, series, model) DO NOTHING`,
		key.IssuerID, key.Series, string(key.Model), last)
	if err != nil {
		return fmt.Errorf("sembrar secuencia %s: %w", key, err)
	}
	return nil
}
