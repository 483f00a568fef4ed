package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

var _ repository.MunicipalityRepository = (*MunicipalityRepo)(nil)

// MunicipalityRepo busca en la tabla IBGE por la columna normalized_name.
// cmd/seed_ibge rellena esa columna con la misma normalización.
type MunicipalityRepo struct {
	q Querier
}

// NewMunicipalityRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMunicipalityRepository(q Querier) *MunicipalityRepo {
	return &MunicipalityRepo{q: q}
}

func (r *MunicipalityRepo) FindByName(ctx context.Context, uf, name string) (*entity.Municipality, error) {
	var m entity.Municipality
	err := r.q.QueryRow(ctx,
		`SELECT code, name, uf FROM municipalities WHERE uf = $1 AND normalized_name = $2`,
		strings.ToUpper(strings.TrimSpace(uf)), pkgnfe.NormalizeName(name),
	).Scan(&m.Code, &m.Name, &m.UF)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find municipality: %w", err)
	}
	return &m, nil
}
