package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var _ repository.IssuerRepository = (*IssuerRepo)(nil)

// IssuerRepo lee el perfil del emisor y su configuración por modelo.
type IssuerRepo struct {
	q Querier
}

// NewIssuerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIssuerRepository(q Querier) *IssuerRepo {
	return &IssuerRepo{q: q}
}

const issuerColumns = `
	id, legal_name, trade_name, cnpj, state_registration, tax_regime,
	street, street_number, complement, district, municipality_code, municipality_name, uf, zip_code, phone,
	environment, time_zone, updated_at`

func (r *IssuerRepo) GetActive(ctx context.Context) (*entity.IssuerProfile, error) {
	return r.get(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE active`)
}

func (r *IssuerRepo) GetByID(ctx context.Context, id string) (*entity.IssuerProfile, error) {
	return r.get(ctx, `SELECT `+issuerColumns+` FROM issuers WHERE id = $1`, id)
}

func (r *IssuerRepo) get(ctx context.Context, query string, args ...any) (*entity.IssuerProfile, error) {
	var p entity.IssuerProfile
	var regime, env string
	a := &p.Address
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.LegalName, &p.TradeName, &p.CNPJ, &p.StateRegistration, &regime,
		&a.Street, &a.Number, &a.Complement, &a.District, &a.MunicipalityCode, &a.MunicipalityName, &a.UF, &a.ZipCode, &a.Phone,
		&env, &p.TimeZone, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get issuer: %w", err)
	}
	p.TaxRegime = entity.TaxRegime(regime)
	p.Environment = entity.Environment(env)

	docs, err := r.settings(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Documents = docs
	return &p, nil
}

func (r *IssuerRepo) settings(ctx context.Context, issuerID string) (map[entity.DocumentModel]entity.DocumentSettings, error) {
	rows, err := r.q.Query(ctx,
		`SELECT model, series, csc_id, csc_token FROM issuer_document_settings WHERE issuer_id = $1`, issuerID)
	if err != nil {
		return nil, fmt.Errorf("get issuer settings: %w", err)
	}
	defer rows.Close()

	out := make(map[entity.DocumentModel]entity.DocumentSettings)
	for rows.Next() {
		var model string
		var s entity.DocumentSettings
		if err := rows.Scan(&model, &s.Series, &s.CSCID, &s.CSCToken); err != nil {
			return nil, fmt.Errorf("scan issuer settings: %w", err)
		}
		out[entity.DocumentModel(model)] = s
	}
	return out, rows.Err()
}
