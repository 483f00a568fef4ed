package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var _ repository.SaleRepository = (*SaleRepo)(nil)

// SaleRepo lee la instantánea de la venta cerrada con sus líneas.
type SaleRepo struct {
	q Querier
}

// NewSaleRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSaleRepository(q Querier) *SaleRepo {
	return &SaleRepo{q: q}
}

func (r *SaleRepo) GetSnapshot(ctx context.Context, saleID string) (*entity.Sale, error) {
	var s entity.Sale
	err := r.q.QueryRow(ctx, `
		SELECT id, total, discount, additions, payment_method, recipient_tax_id, recipient_name, created_at
		FROM sales WHERE id = $1`, saleID).Scan(
		&s.ID, &s.Total, &s.Discount, &s.Additions, &s.PaymentMethod, &s.RecipientTaxID, &s.RecipientName, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT product_id, code, gtin, name, ncm, cfop, cest, unit, origin, quantity, unit_price, line_total
		FROM sale_items WHERE sale_id = $1
		ORDER BY position`, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it entity.SaleItem
		if err := rows.Scan(
			&it.ProductID, &it.Code, &it.GTIN, &it.Name, &it.NCM, &it.CFOP, &it.CEST, &it.Unit, &it.Origin,
			&it.Quantity, &it.UnitPrice, &it.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sale items: %w", err)
	}
	return &s, nil
}
