package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo implementación de FiscalDocumentRepository (usable con pool o tx).
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const documentColumns = `
	id, sale_id, issuer_id, model, series, number, access_key, status, environment,
	issued_at, authorized_at, protocol, rejection_code, rejection_reason, verification_payload,
	recipient_tax_id, total_products, total_discount, total_other, total_icms_base, total_icms,
	total_ipi, total_pis, total_cofins, total_approx_taxes, total_grand, body,
	cancellation_reason, cancelled_at, cancellation_protocol, created_at, updated_at`

// Claim inserta la reserva o devuelve el dueño actual en la misma sentencia.
// El DO UPDATE no cambia nada; solo existe para que RETURNING entregue la fila existente.
func (r *FiscalDocumentRepo) Claim(ctx context.Context, saleID string, model entity.DocumentModel, documentID string) error {
	query := `
		INSERT INTO fiscal_document_claims (sale_id, model, document_id, claimed_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (sale_id, model) DO UPDATE SET document_id = fiscal_document_claims.document_id
		RETURNING document_id`
	var owner string
	if err := r.q.QueryRow(ctx, query, saleID, string(model), documentID).Scan(&owner); err != nil {
		return fmt.Errorf("reservar venta %s: %w", saleID, err)
	}
	if owner != documentID {
		return fmt.Errorf("%w: venta %s modelo %s", domain.ErrDuplicateActiveDocument, saleID, model)
	}
	return nil
}

func (r *FiscalDocumentRepo) Release(ctx context.Context, saleID string, model entity.DocumentModel, documentID string) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM fiscal_document_claims WHERE sale_id = $1 AND model = $2 AND document_id = $3`,
		saleID, string(model), documentID)
	if err != nil {
		return fmt.Errorf("liberar venta %s: %w", saleID, err)
	}
	return nil
}

// Create persiste el documento recién armado.
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	query := `INSERT INTO fiscal_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`
	t := doc.Totals
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.SaleID, doc.IssuerID, string(doc.Model), doc.Series, doc.Number, doc.AccessKey,
		string(doc.Status), string(doc.Environment),
		doc.IssuedAt, doc.AuthorizedAt, doc.Protocol, doc.RejectionCode, doc.RejectionReason, doc.VerificationPayload,
		doc.RecipientTaxID, t.Products, t.Discount, t.Other, t.ICMSBase, t.ICMS,
		t.IPI, t.PIS, t.COFINS, t.ApproxTaxes, t.Grand, doc.Body,
		doc.CancellationReason, doc.CancelledAt, doc.CancellationProtocol, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento fiscal duplicado (%s): %w", constraintName(err), err)
		}
		return fmt.Errorf("insert fiscal document: %w", err)
	}
	return nil
}

// UpdateStatus es un compare-and-set sobre status: si otra transición llegó primero no toca la fila.
func (r *FiscalDocumentRepo) UpdateStatus(ctx context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error {
	query := `
		UPDATE fiscal_documents
		SET status                = $3,
		    authorized_at         = $4,
		    protocol              = $5,
		    rejection_code        = $6,
		    rejection_reason      = $7,
		    verification_payload  = $8,
		    body                  = $9,
		    cancellation_reason   = $10,
		    cancelled_at          = $11,
		    cancellation_protocol = $12,
		    updated_at            = $13
		WHERE id = $1 AND status = $2`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, string(from), string(doc.Status),
		doc.AuthorizedAt, doc.Protocol, doc.RejectionCode, doc.RejectionReason,
		doc.VerificationPayload, doc.Body,
		doc.CancellationReason, doc.CancelledAt, doc.CancellationProtocol, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update fiscal document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: documento %s ya no está en %s", domain.ErrInvalidTransition, doc.ID, from)
	}
	return nil
}

func (r *FiscalDocumentRepo) GetByAccessKey(ctx context.Context, accessKey string) (*entity.FiscalDocument, error) {
	row := r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM fiscal_documents WHERE access_key = $1`, accessKey)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal document: %w", err)
	}
	return doc, nil
}

func (r *FiscalDocumentRepo) FindActiveBySaleAndModel(ctx context.Context, saleID string, model entity.DocumentModel) (*entity.FiscalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents
		WHERE sale_id = $1 AND model = $2 AND status IN ('pending', 'authorized')
		ORDER BY created_at DESC
		LIMIT 1`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, saleID, string(model)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active fiscal document: %w", err)
	}
	return doc, nil
}

func (r *FiscalDocumentRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.FiscalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var list []*entity.FiscalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.FiscalDocument, error) {
	var d entity.FiscalDocument
	var model, status, env string
	t := &d.Totals
	err := row.Scan(
		&d.ID, &d.SaleID, &d.IssuerID, &model, &d.Series, &d.Number, &d.AccessKey, &status, &env,
		&d.IssuedAt, &d.AuthorizedAt, &d.Protocol, &d.RejectionCode, &d.RejectionReason, &d.VerificationPayload,
		&d.RecipientTaxID, &t.Products, &t.Discount, &t.Other, &t.ICMSBase, &t.ICMS,
		&t.IPI, &t.PIS, &t.COFINS, &t.ApproxTaxes, &t.Grand, &d.Body,
		&d.CancellationReason, &d.CancelledAt, &d.CancellationProtocol, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Model = entity.DocumentModel(model)
	d.Status = entity.DocumentStatus(status)
	d.Environment = entity.Environment(env)
	return &d, nil
}
