package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmitDocumentRequest body para POST /api/fiscal-documents.
type EmitDocumentRequest struct {
	SaleID         string `json:"sale_id"`
	Model          string `json:"model"`                      // "65" NFC-e | "55" NF-e
	RecipientTaxID string `json:"recipient_tax_id,omitempty"` // CPF o CNPJ; vacío = consumidor anónimo
}

// CancelDocumentRequest body para POST /api/fiscal-documents/:key/cancel.
type CancelDocumentRequest struct {
	Reason string `json:"reason"`
}

// TotalsResponse totales del grupo ICMSTot.
type TotalsResponse struct {
	Products    decimal.Decimal `json:"products"`
	Discount    decimal.Decimal `json:"discount"`
	Other       decimal.Decimal `json:"other"`
	ICMSBase    decimal.Decimal `json:"icms_base"`
	ICMS        decimal.Decimal `json:"icms"`
	IPI         decimal.Decimal `json:"ipi"`
	PIS         decimal.Decimal `json:"pis"`
	COFINS      decimal.Decimal `json:"cofins"`
	ApproxTaxes decimal.Decimal `json:"approx_taxes"`
	Grand       decimal.Decimal `json:"grand"`
}

// FiscalDocumentResponse documento emitido o consultado.
type FiscalDocumentResponse struct {
	ID                   string         `json:"id,omitempty"`
	SaleID               string         `json:"sale_id,omitempty"`
	Status               string         `json:"status"`
	Model                string         `json:"model"`
	Series               int            `json:"series"`
	Number               int64          `json:"number"`
	AccessKey            string         `json:"access_key"`
	Environment          string         `json:"environment,omitempty"`
	IssuedAt             *time.Time     `json:"issued_at,omitempty"`
	Protocol             string         `json:"protocol,omitempty"`
	AuthorizedAt         *time.Time     `json:"authorized_at,omitempty"`
	RejectionCode        string         `json:"rejection_code,omitempty"`
	RejectionReason      string         `json:"rejection_reason,omitempty"`
	VerificationPayload  string         `json:"verification_payload,omitempty"`
	CancellationReason   string         `json:"cancellation_reason,omitempty"`
	CancellationProtocol string         `json:"cancellation_protocol,omitempty"`
	CancelledAt          *time.Time     `json:"cancelled_at,omitempty"`
	Totals               TotalsResponse `json:"totals"`
}

// CancelDocumentResponse resultado de la cancelación.
type CancelDocumentResponse struct {
	Status               string    `json:"status"`
	AccessKey            string    `json:"access_key"`
	CancellationProtocol string    `json:"cancellation_protocol"`
	CancelledAt          time.Time `json:"cancelled_at"`
}

// ReconcileResponse resumen de POST /api/fiscal-documents/reconcile.
type ReconcileResponse struct {
	Processed    int `json:"processed"`
	Authorized   int `json:"authorized"`
	Rejected     int `json:"rejected"`
	StillPending int `json:"still_pending"`
}
