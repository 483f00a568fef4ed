package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentModel es el código de modelo del documento fiscal (campo "mod" de la NF-e).
type DocumentModel string

const (
	ModelNFe  DocumentModel = "55" // NF-e, documento estándar
	ModelNFCe DocumentModel = "65" // NFC-e, documento al consumidor final
)

// Valid indica si el modelo es soportado por el motor.
func (m DocumentModel) Valid() bool { return m == ModelNFe || m == ModelNFCe }

// DocumentStatus es el estado del ciclo de autorización.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"    // Armado, sin respuesta de la autoridad
	StatusAuthorized DocumentStatus = "authorized" // Autorizado (protocolo registrado)
	StatusRejected   DocumentStatus = "rejected"   // Rechazado con código de motivo
	StatusCancelled  DocumentStatus = "cancelled"  // Cancelado dentro del plazo legal
)

// Active indica si el estado ocupa el par venta+modelo.
// Un documento rechazado libera la venta para reemitir con un número nuevo.
func (s DocumentStatus) Active() bool { return s == StatusPending || s == StatusAuthorized }

// DocumentTotals replica el grupo ICMSTot del documento armado.
type DocumentTotals struct {
	Products    decimal.Decimal // vProd
	Discount    decimal.Decimal // vDesc
	Other       decimal.Decimal // vOutro
	ICMSBase    decimal.Decimal // vBC
	ICMS        decimal.Decimal // vICMS
	IPI         decimal.Decimal // vIPI
	PIS         decimal.Decimal // vPIS
	COFINS      decimal.Decimal // vCOFINS
	ApproxTaxes decimal.Decimal // vTotTrib (Lei 12.741/2012)
	Grand       decimal.Decimal // vNF
}

// FiscalDocument representa un documento emitido (o intentado). Nunca se borra:
// los cambios quedan registrados como transiciones de estado.
type FiscalDocument struct {
	ID                   string
	SaleID               string
	IssuerID             string
	Model                DocumentModel
	Series               int
	Number               int64
	AccessKey            string // 44 dígitos
	Status               DocumentStatus
	Environment          Environment
	IssuedAt             time.Time
	AuthorizedAt         *time.Time
	Protocol             string // nProt de autorización
	RejectionCode        string // cStat
	RejectionReason      string // xMotivo
	VerificationPayload  string // contenido del QR Code
	RecipientTaxID       string
	Totals               DocumentTotals
	Body                 []byte // XML armado (firmado en producción)
	CancellationReason   string
	CancelledAt          *time.Time
	CancellationProtocol string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
