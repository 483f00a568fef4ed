package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale es la instantánea de una venta cerrada, tal como la entrega el PDV.
type Sale struct {
	ID             string
	Items          []SaleItem
	Total          decimal.Decimal // total almacenado; solo informativo
	Discount       decimal.Decimal // descuento a nivel de venta
	Additions      decimal.Decimal // otros cargos (vOutro)
	PaymentMethod  string          // tPag, ej. "01" dinero
	RecipientTaxID string          // CPF/CNPJ informado en la venta, opcional
	RecipientName  string
	CreatedAt      time.Time
}

// SaleItem es una línea de la venta con su clasificación fiscal.
type SaleItem struct {
	ProductID string
	Code      string // cProd
	GTIN      string // cEAN; vacío = "SEM GTIN"
	Name      string
	NCM       string
	CFOP      string
	CEST      string
	Unit      string // uCom, ej. "UN"
	Origin    string // orig del ICMS, ej. "0"
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}
