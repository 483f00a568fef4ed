package entity

import "github.com/shopspring/decimal"

// TaxLine son las cifras de impuestos de una línea, en el mismo orden de los ítems de la venta.
type TaxLine struct {
	ICMSCST      string          // CST (régimen normal) o CSOSN (Simples)
	ICMSBase     decimal.Decimal
	ICMSRate     decimal.Decimal // porcentaje, ej. 18.00
	ICMSAmount   decimal.Decimal
	PISCST       string
	PISBase      decimal.Decimal
	PISRate      decimal.Decimal
	PISAmount    decimal.Decimal
	COFINSCST    string
	COFINSBase   decimal.Decimal
	COFINSRate   decimal.Decimal
	COFINSAmount decimal.Decimal
	IPIBase      decimal.Decimal
	IPIRate      decimal.Decimal
	IPIAmount    decimal.Decimal
	ApproxTaxes  decimal.Decimal // vTotTrib de la línea
}

// TaxSummary es la salida del calculador de impuestos; el motor la toma como correcta.
type TaxSummary struct {
	SaleID string
	Lines  []TaxLine
}
