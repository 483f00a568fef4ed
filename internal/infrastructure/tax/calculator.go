// Package tax calcula el resumen de impuestos por línea a partir de una tabla de alícuotas.
// Es el calculador por defecto; un motor tributario externo puede reemplazarlo.
package tax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

var hundred = decimal.NewFromInt(100)

// Rates son las alícuotas en porcentaje.
type Rates struct {
	ICMS           decimal.Decimal            // alícuota interna por defecto
	ICMSByNCM      map[string]decimal.Decimal // excepciones por NCM; 0 = exento
	IPI            decimal.Decimal
	PISPresumed    decimal.Decimal // régimen acumulativo
	COFINSPresumed decimal.Decimal
	PISReal        decimal.Decimal // régimen no acumulativo
	COFINSReal     decimal.Decimal
	ApproxFederal  decimal.Decimal // carga aproximada Lei 12.741 (IBPT)
	ApproxState    decimal.Decimal
}

// DefaultRates devuelve alícuotas de referencia para SP.
func DefaultRates() Rates {
	return Rates{
		ICMS:           decimal.NewFromInt(18),
		ICMSByNCM:      map[string]decimal.Decimal{},
		IPI:            decimal.Zero,
		PISPresumed:    decimal.RequireFromString("0.65"),
		COFINSPresumed: decimal.RequireFromString("3.00"),
		PISReal:        decimal.RequireFromString("1.65"),
		COFINSReal:     decimal.RequireFromString("7.60"),
		ApproxFederal:  decimal.RequireFromString("13.45"),
		ApproxState:    decimal.RequireFromString("18.00"),
	}
}

// Calculator implementa fiscal.TaxCalculator con la tabla de alícuotas.
type Calculator struct {
	sales   repository.SaleRepository
	issuers repository.IssuerRepository
	rates   Rates
}

// NewCalculator construye el calculador.
func NewCalculator(sales repository.SaleRepository, issuers repository.IssuerRepository, rates Rates) *Calculator {
	if rates.ICMSByNCM == nil {
		rates.ICMSByNCM = map[string]decimal.Decimal{}
	}
	return &Calculator{sales: sales, issuers: issuers, rates: rates}
}

// Summarize devuelve una línea de impuestos por ítem, en el orden de la venta.
// La base de cada línea es vProd - descuento + otros cargos, con el mismo rateio del documento.
func (c *Calculator) Summarize(ctx context.Context, saleID string) (*entity.TaxSummary, error) {
	sale, err := c.sales.GetSnapshot(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("impuestos: cargar venta: %w", err)
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: venta %s", domain.ErrNotFound, saleID)
	}
	issuer, err := c.issuers.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("impuestos: cargar emisor: %w", err)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: no hay emisor activo", domain.ErrConfigurationIncomplete)
	}
	return c.Compute(sale, issuer.TaxRegime), nil
}

// Compute es el cálculo puro sobre una venta ya cargada.
func (c *Calculator) Compute(sale *entity.Sale, regime entity.TaxRegime) *entity.TaxSummary {
	products := make([]decimal.Decimal, len(sale.Items))
	subtotal := decimal.Zero
	for i, it := range sale.Items {
		products[i] = domainnfe.LineProducts(it)
		subtotal = subtotal.Add(products[i])
	}
	discounts := domainnfe.Apportion(sale.Discount.Round(2), products, subtotal)
	others := domainnfe.Apportion(sale.Additions.Round(2), products, subtotal)
	approx := c.rates.ApproxFederal.Add(c.rates.ApproxState)

	summary := &entity.TaxSummary{SaleID: sale.ID, Lines: make([]entity.TaxLine, len(sale.Items))}
	for i, it := range sale.Items {
		base := products[i].Sub(discounts[i]).Add(others[i])
		line := entity.TaxLine{ApproxTaxes: percent(base, approx)}

		if regime == entity.RegimeSimplified {
			line.ICMSCST = pkgnfe.CSOSNNoCredit
			line.PISCST = pkgnfe.CSTPISCOFINSOther
			line.COFINSCST = pkgnfe.CSTPISCOFINSOther
			summary.Lines[i] = line
			continue
		}

		icms := c.rates.ICMS
		if r, ok := c.rates.ICMSByNCM[pkgnfe.OnlyDigits(it.NCM)]; ok {
			icms = r
		}
		if icms.IsPositive() {
			line.ICMSCST = pkgnfe.CSTICMSTaxed
			line.ICMSBase = base
			line.ICMSRate = icms
			line.ICMSAmount = percent(base, icms)
		} else {
			line.ICMSCST = pkgnfe.CSTICMSExempt
		}

		pis, cofins := c.rates.PISPresumed, c.rates.COFINSPresumed
		if regime == entity.RegimeReal {
			pis, cofins = c.rates.PISReal, c.rates.COFINSReal
		}
		line.PISCST, line.COFINSCST = pkgnfe.CSTPISCOFINSAliq, pkgnfe.CSTPISCOFINSAliq
		line.PISBase, line.PISRate, line.PISAmount = base, pis, percent(base, pis)
		line.COFINSBase, line.COFINSRate, line.COFINSAmount = base, cofins, percent(base, cofins)

		if c.rates.IPI.IsPositive() {
			line.IPIBase, line.IPIRate, line.IPIAmount = base, c.rates.IPI, percent(base, c.rates.IPI)
		}
		summary.Lines[i] = line
	}
	return summary
}

func percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(hundred).Round(2)
}
