package nfe

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// RoundingTolerance es la diferencia máxima admitida entre totales (dos decimales).
var RoundingTolerance = decimal.New(1, -2)

// ValidateIssuer verifica los campos del emisor necesarios para emitir el modelo.
// Devuelve domain.ErrConfigurationIncomplete con la lista de faltantes.
func ValidateIssuer(issuer *entity.IssuerProfile, model entity.DocumentModel) error {
	if issuer == nil {
		return fmt.Errorf("%w: no hay emisor activo", domain.ErrConfigurationIncomplete)
	}
	var missing []string
	if strings.TrimSpace(issuer.LegalName) == "" {
		missing = append(missing, "razón social")
	}
	if pkgnfe.OnlyDigits(issuer.CNPJ) == "" {
		missing = append(missing, "CNPJ")
	} else if err := pkgnfe.ValidateCNPJ(issuer.CNPJ); err != nil {
		missing = append(missing, "CNPJ válido")
	}
	if strings.TrimSpace(issuer.StateRegistration) == "" {
		missing = append(missing, "inscripción estatal")
	}
	switch issuer.TaxRegime {
	case entity.RegimeSimplified, entity.RegimePresumed, entity.RegimeReal:
	default:
		missing = append(missing, "régimen tributario")
	}
	a := issuer.Address
	if strings.TrimSpace(a.Street) == "" || strings.TrimSpace(a.Number) == "" || strings.TrimSpace(a.District) == "" {
		missing = append(missing, "dirección")
	}
	if _, ok := pkgnfe.UFCode(a.UF); !ok {
		missing = append(missing, "UF")
	}
	if strings.TrimSpace(a.MunicipalityName) == "" && a.MunicipalityCode == "" {
		missing = append(missing, "municipio")
	}
	if len(pkgnfe.OnlyDigits(a.ZipCode)) != 8 {
		missing = append(missing, "CEP")
	}
	switch issuer.Environment {
	case entity.EnvironmentHomologation, entity.EnvironmentProduction:
	default:
		missing = append(missing, "ambiente")
	}
	settings, ok := issuer.Settings(model)
	if !ok || settings.Series < 0 || settings.Series > maxSeries {
		missing = append(missing, fmt.Sprintf("serie del modelo %s", model))
	}
	if model == entity.ModelNFCe && (strings.TrimSpace(settings.CSCID) == "" || strings.TrimSpace(settings.CSCToken) == "") {
		missing = append(missing, "CSC de la NFC-e")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: falta %s", domain.ErrConfigurationIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateSale verifica que la instantánea de la venta se pueda documentar.
func ValidateSale(sale *entity.Sale) error {
	if sale == nil {
		return fmt.Errorf("%w: venta nula", domain.ErrInvalidInput)
	}
	if len(sale.Items) == 0 {
		return fmt.Errorf("%w: la venta %s no tiene ítems", domain.ErrInvalidInput, sale.ID)
	}
	var errs []error
	subtotal := decimal.Zero
	for i, it := range sale.Items {
		n := i + 1
		if strings.TrimSpace(it.Name) == "" {
			errs = append(errs, fmt.Errorf("ítem %d sin descripción", n))
		}
		if len(pkgnfe.OnlyDigits(it.NCM)) != 8 {
			errs = append(errs, fmt.Errorf("ítem %d con NCM inválido %q", n, it.NCM))
		}
		if len(pkgnfe.OnlyDigits(it.CFOP)) != 4 {
			errs = append(errs, fmt.Errorf("ítem %d con CFOP inválido %q", n, it.CFOP))
		}
		if !it.Quantity.IsPositive() {
			errs = append(errs, fmt.Errorf("ítem %d con cantidad no positiva", n))
		}
		if it.UnitPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("ítem %d con precio negativo", n))
		}
		line := LineProducts(it)
		if !it.LineTotal.IsZero() && line.Sub(it.LineTotal).Abs().GreaterThan(RoundingTolerance) {
			errs = append(errs, fmt.Errorf("ítem %d: total de línea %s no coincide con cantidad x precio %s", n, it.LineTotal.StringFixed(2), line.StringFixed(2)))
		}
		subtotal = subtotal.Add(line)
	}
	if sale.Discount.IsNegative() || sale.Additions.IsNegative() {
		errs = append(errs, errors.New("descuento y cargos adicionales no pueden ser negativos"))
	}
	if sale.Discount.GreaterThan(subtotal) {
		errs = append(errs, fmt.Errorf("descuento %s mayor que el subtotal %s", sale.Discount.StringFixed(2), subtotal.StringFixed(2)))
	}
	if sale.RecipientTaxID != "" {
		if err := pkgnfe.ValidateRecipientTaxID(sale.RecipientTaxID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{fmt.Errorf("%w: venta %s", domain.ErrInvalidInput, sale.ID)}, errs...)...)
	}
	return nil
}

// LineProducts es vProd de la línea: cantidad x precio unitario, redondeado a 2 decimales.
func LineProducts(it entity.SaleItem) decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice).Round(2)
}

// ValidateTotals comprueba que vNF = Σ vProd - Σ vDesc + Σ vOutro + Σ vIPI dentro de la tolerancia.
func ValidateTotals(products, discount, other, ipi, grand decimal.Decimal) error {
	expected := products.Sub(discount).Add(other).Add(ipi)
	if expected.Sub(grand).Abs().GreaterThan(RoundingTolerance) {
		return fmt.Errorf("%w: vNF %s no coincide con la suma de ítems %s", domain.ErrInvalidInput, grand.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

// Apportion distribuye amount proporcionalmente a weights (rateio) en centavos: cada parte se trunca
// y los centavos sobrantes van a las partes con mayor fracción descartada (empate: menor índice).
// La suma es exactamente amount, ninguna parte es negativa y, si amount <= total, ninguna supera su peso.
func Apportion(amount decimal.Decimal, weights []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	amount = amount.Round(2)
	if !amount.IsPositive() || !total.IsPositive() || len(weights) == 0 {
		return out
	}
	cents := amount.Shift(2)
	fractions := make([]decimal.Decimal, len(weights))
	assigned := decimal.Zero
	for i, w := range weights {
		if !w.IsPositive() {
			continue
		}
		exact := cents.Mul(w).Div(total)
		floor := exact.Floor()
		fractions[i] = exact.Sub(floor)
		out[i] = floor
		assigned = assigned.Add(floor)
	}

	order := make([]int, 0, len(weights))
	for i, w := range weights {
		if w.IsPositive() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]].GreaterThan(fractions[order[b]])
	})
	left := cents.Sub(assigned).IntPart()
	for k := 0; left > 0 && len(order) > 0; k++ {
		out[order[k%len(order)]] = out[order[k%len(order)]].Add(decimal.NewFromInt(1))
		left--
	}
	for i := range out {
		out[i] = out[i].Shift(-2)
	}
	return out
}
