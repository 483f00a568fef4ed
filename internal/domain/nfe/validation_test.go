package nfe_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
)

func validIssuer() *entity.IssuerProfile {
	return &entity.IssuerProfile{
		ID:                "issuer-1",
		LegalName:         "Mercado Bom Preço Ltda",
		CNPJ:              "11222333000181",
		StateRegistration: "111222333444",
		TaxRegime:         entity.RegimeSimplified,
		Address: entity.Address{
			Street: "Rua das Flores", Number: "100", District: "Centro",
			MunicipalityName: "São Paulo", UF: "SP", ZipCode: "01001-000",
		},
		Environment: entity.EnvironmentHomologation,
		Documents: map[entity.DocumentModel]entity.DocumentSettings{
			entity.ModelNFCe: {Series: 1, CSCID: "000001", CSCToken: "CSCTESTE123"},
			entity.ModelNFe:  {Series: 1},
		},
	}
}

func TestValidateIssuer_Completo(t *testing.T) {
	require.NoError(t, nfe.ValidateIssuer(validIssuer(), entity.ModelNFCe))
	require.NoError(t, nfe.ValidateIssuer(validIssuer(), entity.ModelNFe))
}

func TestValidateIssuer_Incompleto(t *testing.T) {
	cases := map[string]func(p *entity.IssuerProfile){
		"sin CNPJ":      func(p *entity.IssuerProfile) { p.CNPJ = "" },
		"CNPJ inválido": func(p *entity.IssuerProfile) { p.CNPJ = "11222333000182" },
		"sin dirección": func(p *entity.IssuerProfile) { p.Address.Street = "" },
		"sin serie":     func(p *entity.IssuerProfile) { delete(p.Documents, entity.ModelNFCe) },
		"sin CSC":       func(p *entity.IssuerProfile) { p.Documents[entity.ModelNFCe] = entity.DocumentSettings{Series: 1} },
		"UF inválida":   func(p *entity.IssuerProfile) { p.Address.UF = "XX" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validIssuer()
			mutate(p)
			assert.ErrorIs(t, nfe.ValidateIssuer(p, entity.ModelNFCe), domain.ErrConfigurationIncomplete)
		})
	}
	assert.ErrorIs(t, nfe.ValidateIssuer(nil, entity.ModelNFCe), domain.ErrConfigurationIncomplete)
}

func TestValidateSale(t *testing.T) {
	sale := &entity.Sale{
		ID: "sale-1",
		Items: []entity.SaleItem{{
			Name: "Arroz 5kg", NCM: "10063021", CFOP: "5102",
			Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("25.90"),
			LineTotal: decimal.RequireFromString("51.80"),
		}},
	}
	require.NoError(t, nfe.ValidateSale(sale))

	sale.Items[0].LineTotal = decimal.RequireFromString("60.00")
	assert.ErrorIs(t, nfe.ValidateSale(sale), domain.ErrInvalidInput, "total de línea inconsistente")

	sale.Items[0].LineTotal = decimal.Zero
	sale.Discount = decimal.NewFromInt(100)
	assert.ErrorIs(t, nfe.ValidateSale(sale), domain.ErrInvalidInput, "descuento mayor que el subtotal")

	assert.ErrorIs(t, nfe.ValidateSale(&entity.Sale{ID: "vacía"}), domain.ErrInvalidInput)
}

func TestValidateTotals(t *testing.T) {
	d := decimal.RequireFromString
	assert.NoError(t, nfe.ValidateTotals(d("150.00"), d("50.00"), decimal.Zero, decimal.Zero, d("100.00")))
	assert.NoError(t, nfe.ValidateTotals(d("150.00"), d("50.00"), decimal.Zero, decimal.Zero, d("100.01")), "dentro de la tolerancia")
	assert.ErrorIs(t, nfe.ValidateTotals(d("150.00"), d("50.00"), decimal.Zero, decimal.Zero, d("150.00")), domain.ErrInvalidInput)
}

func TestApportion_Rateio(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name    string
		amount  string
		weights []string
		want    []string
	}{
		{name: "exacto", amount: "50.00", weights: []string{"60.00", "90.00"}, want: []string{"20.00", "30.00"}},
		{name: "última línea mínima", amount: "0.05", weights: []string{"1.00", "1.00", "1.00", "0.01"}, want: []string{"0.02", "0.02", "0.01", "0.00"}},
		{name: "descuento grande con línea mínima", amount: "2.00", weights: []string{"1.00", "1.00", "1.00", "0.01"}, want: []string{"0.67", "0.66", "0.66", "0.01"}},
		{name: "igual al subtotal", amount: "3.01", weights: []string{"1.00", "1.00", "1.00", "0.01"}, want: []string{"1.00", "1.00", "1.00", "0.01"}},
		{name: "tercios", amount: "10.00", weights: []string{"1.00", "1.00", "1.00"}, want: []string{"3.34", "3.33", "3.33"}},
		{name: "sin monto", amount: "0", weights: []string{"5.00"}, want: []string{"0.00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			weights := make([]decimal.Decimal, len(tc.weights))
			total := decimal.Zero
			for i, w := range tc.weights {
				weights[i] = d(w)
				total = total.Add(weights[i])
			}
			got := nfe.Apportion(d(tc.amount), weights, total)
			require.Len(t, got, len(tc.want))

			sum := decimal.Zero
			for i, part := range got {
				assert.Equal(t, tc.want[i], part.StringFixed(2), "línea %d", i+1)
				assert.False(t, part.IsNegative(), "línea %d negativa", i+1)
				assert.True(t, part.LessThanOrEqual(weights[i]), "línea %d supera su valor", i+1)
				sum = sum.Add(part)
			}
			assert.True(t, sum.Equal(d(tc.amount)), "la suma %s debe ser %s", sum, tc.amount)
		})
	}
}
