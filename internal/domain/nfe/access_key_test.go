package nfe_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vectores de clave de acceso:
//
//	35 2410 11222333000181 65 001 000000042 1 01234567 -> DV 2
//	35 2507 32409620000175 55 001 000003747 1 01154464 -> DV 8 (NF-e real publicada)
// ──────────────────────────────────────────────────────────────────────────────

func TestCheckDigit_VectorNFeReal(t *testing.T) {
	dv, err := nfe.CheckDigit("3525073240962000017555001000003747101154464")
	require.NoError(t, err)
	assert.Equal(t, 8, dv)
}

func TestGenerate_VectorExacto(t *testing.T) {
	gen := nfe.NewAccessKeyGenerator(nil)
	key, err := gen.Generate(&nfe.AccessKeyParams{
		UF:       "SP",
		IssuedAt: time.Date(2024, 10, 15, 10, 0, 0, 0, time.UTC),
		CNPJ:     "11.222.333/0001-81",
		Model:    entity.ModelNFCe,
		Series:   1,
		Number:   42,
		Code:     "01234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "35241011222333000181650010000000421012345672", key)
	assert.Len(t, key, nfe.AccessKeyLength)
}

func TestGenerate_CodigoAleatorioDeSieteDigitos(t *testing.T) {
	gen := nfe.NewAccessKeyGenerator(bytes.NewReader(bytes.Repeat([]byte{0x5a, 0x13, 0xc7, 0x01}, 64)))
	key, err := gen.Generate(baseParams(7))
	require.NoError(t, err)

	parsed, err := nfe.ParseAccessKey(key)
	require.NoError(t, err)
	assert.Len(t, parsed.Code, 8)
	assert.Equal(t, byte('0'), parsed.Code[0], "el código aleatorio ocupa 7 dígitos significativos")
	assert.NotEqual(t, "00000007", parsed.Code, "cNF nunca igual a nNF")
}

func TestCheckDigit_RoundTrip(t *testing.T) {
	gen := nfe.NewAccessKeyGenerator(nil)
	for n := int64(1); n <= 500; n++ {
		key, err := gen.Generate(baseParams(n))
		require.NoError(t, err)
		require.Len(t, key, 44)

		dv, err := nfe.CheckDigit(key[:43])
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(dv), key[43:], "el DV recalculado debe coincidir con la posición 44 (número %d)", n)
		require.NoError(t, nfe.ValidateAccessKey(key))
	}
}

func TestCheckDigit_RestoCeroOUnoDaCero(t *testing.T) {
	// Se busca un prefijo cuyo resto sea 0 o 1 variando el último dígito.
	base := "352410112223330001816500100000004210123456"
	found := false
	for d := 0; d <= 9; d++ {
		prefix := base + strconv.Itoa(d)
		dv, err := nfe.CheckDigit(prefix)
		require.NoError(t, err)
		require.GreaterOrEqual(t, dv, 0)
		require.LessOrEqual(t, dv, 9, "el DV nunca puede ser 10 u 11")
		if dv == 0 {
			found = true
		}
	}
	assert.True(t, found, "en 10 variaciones del último dígito al menos una produce resto 0 o 1")
}

func TestParseAccessKey(t *testing.T) {
	parsed, err := nfe.ParseAccessKey("35241011222333000181650010000000421012345672")
	require.NoError(t, err)
	assert.Equal(t, "35", parsed.UF)
	assert.Equal(t, "2410", parsed.YearMonth)
	assert.Equal(t, "11222333000181", parsed.CNPJ)
	assert.Equal(t, entity.ModelNFCe, parsed.Model)
	assert.Equal(t, 1, parsed.Series)
	assert.Equal(t, int64(42), parsed.Number)
	assert.Equal(t, "1", parsed.EmissionType)
	assert.Equal(t, "01234567", parsed.Code)
	assert.Equal(t, 2, parsed.CheckDigit)
}

func TestValidateAccessKey_Errores(t *testing.T) {
	assert.ErrorIs(t, nfe.ValidateAccessKey("123"), domain.ErrInvalidInput)
	assert.ErrorIs(t, nfe.ValidateAccessKey("35241011222333000181650010000000421012345673"), domain.ErrInvalidInput, "DV alterado")
	assert.ErrorIs(t, nfe.ValidateAccessKey("3524101122233300018165001000000042101234567X"), domain.ErrInvalidInput)
}

func TestGenerate_ParametrosInvalidos(t *testing.T) {
	gen := nfe.NewAccessKeyGenerator(nil)

	p := baseParams(1)
	p.UF = "XX"
	_, err := gen.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	p = baseParams(0)
	_, err = gen.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "el número empieza en 1")

	p = baseParams(1)
	p.Series = 1000
	_, err = gen.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	p = baseParams(1)
	p.Model = "59"
	_, err = gen.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func baseParams(number int64) *nfe.AccessKeyParams {
	return &nfe.AccessKeyParams{
		UF:       "35",
		IssuedAt: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		CNPJ:     "11222333000181",
		Model:    entity.ModelNFCe,
		Series:   1,
		Number:   number,
	}
}
