// Package nfe contiene las reglas de dominio de la NF-e/NFC-e: clave de acceso,
// ciclo de autorización y validaciones previas al armado del documento.
package nfe

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// AccessKeyLength es la longitud fija de la clave de acceso.
const AccessKeyLength = 44

const (
	maxSeries = 999
	maxNumber = 999_999_999
	// El código aleatorio tiene 7 dígitos significativos dentro del campo cNF de 8 posiciones.
	randomCodeSpace = 10_000_000
	maxCodeAttempts = 16
)

// AccessKeyParams son los campos que componen la clave (en orden de aparición).
type AccessKeyParams struct {
	UF           string // sigla ("SP") o código IBGE ("35")
	IssuedAt     time.Time
	CNPJ         string
	Model        entity.DocumentModel
	Series       int
	Number       int64
	EmissionType string // tpEmis; vacío = emisión normal
	Code         string // cNF de 8 dígitos; vacío = aleatorio
}

// AccessKey es la clave de acceso descompuesta.
//
//	cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1)
type AccessKey struct {
	UF           string
	YearMonth    string
	CNPJ         string
	Model        entity.DocumentModel
	Series       int
	Number       int64
	EmissionType string
	Code         string
	CheckDigit   int
}

// AccessKeyGenerator genera claves de acceso. El único campo no determinista es cNF.
type AccessKeyGenerator struct {
	random io.Reader
}

// NewAccessKeyGenerator crea el generador; random nil usa crypto/rand.
func NewAccessKeyGenerator(random io.Reader) *AccessKeyGenerator {
	if random == nil {
		random = rand.Reader
	}
	return &AccessKeyGenerator{random: random}
}

// Generate arma la clave de 44 dígitos con su dígito verificador.
func (g *AccessKeyGenerator) Generate(p *AccessKeyParams) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: parámetros de la clave de acceso obligatorios", domain.ErrInvalidInput)
	}
	uf := p.UF
	if code, ok := pkgnfe.UFCode(uf); ok {
		uf = code
	}
	if len(uf) != 2 || pkgnfe.OnlyDigits(uf) != uf {
		return "", fmt.Errorf("%w: UF %q desconocida", domain.ErrInvalidInput, p.UF)
	}
	if p.IssuedAt.IsZero() {
		return "", fmt.Errorf("%w: fecha de emisión obligatoria", domain.ErrInvalidInput)
	}
	cnpj := pkgnfe.OnlyDigits(p.CNPJ)
	if len(cnpj) != 14 {
		return "", fmt.Errorf("%w: CNPJ del emisor debe tener 14 dígitos", domain.ErrInvalidInput)
	}
	if !p.Model.Valid() {
		return "", fmt.Errorf("%w: modelo %q no soportado", domain.ErrInvalidInput, p.Model)
	}
	if p.Series < 0 || p.Series > maxSeries {
		return "", fmt.Errorf("%w: serie %d fuera de rango (0-999)", domain.ErrInvalidInput, p.Series)
	}
	if p.Number < 1 || p.Number > maxNumber {
		return "", fmt.Errorf("%w: número %d fuera de rango (1-999999999)", domain.ErrInvalidInput, p.Number)
	}
	tpEmis := p.EmissionType
	if tpEmis == "" {
		tpEmis = pkgnfe.EmissionTypeNormal
	}
	if len(tpEmis) != 1 || pkgnfe.OnlyDigits(tpEmis) != tpEmis {
		return "", fmt.Errorf("%w: tpEmis %q inválido", domain.ErrInvalidInput, tpEmis)
	}

	code := p.Code
	if code == "" {
		var err error
		if code, err = g.randomCode(p.Number); err != nil {
			return "", err
		}
	}
	if len(code) != 8 || pkgnfe.OnlyDigits(code) != code {
		return "", fmt.Errorf("%w: cNF debe tener 8 dígitos", domain.ErrInvalidInput)
	}

	prefix := uf +
		p.IssuedAt.Format("0601") +
		cnpj +
		string(p.Model) +
		fmt.Sprintf("%03d", p.Series) +
		fmt.Sprintf("%09d", p.Number) +
		tpEmis +
		code

	dv, err := CheckDigit(prefix)
	if err != nil {
		return "", err
	}
	return prefix + strconv.Itoa(dv), nil
}

// randomCode sortea el cNF. La SEFAZ rechaza cNF igual a nNF, por eso se vuelve a sortear.
func (g *AccessKeyGenerator) randomCode(number int64) (string, error) {
	forbidden := fmt.Sprintf("%08d", number%100_000_000)
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(g.random, big.NewInt(randomCodeSpace))
		if err != nil {
			return "", fmt.Errorf("clave de acceso: generar código aleatorio: %w", err)
		}
		code := fmt.Sprintf("%08d", n.Int64())
		if code != forbidden {
			return code, nil
		}
	}
	return "", fmt.Errorf("clave de acceso: no se obtuvo un cNF distinto de nNF")
}

// CheckDigit calcula el dígito verificador módulo 11 sobre los 43 dígitos previos.
// Pesos 2..9 de derecha a izquierda, reiniciando en 2; resto 0 o 1 => 0, si no 11 - resto.
func CheckDigit(prefix string) (int, error) {
	if len(prefix) != AccessKeyLength-1 {
		return 0, fmt.Errorf("%w: se esperaban 43 dígitos, se recibieron %d", domain.ErrInvalidInput, len(prefix))
	}
	sum, weight := 0, 2
	for i := len(prefix) - 1; i >= 0; i-- {
		c := prefix[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: carácter no numérico en la posición %d", domain.ErrInvalidInput, i+1)
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0, nil
	}
	return 11 - r, nil
}

// ValidateAccessKey verifica longitud, dígitos y dígito verificador.
func ValidateAccessKey(key string) error {
	if len(key) != AccessKeyLength {
		return fmt.Errorf("%w: la clave de acceso debe tener 44 dígitos", domain.ErrInvalidInput)
	}
	dv, err := CheckDigit(key[:43])
	if err != nil {
		return err
	}
	if got := int(key[43] - '0'); got != dv {
		return fmt.Errorf("%w: dígito verificador inválido: esperado %d, recibido %d", domain.ErrInvalidInput, dv, got)
	}
	return nil
}

// ParseAccessKey descompone una clave válida.
func ParseAccessKey(key string) (*AccessKey, error) {
	if err := ValidateAccessKey(key); err != nil {
		return nil, err
	}
	series, _ := strconv.Atoi(key[22:25])
	number, _ := strconv.ParseInt(key[25:34], 10, 64)
	return &AccessKey{
		UF:           key[0:2],
		YearMonth:    key[2:6],
		CNPJ:         key[6:20],
		Model:        entity.DocumentModel(key[20:22]),
		Series:       series,
		Number:       number,
		EmissionType: key[34:35],
		Code:         key[35:43],
		CheckDigit:   int(key[43] - '0'),
	}, nil
}
