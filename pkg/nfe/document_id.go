package nfe

import (
	"fmt"
	"unicode"
)

// Pesos del primer y segundo dígito verificador del CNPJ (de izquierda a derecha).
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida los 14 dígitos y ambos dígitos verificadores módulo 11.
// Acepta "11.222.333/0001-81" o "11222333000181".
func ValidateCNPJ(taxID string) error {
	digits := OnlyDigits(taxID)
	if len(digits) != 14 {
		return fmt.Errorf("nfe: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("nfe: CNPJ inválido (dígitos repetidos)")
	}
	d1 := mod11Digit(digits[:12], cnpjWeights1[:])
	d2 := mod11Digit(digits[:13], cnpjWeights2[:])
	if digits[12] != d1 || digits[13] != d2 {
		return fmt.Errorf("nfe: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %s", d1, d2, digits[12:])
	}
	return nil
}

// ValidateCPF valida los 11 dígitos y ambos dígitos verificadores.
func ValidateCPF(taxID string) error {
	digits := OnlyDigits(taxID)
	if len(digits) != 11 {
		return fmt.Errorf("nfe: CPF debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("nfe: CPF inválido (dígitos repetidos)")
	}
	w1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	d1 := mod11Digit(digits[:9], w1)
	d2 := mod11Digit(digits[:10], w2)
	if digits[9] != d1 || digits[10] != d2 {
		return fmt.Errorf("nfe: dígitos verificadores del CPF inválidos: esperado %c%c, recibido %s", d1, d2, digits[9:])
	}
	return nil
}

// ValidateRecipientTaxID acepta CPF (11 dígitos) o CNPJ (14 dígitos).
func ValidateRecipientTaxID(taxID string) error {
	switch len(OnlyDigits(taxID)) {
	case 11:
		return ValidateCPF(taxID)
	case 14:
		return ValidateCNPJ(taxID)
	default:
		return fmt.Errorf("nfe: el destinatario debe identificarse con CPF (11) o CNPJ (14) dígitos")
	}
}

// mod11Digit: resto 0 o 1 => '0', si no 11 - resto.
func mod11Digit(digits string, weights []int) byte {
	var sum int
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

func repeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// OnlyDigits deja solo dígitos 0-9.
func OnlyDigits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < 128 {
			out = append(out, r)
		}
	}
	return string(out)
}
