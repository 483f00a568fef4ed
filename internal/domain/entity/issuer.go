package entity

import "time"

// TaxRegime es el régimen tributario del emisor.
type TaxRegime string

const (
	RegimeSimplified TaxRegime = "simplified" // Simples Nacional (CRT 1)
	RegimePresumed   TaxRegime = "presumed"   // Lucro Presumido (CRT 3)
	RegimeReal       TaxRegime = "real"       // Lucro Real (CRT 3)
)

// Environment es el ambiente de emisión (tpAmb).
type Environment string

const (
	EnvironmentProduction   Environment = "production"   // tpAmb = 1
	EnvironmentHomologation Environment = "homologation" // tpAmb = 2
)

// Code devuelve el valor de tpAmb.
func (e Environment) Code() string {
	if e == EnvironmentProduction {
		return "1"
	}
	return "2"
}

// Address es el domicilio del emisor (grupo enderEmit).
type Address struct {
	Street           string // xLgr
	Number           string // nro
	Complement       string // xCpl
	District         string // xBairro
	MunicipalityCode string // cMun (IBGE, 7 dígitos); vacío = resolver por nombre
	MunicipalityName string // xMun
	UF               string // sigla, ej. "SP"
	ZipCode          string // CEP
	Phone            string
}

// DocumentSettings agrupa la serie y las credenciales de verificación de un modelo.
type DocumentSettings struct {
	Series   int
	CSCID    string // identificador del Código de Segurança do Contribuinte
	CSCToken string // secreto del CSC
}

// IssuerProfile es la configuración del emisor. Es inmutable durante una emisión.
type IssuerProfile struct {
	ID                string
	LegalName         string // xNome
	TradeName         string // xFant
	CNPJ              string
	StateRegistration string // IE
	TaxRegime         TaxRegime
	Address           Address
	Environment       Environment
	TimeZone          string // ej. "America/Sao_Paulo"
	Documents         map[DocumentModel]DocumentSettings
	UpdatedAt         time.Time
}

// Settings devuelve la configuración del modelo y si existe.
func (p *IssuerProfile) Settings(model DocumentModel) (DocumentSettings, bool) {
	if p == nil || p.Documents == nil {
		return DocumentSettings{}, false
	}
	s, ok := p.Documents[model]
	return s, ok
}

// CRT devuelve el Código de Regime Tributário del emisor.
func (p *IssuerProfile) CRT() string {
	if p.TaxRegime == RegimeSimplified {
		return "1"
	}
	return "3"
}
