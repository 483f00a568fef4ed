// Package nfe contiene catálogos y validaciones alineados al Manual de Orientação
// do Contribuinte (MOC) de la NF-e/NFC-e, layout 4.00.
package nfe

// SchemaVersion es la versión del layout de la NF-e emitido por el motor.
const SchemaVersion = "4.00"

// Namespace del XML de la NF-e.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// =============================================================================
// Tabela de UF (códigos IBGE usados en cUF y en la clave de acceso)
// =============================================================================

var UFCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29",
	"MG": "31", "ES": "32", "RJ": "33", "SP": "35",
	"PR": "41", "SC": "42", "RS": "43",
	"MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// UFCode devuelve el código IBGE de la UF y si existe.
func UFCode(uf string) (string, bool) {
	c, ok := UFCodes[uf]
	return c, ok
}

// =============================================================================
// ide: tipo de emisión, finalidad, presencia, formato DANFE
// =============================================================================

const (
	EmissionTypeNormal = "1" // tpEmis: emisión normal

	OperationTypeOutbound = "1" // tpNF: salida
	DestinationInternal   = "1" // idDest: operación interna

	PurposeNormal = "1" // finNFe: normal

	FinalConsumerYes = "1" // indFinal
	PresenceInPerson = "1" // indPres: operación presencial

	ProcessOwnApp = "0" // procEmi: aplicativo del contribuyente

	DanfeNFCe = "4" // tpImp: DANFE NFC-e
	DanfeNFe  = "1" // tpImp: DANFE retrato
)

// =============================================================================
// CST / CSOSN
// =============================================================================

const (
	CSOSNNoCredit       = "102" // Simples Nacional sin permiso de crédito
	CSOSNExemptRange    = "103" // Exención por franja de ingreso bruto
	CSOSNImmune         = "300" // Inmune
	CSOSNNotTaxed       = "400" // No tributada
	CSOSNSTCharged      = "500" // ICMS cobrado antes por sustitución tributaria
	CSTICMSTaxed        = "00"  // Tributada integralmente
	CSTICMSExempt       = "40"  // Isenta
	CSTPISCOFINSAliq    = "01"  // Operación tributable, alícuota básica
	CSTPISCOFINSOther   = "49"  // Otras operaciones de salida
	CSTIPITaxed         = "50"  // Salida tributada
	ModBCValue          = "3"   // modBC: valor de la operación
	IPIDefaultFramework = "999" // cEnq
)

// =============================================================================
// Forma de pago (tPag) y modalidad de flete
// =============================================================================

const (
	PaymentCash       = "01"
	PaymentCheck      = "02"
	PaymentCreditCard = "03"
	PaymentDebitCard  = "04"
	PaymentPix        = "17"
	PaymentOther      = "99"

	FreightNone = "9" // modFrete: sin transporte
)

// ValidPaymentCodes códigos tPag aceptados por el motor.
var ValidPaymentCodes = map[string]bool{
	PaymentCash: true, PaymentCheck: true, PaymentCreditCard: true,
	PaymentDebitCard: true, PaymentPix: true, PaymentOther: true,
}

// =============================================================================
// Textos obligatorios en ambiente de homologación
// =============================================================================

const (
	HomologationItemDescription = "NOTA FISCAL EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
	HomologationRecipientName   = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
	NoGTIN                      = "SEM GTIN"
)

// =============================================================================
// cStat de retorno
// =============================================================================

const (
	StatAuthorized         = "100" // Autorizado o uso da NF-e
	StatCancelled          = "101" // Cancelamento de NF-e homologado
	StatCancelEventApplied = "135" // Evento registrado e vinculado a NF-e
	StatDenied             = "110" // Uso denegado
)
