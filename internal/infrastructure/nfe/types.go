// Package nfe arma el XML de la NF-e/NFC-e (layout 4.00), el QR Code de consulta
// y define el puerto del autorizador.
package nfe

import (
	"encoding/xml"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// AssembleInput contiene todo lo necesario para armar el documento. El armado es puro:
// las consultas (municipio, impuestos, número) se resuelven antes.
type AssembleInput struct {
	Sale             *entity.Sale
	Issuer           *entity.IssuerProfile
	Taxes            *entity.TaxSummary
	Model            entity.DocumentModel
	Number           int64
	AccessKey        string
	RecipientTaxID   string    // vacío = consumidor no identificado
	IssuedAt         time.Time // ya en la zona horaria del emisor
	MunicipalityCode string    // cMun IBGE del emisor
}

// DocumentBody es el árbol armado más los totales derivados de los ítems.
type DocumentBody struct {
	NFe    *NFe
	Totals entity.DocumentTotals
}

// ── Árbol XML (orden de elementos según el esquema nfe_v4.00.xsd) ─────────────

type NFe struct {
	XMLName    xml.Name    `xml:"http://www.portalfiscal.inf.br/nfe NFe"`
	InfNFe     InfNFe      `xml:"infNFe"`
	InfNFeSupl *InfNFeSupl `xml:"infNFeSupl,omitempty"`
}

type InfNFe struct {
	Versao  string   `xml:"versao,attr"`
	ID      string   `xml:"Id,attr"` // "NFe" + clave de acceso
	Ide     Ide      `xml:"ide"`
	Emit    Emit     `xml:"emit"`
	Dest    *Dest    `xml:"dest,omitempty"`
	Det     []Det    `xml:"det"`
	Total   Total    `xml:"total"`
	Transp  Transp   `xml:"transp"`
	Pag     Pag      `xml:"pag"`
	InfAdic *InfAdic `xml:"infAdic,omitempty"`
}

type Ide struct {
	CUF      string `xml:"cUF"`
	CNF      string `xml:"cNF"`
	NatOp    string `xml:"natOp"`
	Mod      string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNF      string `xml:"nNF"`
	DhEmi    string `xml:"dhEmi"`
	TpNF     string `xml:"tpNF"`
	IdDest   string `xml:"idDest"`
	CMunFG   string `xml:"cMunFG"`
	TpImp    string `xml:"tpImp"`
	TpEmis   string `xml:"tpEmis"`
	CDV      string `xml:"cDV"`
	TpAmb    string `xml:"tpAmb"`
	FinNFe   string `xml:"finNFe"`
	IndFinal string `xml:"indFinal"`
	IndPres  string `xml:"indPres"`
	ProcEmi  string `xml:"procEmi"`
	VerProc  string `xml:"verProc"`
}

type Emit struct {
	CNPJ      string    `xml:"CNPJ"`
	XNome     string    `xml:"xNome"`
	XFant     string    `xml:"xFant,omitempty"`
	EnderEmit EnderEmit `xml:"enderEmit"`
	IE        string    `xml:"IE"`
	CRT       string    `xml:"CRT"`
}

type EnderEmit struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XCpl    string `xml:"xCpl,omitempty"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP"`
	CPais   string `xml:"cPais"`
	XPais   string `xml:"xPais"`
	Fone    string `xml:"fone,omitempty"`
}

type Dest struct {
	CNPJ      string `xml:"CNPJ,omitempty"`
	CPF       string `xml:"CPF,omitempty"`
	XNome     string `xml:"xNome,omitempty"`
	IndIEDest string `xml:"indIEDest"`
}

type Det struct {
	NItem   int     `xml:"nItem,attr"`
	Prod    Prod    `xml:"prod"`
	Imposto Imposto `xml:"imposto"`
}

type Prod struct {
	CProd    string `xml:"cProd"`
	CEAN     string `xml:"cEAN"`
	XProd    string `xml:"xProd"`
	NCM      string `xml:"NCM"`
	CEST     string `xml:"CEST,omitempty"`
	CFOP     string `xml:"CFOP"`
	UCom     string `xml:"uCom"`
	QCom     string `xml:"qCom"`
	VUnCom   string `xml:"vUnCom"`
	VProd    string `xml:"vProd"`
	CEANTrib string `xml:"cEANTrib"`
	UTrib    string `xml:"uTrib"`
	QTrib    string `xml:"qTrib"`
	VUnTrib  string `xml:"vUnTrib"`
	VDesc    string `xml:"vDesc,omitempty"`
	VOutro   string `xml:"vOutro,omitempty"`
	IndTot   string `xml:"indTot"`
}

type Imposto struct {
	VTotTrib string `xml:"vTotTrib,omitempty"`
	ICMS     ICMS   `xml:"ICMS"`
	IPI      *IPI   `xml:"IPI,omitempty"`
	PIS      PIS    `xml:"PIS"`
	COFINS   COFINS `xml:"COFINS"`
}

// ICMS lleva exactamente uno de sus grupos.
type ICMS struct {
	ICMS00    *ICMS00    `xml:"ICMS00,omitempty"`
	ICMS40    *ICMS40    `xml:"ICMS40,omitempty"`
	ICMSSN102 *ICMSSN102 `xml:"ICMSSN102,omitempty"`
	ICMSSN500 *ICMSSN500 `xml:"ICMSSN500,omitempty"`
}

type ICMS00 struct {
	Orig  string `xml:"orig"`
	CST   string `xml:"CST"`
	ModBC string `xml:"modBC"`
	VBC   string `xml:"vBC"`
	PICMS string `xml:"pICMS"`
	VICMS string `xml:"vICMS"`
}

type ICMS40 struct {
	Orig string `xml:"orig"`
	CST  string `xml:"CST"`
}

type ICMSSN102 struct {
	Orig  string `xml:"orig"`
	CSOSN string `xml:"CSOSN"`
}

// ICMSSN500 sin los valores retenidos (vBCSTRet, vICMSSTRet), que son opcionales en NFC-e.
type ICMSSN500 struct {
	Orig  string `xml:"orig"`
	CSOSN string `xml:"CSOSN"`
}

type IPI struct {
	CEnq    string   `xml:"cEnq"`
	IPITrib *IPITrib `xml:"IPITrib"`
}

type IPITrib struct {
	CST  string `xml:"CST"`
	VBC  string `xml:"vBC"`
	PIPI string `xml:"pIPI"`
	VIPI string `xml:"vIPI"`
}

type PIS struct {
	PISAliq *PISGroup `xml:"PISAliq,omitempty"`
	PISOutr *PISGroup `xml:"PISOutr,omitempty"`
}

type PISGroup struct {
	CST  string `xml:"CST"`
	VBC  string `xml:"vBC"`
	PPIS string `xml:"pPIS"`
	VPIS string `xml:"vPIS"`
}

type COFINS struct {
	COFINSAliq *COFINSGroup `xml:"COFINSAliq,omitempty"`
	COFINSOutr *COFINSGroup `xml:"COFINSOutr,omitempty"`
}

type COFINSGroup struct {
	CST     string `xml:"CST"`
	VBC     string `xml:"vBC"`
	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
}

type Total struct {
	ICMSTot ICMSTot `xml:"ICMSTot"`
}

type ICMSTot struct {
	VBC        string `xml:"vBC"`
	VICMS      string `xml:"vICMS"`
	VICMSDeson string `xml:"vICMSDeson"`
	VFCP       string `xml:"vFCP"`
	VBCST      string `xml:"vBCST"`
	VST        string `xml:"vST"`
	VFCPST     string `xml:"vFCPST"`
	VFCPSTRet  string `xml:"vFCPSTRet"`
	VProd      string `xml:"vProd"`
	VFrete     string `xml:"vFrete"`
	VSeg       string `xml:"vSeg"`
	VDesc      string `xml:"vDesc"`
	VII        string `xml:"vII"`
	VIPI       string `xml:"vIPI"`
	VIPIDevol  string `xml:"vIPIDevol"`
	VPIS       string `xml:"vPIS"`
	VCOFINS    string `xml:"vCOFINS"`
	VOutro     string `xml:"vOutro"`
	VNF        string `xml:"vNF"`
	VTotTrib   string `xml:"vTotTrib"`
}

type Transp struct {
	ModFrete string `xml:"modFrete"`
}

type Pag struct {
	DetPag []DetPag `xml:"detPag"`
}

type DetPag struct {
	TPag string `xml:"tPag"`
	VPag string `xml:"vPag"`
}

type InfAdic struct {
	InfCpl string `xml:"infCpl,omitempty"`
}

type InfNFeSupl struct {
	QRCode   string `xml:"qrCode"`
	URLChave string `xml:"urlChave"`
}
