package nfe

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

const (
	natOpSale  = "VENDA DE MERCADORIA"
	dhLayout   = "2006-01-02T15:04:05-07:00"
	countryBR  = "1058"
	countryStr = "BRASIL"
)

// Assembler arma el documento fiscal sin efectos secundarios: mismas entradas, mismos bytes.
type Assembler struct {
	appVersion string
}

// NewAssembler crea el armador; appVersion se informa en ide/verProc.
func NewAssembler(appVersion string) *Assembler {
	if appVersion == "" {
		appVersion = "emisor-fiscal"
	}
	return &Assembler{appVersion: appVersion}
}

// Assemble construye el árbol NF-e 4.00 a partir de la venta, el emisor y el resumen de impuestos.
// Los totales salen siempre de la suma de los ítems, nunca del total almacenado en la venta.
func (a *Assembler) Assemble(in *AssembleInput) (*DocumentBody, error) {
	if in == nil || in.Sale == nil || in.Taxes == nil {
		return nil, fmt.Errorf("%w: faltan venta o resumen de impuestos", domain.ErrInvalidInput)
	}
	if err := domainnfe.ValidateIssuer(in.Issuer, in.Model); err != nil {
		return nil, err
	}
	if in.MunicipalityCode == "" {
		return nil, fmt.Errorf("%w: falta código IBGE del municipio del emisor", domain.ErrConfigurationIncomplete)
	}
	if err := domainnfe.ValidateSale(in.Sale); err != nil {
		return nil, err
	}
	if len(in.Taxes.Lines) != len(in.Sale.Items) {
		return nil, fmt.Errorf("%w: el resumen de impuestos tiene %d líneas y la venta %d ítems",
			domain.ErrInvalidInput, len(in.Taxes.Lines), len(in.Sale.Items))
	}
	key, err := domainnfe.ParseAccessKey(in.AccessKey)
	if err != nil {
		return nil, err
	}
	if key.Number != in.Number || key.Model != in.Model {
		return nil, fmt.Errorf("%w: la clave de acceso no corresponde al número/modelo", domain.ErrInvalidInput)
	}

	issuer := in.Issuer
	settings, _ := issuer.Settings(in.Model)
	homolog := issuer.Environment == entity.EnvironmentHomologation
	simplified := issuer.TaxRegime == entity.RegimeSimplified

	// ═══ 1. Ítems: vProd, rateio de descuento y otros cargos ═══
	lineProducts := make([]decimal.Decimal, len(in.Sale.Items))
	subtotal := decimal.Zero
	for i, it := range in.Sale.Items {
		lineProducts[i] = domainnfe.LineProducts(it)
		subtotal = subtotal.Add(lineProducts[i])
	}
	discounts := domainnfe.Apportion(in.Sale.Discount.Round(2), lineProducts, subtotal)
	others := domainnfe.Apportion(in.Sale.Additions.Round(2), lineProducts, subtotal)

	var totals entity.DocumentTotals
	dets := make([]Det, 0, len(in.Sale.Items))
	for i, it := range in.Sale.Items {
		tl := in.Taxes.Lines[i]
		prod := buildProd(it, lineProducts[i], discounts[i], others[i])
		if homolog && in.Model == entity.ModelNFCe && i == 0 {
			prod.XProd = pkgnfe.HomologationItemDescription
		}

		imposto := Imposto{}
		if tl.ApproxTaxes.IsPositive() {
			imposto.VTotTrib = money(tl.ApproxTaxes)
		}
		if simplified {
			icms, err := simplesICMS(origin(it), tl.ICMSCST)
			if err != nil {
				return nil, fmt.Errorf("ítem %d: %w", i+1, err)
			}
			imposto.ICMS = icms
			imposto.PIS = PIS{PISOutr: &PISGroup{CST: pkgnfe.CSTPISCOFINSOther, VBC: money(decimal.Zero), PPIS: rate(decimal.Zero), VPIS: money(decimal.Zero)}}
			imposto.COFINS = COFINS{COFINSOutr: &COFINSGroup{CST: pkgnfe.CSTPISCOFINSOther, VBC: money(decimal.Zero), PCOFINS: rate(decimal.Zero), VCOFINS: money(decimal.Zero)}}
		} else {
			if tl.ICMSRate.IsPositive() {
				imposto.ICMS = ICMS{ICMS00: &ICMS00{
					Orig: origin(it), CST: pkgnfe.CSTICMSTaxed, ModBC: pkgnfe.ModBCValue,
					VBC: money(tl.ICMSBase), PICMS: rate(tl.ICMSRate), VICMS: money(tl.ICMSAmount),
				}}
				totals.ICMSBase = totals.ICMSBase.Add(tl.ICMSBase.Round(2))
				totals.ICMS = totals.ICMS.Add(tl.ICMSAmount.Round(2))
			} else {
				imposto.ICMS = ICMS{ICMS40: &ICMS40{Orig: origin(it), CST: pkgnfe.CSTICMSExempt}}
			}
			if in.Model == entity.ModelNFe && tl.IPIAmount.IsPositive() {
				imposto.IPI = &IPI{CEnq: pkgnfe.IPIDefaultFramework, IPITrib: &IPITrib{
					CST: pkgnfe.CSTIPITaxed, VBC: money(tl.IPIBase), PIPI: rate(tl.IPIRate), VIPI: money(tl.IPIAmount),
				}}
				totals.IPI = totals.IPI.Add(tl.IPIAmount.Round(2))
			}
			imposto.PIS = PIS{PISAliq: &PISGroup{
				CST: nonEmpty(tl.PISCST, pkgnfe.CSTPISCOFINSAliq), VBC: money(tl.PISBase), PPIS: rate(tl.PISRate), VPIS: money(tl.PISAmount),
			}}
			imposto.COFINS = COFINS{COFINSAliq: &COFINSGroup{
				CST: nonEmpty(tl.COFINSCST, pkgnfe.CSTPISCOFINSAliq), VBC: money(tl.COFINSBase), PCOFINS: rate(tl.COFINSRate), VCOFINS: money(tl.COFINSAmount),
			}}
			totals.PIS = totals.PIS.Add(tl.PISAmount.Round(2))
			totals.COFINS = totals.COFINS.Add(tl.COFINSAmount.Round(2))
		}

		totals.Products = totals.Products.Add(lineProducts[i])
		totals.Discount = totals.Discount.Add(discounts[i])
		totals.Other = totals.Other.Add(others[i])
		totals.ApproxTaxes = totals.ApproxTaxes.Add(tl.ApproxTaxes.Round(2))
		dets = append(dets, Det{NItem: i + 1, Prod: prod, Imposto: imposto})
	}

	// ═══ 2. Totales (ICMSTot) ═══
	totals.Grand = totals.Products.Sub(totals.Discount).Add(totals.Other).Add(totals.IPI)
	if err := domainnfe.ValidateTotals(totals.Products, totals.Discount, totals.Other, totals.IPI, totals.Grand); err != nil {
		return nil, err
	}
	zero := money(decimal.Zero)
	icmsTot := ICMSTot{
		VBC: money(totals.ICMSBase), VICMS: money(totals.ICMS), VICMSDeson: zero, VFCP: zero,
		VBCST: zero, VST: zero, VFCPST: zero, VFCPSTRet: zero,
		VProd: money(totals.Products), VFrete: zero, VSeg: zero, VDesc: money(totals.Discount),
		VII: zero, VIPI: money(totals.IPI), VIPIDevol: zero,
		VPIS: money(totals.PIS), VCOFINS: money(totals.COFINS), VOutro: money(totals.Other),
		VNF: money(totals.Grand), VTotTrib: money(totals.ApproxTaxes),
	}

	// ═══ 3. Cabecera, emisor y destinatario ═══
	ufCode, _ := pkgnfe.UFCode(issuer.Address.UF)
	ide := Ide{
		CUF:      ufCode,
		CNF:      key.Code,
		NatOp:    natOpSale,
		Mod:      string(in.Model),
		Serie:    strconv.Itoa(settings.Series),
		NNF:      strconv.FormatInt(in.Number, 10),
		DhEmi:    in.IssuedAt.Format(dhLayout),
		TpNF:     pkgnfe.OperationTypeOutbound,
		IdDest:   pkgnfe.DestinationInternal,
		CMunFG:   in.MunicipalityCode,
		TpImp:    pkgnfe.DanfeNFe,
		TpEmis:   key.EmissionType,
		CDV:      strconv.Itoa(key.CheckDigit),
		TpAmb:    issuer.Environment.Code(),
		FinNFe:   pkgnfe.PurposeNormal,
		IndFinal: pkgnfe.FinalConsumerYes,
		IndPres:  pkgnfe.PresenceInPerson,
		ProcEmi:  pkgnfe.ProcessOwnApp,
		VerProc:  a.appVersion,
	}
	if in.Model == entity.ModelNFCe {
		ide.TpImp = pkgnfe.DanfeNFCe
	}

	emit := Emit{
		CNPJ:  pkgnfe.OnlyDigits(issuer.CNPJ),
		XNome: strings.TrimSpace(issuer.LegalName),
		XFant: strings.TrimSpace(issuer.TradeName),
		EnderEmit: EnderEmit{
			XLgr:    issuer.Address.Street,
			Nro:     issuer.Address.Number,
			XCpl:    issuer.Address.Complement,
			XBairro: issuer.Address.District,
			CMun:    in.MunicipalityCode,
			XMun:    issuer.Address.MunicipalityName,
			UF:      issuer.Address.UF,
			CEP:     pkgnfe.OnlyDigits(issuer.Address.ZipCode),
			CPais:   countryBR,
			XPais:   countryStr,
			Fone:    pkgnfe.OnlyDigits(issuer.Address.Phone),
		},
		IE:  pkgnfe.OnlyDigits(issuer.StateRegistration),
		CRT: issuer.CRT(),
	}

	dest, err := buildDest(in.RecipientTaxID, in.Sale.RecipientName, homolog)
	if err != nil {
		return nil, err
	}
	if dest != nil && dest.CNPJ != "" && in.Model == entity.ModelNFe {
		ide.IndFinal = "0"
	}

	payment := nonEmpty(in.Sale.PaymentMethod, pkgnfe.PaymentCash)
	if !pkgnfe.ValidPaymentCodes[payment] {
		return nil, fmt.Errorf("%w: forma de pago %q no soportada", domain.ErrInvalidInput, payment)
	}

	inf := InfNFe{
		Versao: pkgnfe.SchemaVersion,
		ID:     "NFe" + in.AccessKey,
		Ide:    ide,
		Emit:   emit,
		Dest:   dest,
		Det:    dets,
		Total:  Total{ICMSTot: icmsTot},
		Transp: Transp{ModFrete: pkgnfe.FreightNone},
		Pag:    Pag{DetPag: []DetPag{{TPag: payment, VPag: money(totals.Grand)}}},
	}
	if totals.ApproxTaxes.IsPositive() {
		inf.InfAdic = &InfAdic{InfCpl: fmt.Sprintf("Tributos totais incidentes (Lei Federal 12.741/2012): R$ %s", money(totals.ApproxTaxes))}
	}

	return &DocumentBody{NFe: &NFe{InfNFe: inf}, Totals: totals}, nil
}

// AttachVerification agrega el grupo infNFeSupl (solo NFC-e).
func (b *DocumentBody) AttachVerification(qrCode, urlChave string) {
	if b == nil || b.NFe == nil || b.NFe.InfNFe.Ide.Mod != string(entity.ModelNFCe) {
		return
	}
	b.NFe.InfNFeSupl = &InfNFeSupl{QRCode: qrCode, URLChave: urlChave}
}

// XML serializa el árbol sin espacios entre etiquetas (la SEFAZ no los admite).
func (b *DocumentBody) XML() ([]byte, error) {
	if b == nil || b.NFe == nil {
		return nil, fmt.Errorf("nfe: documento vacío")
	}
	out, err := xml.Marshal(b.NFe)
	if err != nil {
		return nil, fmt.Errorf("nfe: serializar XML: %w", err)
	}
	return out, nil
}

// ParseDocument reconstruye el árbol desde el XML almacenado (firmado o no).
func ParseDocument(body []byte) (*NFe, error) {
	var doc NFe
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("nfe: leer XML: %w", err)
	}
	return &doc, nil
}

func buildProd(it entity.SaleItem, vProd, vDesc, vOutro decimal.Decimal) Prod {
	gtin := nonEmpty(pkgnfe.OnlyDigits(it.GTIN), pkgnfe.NoGTIN)
	unit := nonEmpty(strings.TrimSpace(it.Unit), "UN")
	p := Prod{
		CProd:    nonEmpty(it.Code, it.ProductID),
		CEAN:     gtin,
		XProd:    strings.TrimSpace(it.Name),
		NCM:      pkgnfe.OnlyDigits(it.NCM),
		CEST:     pkgnfe.OnlyDigits(it.CEST),
		CFOP:     pkgnfe.OnlyDigits(it.CFOP),
		UCom:     unit,
		QCom:     quantity(it.Quantity),
		VUnCom:   unitPrice(it.UnitPrice),
		VProd:    money(vProd),
		CEANTrib: gtin,
		UTrib:    unit,
		QTrib:    quantity(it.Quantity),
		VUnTrib:  unitPrice(it.UnitPrice),
		IndTot:   "1",
	}
	if vDesc.IsPositive() {
		p.VDesc = money(vDesc)
	}
	if vOutro.IsPositive() {
		p.VOutro = money(vOutro)
	}
	return p
}

// buildDest devuelve nil para el consumidor no identificado: nunca un grupo a medias.
func buildDest(taxID, name string, homolog bool) (*Dest, error) {
	digits := pkgnfe.OnlyDigits(taxID)
	if digits == "" {
		return nil, nil
	}
	if err := pkgnfe.ValidateRecipientTaxID(digits); err != nil {
		return nil, fmt.Errorf("%w: destinatario: %v", domain.ErrInvalidInput, err)
	}
	d := &Dest{IndIEDest: "9", XNome: strings.TrimSpace(name)}
	if len(digits) == 11 {
		d.CPF = digits
	} else {
		d.CNPJ = digits
	}
	if homolog {
		d.XNome = pkgnfe.HomologationRecipientName
	}
	return d, nil
}

func origin(it entity.SaleItem) string { return nonEmpty(it.Origin, "0") }

// csosn usa el CSOSN informado por el calculador si tiene 3 dígitos; si no, 102.
// simplesICMS elige el grupo ICMSSN según el CSOSN. Los códigos con crédito (101, 201)
// o con ST propia (202, 203, 900) necesitan campos que el motor no calcula.
func simplesICMS(orig, code string) (ICMS, error) {
	switch code {
	case "", pkgnfe.CSOSNNoCredit:
		return ICMS{ICMSSN102: &ICMSSN102{Orig: orig, CSOSN: pkgnfe.CSOSNNoCredit}}, nil
	case pkgnfe.CSOSNExemptRange, pkgnfe.CSOSNImmune, pkgnfe.CSOSNNotTaxed:
		return ICMS{ICMSSN102: &ICMSSN102{Orig: orig, CSOSN: code}}, nil
	case pkgnfe.CSOSNSTCharged:
		return ICMS{ICMSSN500: &ICMSSN500{Orig: orig, CSOSN: code}}, nil
	default:
		return ICMS{}, fmt.Errorf("%w: CSOSN %q no soportado", domain.ErrInvalidInput, code)
	}
}

// money: moneda con 2 decimales.
func money(d decimal.Decimal) string { return d.Round(2).StringFixed(2) }

// unitPrice: precio unitario con 4 decimales.
func unitPrice(d decimal.Decimal) string { return d.Round(4).StringFixed(4) }

// quantity: cantidad comercial con 4 decimales.
func quantity(d decimal.Decimal) string { return d.Round(4).StringFixed(4) }

// rate: alícuota porcentual con 4 decimales.
func rate(d decimal.Decimal) string { return d.Round(4).StringFixed(4) }

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}
