// Package pdf implementa el DANFE (Documento Auxiliar da Nota Fiscal Eletrônica)
// para NF-e y NFC-e.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + CNPJ  │  DANFE NFC-e / NF-e + N° / Serie │
//	│  EMITENTE: Dirección / IE                                    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Código | Descripción | Cant | UN | V.Unit | V.Total   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Productos / Descuento / Otros / VALOR A PAGAR       │
//	│  CONSUMIDOR: CPF/CNPJ o "CONSUMIDOR NÃO IDENTIFICADO"         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  CONSULTA: Clave de acceso + Protocolo + QR Code              │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorRed     = &props.Color{Red: 180, Green: 20, Blue: 20}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// DanfeGenerator implementa fiscal.DanfeGenerator usando Maroto v2.
type DanfeGenerator struct{}

// NewDanfeGenerator construye el generador.
func NewDanfeGenerator() *DanfeGenerator { return &DanfeGenerator{} }

var _ fiscal.DanfeGenerator = (*DanfeGenerator)(nil)

// GenerateDanfe genera el PDF y devuelve sus bytes.
func (g *DanfeGenerator) GenerateDanfe(_ context.Context, data *fiscal.DanfeData) ([]byte, error) {
	if data == nil || data.Document == nil || data.NFe == nil {
		return nil, fmt.Errorf("pdf: datos del DANFE incompletos")
	}
	doc, inf := data.Document, &data.NFe.InfNFe

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("DANFE "+modelLabel(doc.Model), true).
		WithAuthor(inf.Emit.XNome, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc, inf))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(issuerRow(inf))
	if doc.Environment == entity.EnvironmentHomologation {
		m.AddRows(bannerRow("EMITIDA EM AMBIENTE DE HOMOLOGAÇÃO - SEM VALOR FISCAL"))
	}
	if doc.Status == entity.StatusCancelled {
		m.AddRows(bannerRow("DOCUMENTO CANCELADO"))
	}
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range itemRows(inf.Det) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inf))
	m.AddRows(recipientRow(inf.Dest))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range consultaRows(doc, data.NFe) {
		m.AddRows(r)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar DANFE: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: razón social + CNPJ (izq) y modelo, número y serie (der).
func headerRow(doc *entity.FiscalDocument, inf *infranfe.InfNFe) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(inf.Emit.XNome, props.Text{
				Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+formatCNPJ(inf.Emit.CNPJ), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("DANFE "+modelLabel(doc.Model), props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("N° %09d  Série %03d", doc.Number, doc.Series), props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 7,
			}),
			text.New("Emissão: "+doc.IssuedAt.Format("02/01/2006 15:04:05"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// issuerRow: domicilio e inscripción estadual del emitente.
func issuerRow(inf *infranfe.InfNFe) core.Row {
	e := inf.Emit.EnderEmit
	return row.New(12).Add(
		col.New(12).Add(
			text.New("EMITENTE", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("%s, %s - %s - %s/%s   |   IE: %s",
				e.XLgr, e.Nro, e.XBairro, e.XMun, e.UF, nonEmpty(inf.Emit.IE, "—"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

func bannerRow(msg string) core.Row {
	return row.New(8).Add(col.New(12).Add(
		text.New(msg, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Center, Color: colorRed, Top: 2,
		}),
	))
}

// tableHeaderRow: cabecera de la tabla de ítems.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Código", 2, align.Left),
		h("Descrição", 4, align.Left),
		h("Qtde", 1, align.Right),
		h("UN", 1, align.Center),
		h("V. Unit.", 2, align.Right),
		h("V. Total", 2, align.Right),
	)
}

// itemRows: una fila por det.
func itemRows(dets []infranfe.Det) []core.Row {
	result := make([]core.Row, 0, len(dets))
	cell := func(s string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(s, props.Text{Size: 8, Align: a, Top: 1, Left: 1, Right: 1}))
	}
	for _, d := range dets {
		p := d.Prod
		result = append(result, row.New(7).Add(
			cell(p.CProd, 2, align.Left),
			cell(p.XProd, 4, align.Left),
			cell(formatDecimal(p.QCom), 1, align.Right),
			cell(p.UCom, 1, align.Center),
			cell(formatDecimal(p.VUnCom), 2, align.Right),
			cell(formatDecimal(p.VProd), 2, align.Right),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(inf *infranfe.InfNFe) core.Row {
	tot := inf.Total.ICMSTot
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}

	payment := "—"
	if len(inf.Pag.DetPag) > 0 {
		payment = paymentLabel(inf.Pag.DetPag[0].TPag)
	}

	return row.New(30).Add(
		col.New(4).Add(
			text.New(fmt.Sprintf("Qtde. total de itens: %d", len(inf.Det)), props.Text{Size: 8, Top: 1, Color: colorGray}),
			text.New("Forma de pagamento: "+payment, props.Text{Size: 8, Top: 6, Color: colorGray}),
		),
		col.New(4).Add(
			label("Valor total R$"),
			label("Desconto R$"),
			label("Outros R$"),
			text.New("VALOR A PAGAR R$", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2,
			}),
		),
		col.New(4).Add(
			value(formatDecimal(tot.VProd)),
			value(formatDecimal(tot.VDesc)),
			value(formatDecimal(tot.VOutro)),
			text.New(formatDecimal(tot.VNF), props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1,
			}),
		),
	)
}

// recipientRow: consumidor identificado o anónimo.
func recipientRow(dest *infranfe.Dest) core.Row {
	msg := "CONSUMIDOR NÃO IDENTIFICADO"
	if dest != nil {
		switch {
		case dest.CNPJ != "":
			msg = "CONSUMIDOR CNPJ: " + formatCNPJ(dest.CNPJ)
		case dest.CPF != "":
			msg = "CONSUMIDOR CPF: " + formatCPF(dest.CPF)
		}
		if dest.XNome != "" {
			msg += " - " + dest.XNome
		}
	}
	return row.New(8).Add(col.New(12).Add(
		text.New(msg, props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Center, Top: 2}),
	))
}

// consultaRows: clave de acceso agrupada, protocolo y QR Code.
func consultaRows(doc *entity.FiscalDocument, tree *infranfe.NFe) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("CONSULTE PELA CHAVE DE ACESSO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(6).Add(col.New(12).Add(
			text.New(groupKey(doc.AccessKey), props.Text{Size: 9, Top: 1, Align: align.Center}),
		)),
	}

	protocol := "Protocolo de autorização: " + nonEmpty(doc.Protocol, "—")
	if doc.AuthorizedAt != nil {
		protocol += "  " + doc.AuthorizedAt.Format("02/01/2006 15:04:05")
	}
	rows = append(rows, row.New(6).Add(col.New(12).Add(
		text.New(protocol, props.Text{Size: 8, Top: 1, Color: colorGray, Align: align.Center}),
	)))

	qr := doc.VerificationPayload
	if qr == "" && tree.InfNFeSupl != nil {
		qr = tree.InfNFeSupl.QRCode
	}
	if qr != "" {
		urlChave := ""
		if tree.InfNFeSupl != nil {
			urlChave = tree.InfNFeSupl.URLChave
		}
		rows = append(rows, row.New(50).Add(
			col.New(4).Add(code.NewQr(qr, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Consulte pelo QR Code ou pela chave de acesso em:", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New(nonEmpty(urlChave, "—"), props.Text{
					Style: fontstyle.Bold, Size: 8, Top: 10, Left: 3, Color: colorPrimary,
				}),
			),
		))
	}

	if inf := tree.InfNFe.InfAdic; inf != nil && inf.InfCpl != "" {
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New(inf.InfCpl, props.Text{Size: 6.5, Color: colorGray, Top: 2}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func modelLabel(m entity.DocumentModel) string {
	if m == entity.ModelNFCe {
		return "NFC-e"
	}
	return "NF-e"
}

func paymentLabel(code string) string {
	switch code {
	case pkgnfe.PaymentCash:
		return "Dinheiro"
	case pkgnfe.PaymentCheck:
		return "Cheque"
	case pkgnfe.PaymentCreditCard:
		return "Cartão de Crédito"
	case pkgnfe.PaymentDebitCard:
		return "Cartão de Débito"
	case pkgnfe.PaymentPix:
		return "PIX"
	default:
		return "Outros"
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatDecimal pasa "1234.50" al formato brasileño "1.234,50".
func formatDecimal(s string) string {
	if s == "" {
		return "0,00"
	}
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	out := groupThousands(intPart)
	if frac != "" {
		out += "," + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// groupThousands inserta puntos de miles en un string numérico sin decimales.
// Ej: "25000" → "25.000", "1000000" → "1.000.000"
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// groupKey separa la clave de acceso en bloques de 4 dígitos.
func groupKey(key string) string {
	var parts []string
	for len(key) > 4 {
		parts = append(parts, key[:4])
		key = key[4:]
	}
	if key != "" {
		parts = append(parts, key)
	}
	return strings.Join(parts, " ")
}

func formatCNPJ(s string) string {
	if len(s) != 14 {
		return s
	}
	return s[:2] + "." + s[2:5] + "." + s[5:8] + "/" + s[8:12] + "-" + s[12:]
}

func formatCPF(s string) string {
	if len(s) != 11 {
		return s
	}
	return s[:3] + "." + s[3:6] + "." + s[6:9] + "-" + s[9:]
}
