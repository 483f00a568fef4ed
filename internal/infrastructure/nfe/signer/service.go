// Firma XMLDSig envelopada de la NF-e: referencia "#NFe<clave>", C14N, RSA-SHA1.
// La Signature se agrega como último hijo de <NFe>, después de infNFe/infNFeSupl.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// DigitalSignatureService implementa nfe.Signer.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

var _ nfe.Signer = (*DigitalSignatureService)(nil)

// Sign firma infNFe e inyecta <Signature> en el XML.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("nfe: XML vacío")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("nfe: certificado sin contenido")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("nfe: el certificado debe incluir llave privada RSA")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("nfe: parsear certificado: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("nfe: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil || localName(root.Tag) != "NFe" {
		return nil, fmt.Errorf("nfe: la raíz del documento debe ser NFe")
	}
	inf := root.FindElement("./" + signedElement)
	if inf == nil {
		return nil, fmt.Errorf("nfe: no se encontró %s", signedElement)
	}
	id := inf.SelectAttrValue("Id", "")
	if id == "" {
		return nil, fmt.Errorf("nfe: %s sin atributo Id", signedElement)
	}
	if root.FindElement("./Signature") != nil {
		return nil, fmt.Errorf("nfe: el documento ya está firmado")
	}

	// 1) Digest de infNFe canonicalizado (hereda el namespace de la NF-e)
	canonicalInf, err := canonicalElement(inf, NamespaceNFe)
	if err != nil {
		return nil, err
	}
	digest := sha1.Sum(canonicalInf)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canonicalizado y firmado con RSA-SHA1
	signedInfoXML := buildSignedInfo("#"+id, digestB64)
	canonicalSignedInfo, err := Canonicalize([]byte(signedInfoXML))
	if err != nil {
		return nil, err
	}
	signHash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("nfe: firmar SignedInfo: %w", err)
	}

	// 3) Signature completa con KeyInfo/X509Certificate
	signatureXML := buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("nfe: parsear Signature: %w", err)
	}
	root.AddChild(sigDoc.Root())

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("nfe: serializar XML firmado: %w", err)
	}
	return out.Bytes(), nil
}

// Canonicalize aplica C14N inclusivo.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("nfe: canonicalizar: %w", err)
	}
	return out, nil
}

// canonicalElement serializa el elemento aislado declarando el namespace heredado.
func canonicalElement(el *etree.Element, inheritedNS string) ([]byte, error) {
	copyEl := el.Copy()
	if copyEl.SelectAttr("xmlns") == nil {
		copyEl.CreateAttr("xmlns", inheritedNS)
	}
	tmp := etree.NewDocument()
	tmp.SetRoot(copyEl)
	raw, err := tmp.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("nfe: serializar %s: %w", el.Tag, err)
	}
	return Canonicalize(raw)
}

func buildSignedInfo(uri, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="` + uri + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func localName(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
