package signer_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe/signer"
)

const unsignedNFe = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">` +
	`<infNFe versao="4.00" Id="NFe35241011222333000181650010000000421012345672">` +
	`<ide><cUF>35</cUF><nNF>42</nNF></ide><total><ICMSTot><vNF>100.00</vNF></ICMSTot></total>` +
	`</infNFe>` +
	`<infNFeSupl><qrCode>https://qr?p=1</qrCode><urlChave>https://consulta</urlChave></infNFeSupl>` +
	`</NFe>`

func testCertificate(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "MERCADO BOM PRECO LTDA:11222333000181"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestSign_EstructuraYFirmaVerificable(t *testing.T) {
	cert := testCertificate(t)
	svc := signer.NewDigitalSignatureService()

	signed, err := svc.Sign([]byte(unsignedNFe), cert)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()
	children := root.ChildElements()
	require.Len(t, children, 3)
	assert.Equal(t, "infNFe", children[0].Tag)
	assert.Equal(t, "infNFeSupl", children[1].Tag)
	assert.Equal(t, "Signature", children[2].Tag, "la firma va después de infNFeSupl")

	ref := root.FindElement("./Signature/SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#NFe35241011222333000181650010000000421012345672", ref.SelectAttrValue("URI", ""))

	// Verifica SignatureValue contra SignedInfo canonicalizado.
	signedInfo := root.FindElement("./Signature/SignedInfo")
	require.NotNil(t, signedInfo)
	tmp := etree.NewDocument()
	tmp.SetRoot(signedInfo.Copy())
	raw, err := tmp.WriteToBytes()
	require.NoError(t, err)
	canonical, err := signer.Canonicalize(raw)
	require.NoError(t, err)

	sigB64 := root.FindElement("./Signature/SignatureValue").Text()
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)
	hash := sha1.Sum(canonical)
	pub := cert.PrivateKey.(*rsa.PrivateKey).Public().(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA1, hash[:], sig))

	certB64 := root.FindElement("./Signature/KeyInfo/X509Data/X509Certificate").Text()
	assert.Equal(t, base64.StdEncoding.EncodeToString(cert.Certificate[0]), certB64)
}

func TestSign_Errores(t *testing.T) {
	cert := testCertificate(t)
	svc := signer.NewDigitalSignatureService()

	_, err := svc.Sign(nil, cert)
	assert.Error(t, err)

	_, err = svc.Sign([]byte(`<Invoice><infNFe Id="x"/></Invoice>`), cert)
	assert.Error(t, err, "la raíz debe ser NFe")

	_, err = svc.Sign([]byte(unsignedNFe), tls.Certificate{})
	assert.Error(t, err, "sin certificado")

	signed, err := svc.Sign([]byte(unsignedNFe), cert)
	require.NoError(t, err)
	_, err = svc.Sign(signed, cert)
	assert.Error(t, err, "no se firma dos veces")
}

func TestDescribe_CNPJYVigencia(t *testing.T) {
	cert := testCertificate(t)

	info, err := signer.Describe(cert)
	require.NoError(t, err)
	assert.Equal(t, "11222333000181", info.CNPJ)
	assert.True(t, info.ValidAt(time.Now()))
	assert.False(t, info.ValidAt(time.Now().Add(2*time.Hour)), "vencido")

	_, err = signer.Describe(tls.Certificate{})
	assert.Error(t, err)
}

func TestDecodeP12_ContenidoInvalido(t *testing.T) {
	_, err := signer.DecodeP12([]byte("no es pkcs12"), "123456")
	assert.Error(t, err)

	_, err = signer.LoadFromP12(t.TempDir()+"/inexistente.p12", "")
	assert.Error(t, err)
}
