package nfe

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// qrCodeVersion es la versión del QR Code de la NFC-e (emisión en línea).
const qrCodeVersion = "2"

// Portales de la SEFAZ-SP, usados cuando la configuración no informa otros.
const (
	DefaultQRCodeURLProduction     = "https://www.nfce.fazenda.sp.gov.br/qrcode"
	DefaultQRCodeURLHomologation   = "https://www.homologacao.nfce.fazenda.sp.gov.br/qrcode"
	DefaultConsultaURLProduction   = "https://www.nfce.fazenda.sp.gov.br/consulta"
	DefaultConsultaURLHomologation = "https://www.homologacao.nfce.fazenda.sp.gov.br/consulta"
)

// VerificationURLs son las URLs de consulta por ambiente.
type VerificationURLs struct {
	QRCodeProduction     string
	QRCodeHomologation   string
	ConsultaProduction   string
	ConsultaHomologation string
}

// Verification es el resultado para un documento: contenido del QR y URL de consulta por clave.
type Verification struct {
	Payload  string
	URLChave string
}

// VerificationCodeGenerator construye el contenido del QR Code de consulta.
type VerificationCodeGenerator struct {
	urls VerificationURLs
}

// NewVerificationCodeGenerator completa las URLs vacías con las de SP.
func NewVerificationCodeGenerator(urls VerificationURLs) *VerificationCodeGenerator {
	if urls.QRCodeProduction == "" {
		urls.QRCodeProduction = DefaultQRCodeURLProduction
	}
	if urls.QRCodeHomologation == "" {
		urls.QRCodeHomologation = DefaultQRCodeURLHomologation
	}
	if urls.ConsultaProduction == "" {
		urls.ConsultaProduction = DefaultConsultaURLProduction
	}
	if urls.ConsultaHomologation == "" {
		urls.ConsultaHomologation = DefaultConsultaURLHomologation
	}
	return &VerificationCodeGenerator{urls: urls}
}

// ForIssuer toma ambiente y CSC del mismo perfil usado para generar la clave,
// y rechaza claves de otro emisor o de otra UF.
func (g *VerificationCodeGenerator) ForIssuer(issuer *entity.IssuerProfile, accessKey string) (*Verification, error) {
	if issuer == nil {
		return nil, fmt.Errorf("%w: no hay emisor activo", domain.ErrConfigurationIncomplete)
	}
	key, err := domainnfe.ParseAccessKey(accessKey)
	if err != nil {
		return nil, err
	}
	if key.CNPJ != pkgnfe.OnlyDigits(issuer.CNPJ) {
		return nil, fmt.Errorf("%w: la clave de acceso pertenece a otro CNPJ", domain.ErrInvalidInput)
	}
	if uf, _ := pkgnfe.UFCode(issuer.Address.UF); uf != key.UF {
		return nil, fmt.Errorf("%w: la clave de acceso pertenece a otra UF", domain.ErrInvalidInput)
	}

	qrURL, consultaURL := g.urls.QRCodeHomologation, g.urls.ConsultaHomologation
	if issuer.Environment == entity.EnvironmentProduction {
		qrURL, consultaURL = g.urls.QRCodeProduction, g.urls.ConsultaProduction
	}

	if key.Model == entity.ModelNFe {
		return &Verification{
			Payload:  fmt.Sprintf("%s?chNFe=%s&tpAmb=%s", consultaURL, accessKey, issuer.Environment.Code()),
			URLChave: consultaURL,
		}, nil
	}

	settings, _ := issuer.Settings(key.Model)
	payload, err := BuildVerificationPayload(qrURL, accessKey, issuer.Environment, settings.CSCID, settings.CSCToken)
	if err != nil {
		return nil, err
	}
	return &Verification{Payload: payload, URLChave: consultaURL}, nil
}

// BuildVerificationPayload arma el QR Code v2 en línea:
//
//	<url>?p=<chave>|2|<tpAmb>|<cIdToken>|<cHashQRCode>
//
// cHashQRCode = SHA-1 en hexadecimal mayúsculo de "<chave>|2|<tpAmb>|<cIdToken>" + CSC.
func BuildVerificationPayload(baseURL, accessKey string, env entity.Environment, credentialID, credentialSecret string) (string, error) {
	if err := domainnfe.ValidateAccessKey(accessKey); err != nil {
		return "", err
	}
	if strings.TrimSpace(baseURL) == "" {
		return "", fmt.Errorf("%w: URL del QR Code no configurada", domain.ErrConfigurationIncomplete)
	}
	idToken := strings.TrimLeft(strings.TrimSpace(credentialID), "0")
	secret := strings.TrimSpace(credentialSecret)
	if idToken == "" || secret == "" {
		return "", fmt.Errorf("%w: CSC de la NFC-e no configurado", domain.ErrConfigurationIncomplete)
	}

	params := accessKey + "|" + qrCodeVersion + "|" + env.Code() + "|" + idToken
	sum := sha1.Sum([]byte(params + secret))
	return baseURL + "?p=" + params + "|" + strings.ToUpper(hex.EncodeToString(sum[:])), nil
}
