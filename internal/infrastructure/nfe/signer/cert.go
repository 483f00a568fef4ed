// Carga del certificado A1 (PKCS#12) del emisor.

package signer

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	return DecodeP12(data, password)
}

// DecodeP12 decodifica el contenido PKCS#12 ya leído.
func DecodeP12(data []byte, password string) (tls.Certificate, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devuelve solo el certificado hoja; la SEFAZ no exige la cadena en KeyInfo.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// CertificateInfo resume el certificado para diagnóstico.
type CertificateInfo struct {
	Subject   string
	CNPJ      string // extraído del CN "RAZAO SOCIAL:CNPJ" (ICP-Brasil); vacío si no aparece
	NotBefore time.Time
	NotAfter  time.Time
}

// Describe devuelve los datos del certificado hoja.
func Describe(cert tls.Certificate) (*CertificateInfo, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return nil, fmt.Errorf("certificado vacío")
		}
		var err error
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parsear certificado: %w", err)
		}
	}
	info := &CertificateInfo{
		Subject:   leaf.Subject.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
	}
	if _, tail, ok := strings.Cut(leaf.Subject.CommonName, ":"); ok {
		if digits := nfe.OnlyDigits(tail); len(digits) == 14 {
			info.CNPJ = digits
		}
	}
	return info, nil
}

// ValidAt indica si el certificado está vigente en t.
func (i *CertificateInfo) ValidAt(t time.Time) bool {
	return !t.Before(i.NotBefore) && !t.After(i.NotAfter)
}
