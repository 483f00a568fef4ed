package nfe

import "crypto/tls"

// Signer firma el XML de la NF-e (XMLDSig envelopado sobre infNFe).
type Signer interface {
	// Sign recibe el XML sin firma y el certificado A1 con llave privada, y devuelve
	// el XML con el nodo Signature como hermano siguiente de infNFe.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
