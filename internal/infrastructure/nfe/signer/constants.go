// Constantes de la firma XMLDSig de la NF-e (Manual de Orientação do Contribuinte, anexo de assinatura).

package signer

// Namespaces y algoritmos XMLDSig exigidos por la SEFAZ.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceNFe       = "http://www.portalfiscal.inf.br/nfe"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Elemento firmado: infNFe, referenciado por su atributo Id ("NFe" + clave).
const signedElement = "infNFe"
