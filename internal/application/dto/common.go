package dto

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorWithDocument acompaña el error cuando el documento igual quedó registrado
// (pendiente por timeout o rechazado por la autoridad).
type ErrorWithDocument struct {
	ErrorResponse
	Document *FiscalDocumentResponse `json:"document"`
}
