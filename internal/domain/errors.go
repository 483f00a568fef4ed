package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrLoginTaken   = errors.New("el login ya está registrado")
)

// Errores del motor de emisión fiscal. Solo ErrSequenceUnavailable y
// ErrAuthorizationTimeout son reintentables (ver IsRetryable).
var (
	ErrConfigurationIncomplete   = errors.New("configuración del emisor incompleta")
	ErrSequenceUnavailable       = errors.New("secuencia de numeración no disponible")
	ErrDuplicateActiveDocument   = errors.New("la venta ya tiene un documento fiscal activo para el modelo")
	ErrInvalidTransition         = errors.New("transición de estado inválida")
	ErrCancellationWindowExpired = errors.New("plazo de cancelación vencido")
	ErrAuthorizationTimeout      = errors.New("tiempo de autorización agotado; el documento queda pendiente")
	ErrAuthorizationRejected     = errors.New("documento rechazado por la autoridad fiscal")
)

// RejectionError transporta el código (cStat) y el motivo del rechazo de la autoridad.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: [%s] %s", ErrAuthorizationRejected.Error(), e.Code, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrAuthorizationRejected }

// IsRetryable indica si el llamador puede repetir la operación sin corregir nada.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSequenceUnavailable) || errors.Is(err, ErrAuthorizationTimeout)
}

// Code devuelve el código estable del error para respuestas y métricas.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationIncomplete):
		return "CONFIGURATION_INCOMPLETE"
	case errors.Is(err, ErrSequenceUnavailable):
		return "SEQUENCE_UNAVAILABLE"
	case errors.Is(err, ErrDuplicateActiveDocument):
		return "DUPLICATE_ACTIVE_DOCUMENT"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrCancellationWindowExpired):
		return "CANCELLATION_WINDOW_EXPIRED"
	case errors.Is(err, ErrAuthorizationTimeout):
		return "AUTHORIZATION_TIMEOUT"
	case errors.Is(err, ErrAuthorizationRejected):
		return "AUTHORIZATION_REJECTED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return "VALIDATION"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrLoginTaken):
		return "LOGIN_EXISTS"
	default:
		return "INTERNAL"
	}
}
