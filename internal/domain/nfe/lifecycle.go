package nfe

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// CancellationWindow es el plazo legal para cancelar una NF-e/NFC-e autorizada.
const CancellationWindow = 24 * time.Hour

const maxReasonLength = 255

// MinProductionReasonLength es el mínimo de xJust que exige la SEFAZ en el evento de cancelación.
// En homologación no se aplica.
const MinProductionReasonLength = 15

// Transition es una variante del ciclo de autorización:
//
//	pending -> authorized | rejected
//	authorized -> cancelled (una sola vez, dentro de CancellationWindow)
//
// Cualquier otra combinación falla con domain.ErrInvalidTransition.
type Transition interface {
	From() entity.DocumentStatus
	To() entity.DocumentStatus
	guard(doc *entity.FiscalDocument) error
	apply(doc *entity.FiscalDocument)
}

// Authorize registra el protocolo devuelto por la autoridad (o el simulado).
type Authorize struct {
	Protocol string
	At       time.Time
}

func (Authorize) From() entity.DocumentStatus { return entity.StatusPending }
func (Authorize) To() entity.DocumentStatus   { return entity.StatusAuthorized }

func (t Authorize) guard(_ *entity.FiscalDocument) error {
	if strings.TrimSpace(t.Protocol) == "" {
		return fmt.Errorf("%w: autorización sin protocolo", domain.ErrInvalidTransition)
	}
	if t.At.IsZero() {
		return fmt.Errorf("%w: autorización sin fecha", domain.ErrInvalidTransition)
	}
	return nil
}

func (t Authorize) apply(doc *entity.FiscalDocument) {
	at := t.At
	doc.Protocol = t.Protocol
	doc.AuthorizedAt = &at
	doc.RejectionCode, doc.RejectionReason = "", ""
}

// Reject registra el código y motivo de rechazo.
type Reject struct {
	Code   string
	Reason string
}

func (Reject) From() entity.DocumentStatus { return entity.StatusPending }
func (Reject) To() entity.DocumentStatus   { return entity.StatusRejected }

func (t Reject) guard(_ *entity.FiscalDocument) error {
	if strings.TrimSpace(t.Code) == "" {
		return fmt.Errorf("%w: rechazo sin código de motivo", domain.ErrInvalidTransition)
	}
	return nil
}

func (t Reject) apply(doc *entity.FiscalDocument) {
	doc.RejectionCode = t.Code
	doc.RejectionReason = t.Reason
}

// Cancel registra el evento de cancelación. At es el reloj del momento del pedido.
type Cancel struct {
	Reason   string
	Protocol string
	At       time.Time
}

func (Cancel) From() entity.DocumentStatus { return entity.StatusAuthorized }
func (Cancel) To() entity.DocumentStatus   { return entity.StatusCancelled }

func (t Cancel) guard(doc *entity.FiscalDocument) error {
	if err := CanCancel(doc, t.Reason, t.At); err != nil {
		return err
	}
	if strings.TrimSpace(t.Protocol) == "" {
		return fmt.Errorf("%w: cancelación sin protocolo", domain.ErrInvalidTransition)
	}
	return nil
}

func (t Cancel) apply(doc *entity.FiscalDocument) {
	at := t.At
	doc.CancellationReason = strings.TrimSpace(t.Reason)
	doc.CancellationProtocol = t.Protocol
	doc.CancelledAt = &at
}

// Apply valida el estado de origen y las guardas, y muta el documento.
// Si devuelve error el documento queda intacto.
func Apply(doc *entity.FiscalDocument, t Transition) error {
	if doc == nil || t == nil {
		return fmt.Errorf("%w: documento o transición nulos", domain.ErrInvalidTransition)
	}
	if doc.Status != t.From() {
		return fmt.Errorf("%w: %s -> %s no permitido", domain.ErrInvalidTransition, doc.Status, t.To())
	}
	if err := t.guard(doc); err != nil {
		return err
	}
	t.apply(doc)
	doc.Status = t.To()
	return nil
}

// CanCancel es la guarda de cancelación, usable antes de contactar a la autoridad.
// El plazo se mide desde AuthorizedAt; al cumplirse exactamente 24h aún se permite.
func CanCancel(doc *entity.FiscalDocument, reason string, now time.Time) error {
	if doc == nil {
		return fmt.Errorf("%w: documento nulo", domain.ErrInvalidTransition)
	}
	if doc.Status != entity.StatusAuthorized {
		return fmt.Errorf("%w: solo se cancela un documento autorizado (estado actual: %s)", domain.ErrInvalidTransition, doc.Status)
	}
	if doc.AuthorizedAt == nil {
		return fmt.Errorf("%w: documento autorizado sin fecha de autorización", domain.ErrInvalidTransition)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: el motivo de cancelación es obligatorio", domain.ErrInvalidInput)
	}
	if doc.Environment == entity.EnvironmentProduction && len([]rune(reason)) < MinProductionReasonLength {
		return fmt.Errorf("%w: el motivo de cancelación debe tener al menos %d caracteres", domain.ErrInvalidInput, MinProductionReasonLength)
	}
	if len([]rune(reason)) > maxReasonLength {
		return fmt.Errorf("%w: el motivo de cancelación supera %d caracteres", domain.ErrInvalidInput, maxReasonLength)
	}
	if elapsed := now.Sub(*doc.AuthorizedAt); elapsed > CancellationWindow {
		return fmt.Errorf("%w: autorizado hace %s (máximo %s)", domain.ErrCancellationWindowExpired, elapsed.Truncate(time.Second), CancellationWindow)
	}
	return nil
}
