package nfe

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// AuthorizationRequest es el documento listo para la autoridad (firmado en producción).
type AuthorizationRequest struct {
	AccessKey   string
	Model       entity.DocumentModel
	Environment entity.Environment
	UF          string
	Body        []byte
}

// AuthorizationResult es la respuesta de la autoridad (protNFe).
type AuthorizationResult struct {
	Authorized bool
	Status     string // cStat
	Reason     string // xMotivo
	Protocol   string // nProt
	ReceivedAt time.Time
}

// CancellationRequest es el evento de cancelación (tpEvento 110111).
type CancellationRequest struct {
	AccessKey   string
	Protocol    string // nProt de la autorización
	Reason      string // xJust
	Environment entity.Environment
	UF          string
	RequestedAt time.Time
}

// CancellationResult es la respuesta al evento de cancelación.
type CancellationResult struct {
	Accepted     bool
	Status       string
	Reason       string
	Protocol     string
	RegisteredAt time.Time
}

// Authorizer es el punto único de integración con la autoridad fiscal.
// El transporte real (web services de la SEFAZ) queda fuera del motor.
type Authorizer interface {
	Authorize(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResult, error)
	Cancel(ctx context.Context, req *CancellationRequest) (*CancellationResult, error)
}

// ── Simulación de homologación ────────────────────────────────────────────────

// Clock es la fuente de tiempo inyectada.
type Clock interface {
	Now() time.Time
}

// HomologationAuthorizer autoriza sin red: protocolo sintético derivado del reloj.
type HomologationAuthorizer struct {
	clock Clock
}

// NewHomologationAuthorizer crea el simulador.
func NewHomologationAuthorizer(clock Clock) *HomologationAuthorizer {
	return &HomologationAuthorizer{clock: clock}
}

var _ Authorizer = (*HomologationAuthorizer)(nil)

// Authorize siempre devuelve cStat 100 con un protocolo de 15 dígitos.
func (h *HomologationAuthorizer) Authorize(_ context.Context, req *AuthorizationRequest) (*AuthorizationResult, error) {
	now := h.clock.Now()
	return &AuthorizationResult{
		Authorized: true,
		Status:     pkgnfe.StatAuthorized,
		Reason:     "Autorizado o uso da NF-e (simulado em homologação)",
		Protocol:   SyntheticProtocol(req.UF, now),
		ReceivedAt: now,
	}, nil
}

// Cancel siempre registra el evento con cStat 135.
func (h *HomologationAuthorizer) Cancel(_ context.Context, req *CancellationRequest) (*CancellationResult, error) {
	now := h.clock.Now()
	return &CancellationResult{
		Accepted:     true,
		Status:       pkgnfe.StatCancelEventApplied,
		Reason:       "Evento registrado e vinculado a NF-e (simulado em homologação)",
		Protocol:     SyntheticProtocol(req.UF, now),
		RegisteredAt: now,
	}, nil
}

// SyntheticProtocol arma un nProt con el formato oficial: 1 + cUF + AA + 10 dígitos del reloj.
func SyntheticProtocol(uf string, now time.Time) string {
	code, ok := pkgnfe.UFCode(uf)
	if !ok {
		code = uf
	}
	if len(code) != 2 {
		code = "00"
	}
	return fmt.Sprintf("1%s%s%010d", code, now.Format("06"), now.UnixMilli()%10_000_000_000)
}
