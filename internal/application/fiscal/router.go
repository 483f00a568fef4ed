package fiscal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/metrics"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// DefaultAuthorizationTimeout acota la llamada a la autoridad cuando no se configura otro valor.
const DefaultAuthorizationTimeout = 30 * time.Second

// RouterDeps agrupa los colaboradores del enrutador.
type RouterDeps struct {
	// Homologation simula la autoridad; nil usa infranfe.HomologationAuthorizer con Clock.
	Homologation infranfe.Authorizer
	// Production es el transporte real a la SEFAZ; nil deja el ambiente de producción sin configurar.
	Production  infranfe.Authorizer
	Signer      pkgnfe.Signer
	Certificate *tls.Certificate
	Timeout     time.Duration
	Clock       Clock
	Metrics     *metrics.Fiscal
	Logger      zerolog.Logger
}

// Outcome es la respuesta de la autoridad ya traducida al ciclo de vida.
type Outcome struct {
	Status   entity.DocumentStatus // authorized | rejected | cancelled
	Protocol string
	Code     string // cStat
	Reason   string // xMotivo
	At       time.Time
}

// Transition devuelve la transición del ciclo de vida que corresponde al resultado de autorización.
func (o *Outcome) Transition() domainnfe.Transition {
	if o.Status == entity.StatusAuthorized {
		return domainnfe.Authorize{Protocol: o.Protocol, At: o.At}
	}
	return domainnfe.Reject{Code: o.Code, Reason: o.Reason}
}

// EnvironmentRouter decide por ambiente: homologación se simula sin red,
// producción firma el documento y lo entrega al autorizador real con un tiempo máximo.
type EnvironmentRouter struct {
	homologation infranfe.Authorizer
	production   infranfe.Authorizer
	signer       pkgnfe.Signer
	cert         *tls.Certificate
	timeout      time.Duration
	clock        Clock
	metrics      *metrics.Fiscal
	log          zerolog.Logger
}

// NewEnvironmentRouter construye el enrutador.
func NewEnvironmentRouter(deps RouterDeps) *EnvironmentRouter {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Homologation == nil {
		deps.Homologation = infranfe.NewHomologationAuthorizer(deps.Clock)
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultAuthorizationTimeout
	}
	return &EnvironmentRouter{
		homologation: deps.Homologation,
		production:   deps.Production,
		signer:       deps.Signer,
		cert:         deps.Certificate,
		timeout:      deps.Timeout,
		clock:        deps.Clock,
		metrics:      deps.Metrics,
		log:          deps.Logger,
	}
}

// CheckReady verifica, antes de consumir un número, que el ambiente del emisor puede autorizar.
func (r *EnvironmentRouter) CheckReady(env entity.Environment) error {
	switch env {
	case entity.EnvironmentHomologation:
		return nil
	case entity.EnvironmentProduction:
		if r.production == nil {
			return fmt.Errorf("%w: autorizador de producción no configurado", domain.ErrConfigurationIncomplete)
		}
		if r.signer == nil {
			return fmt.Errorf("%w: firmador no configurado", domain.ErrConfigurationIncomplete)
		}
		if r.cert == nil || len(r.cert.Certificate) == 0 || r.cert.PrivateKey == nil {
			return fmt.Errorf("%w: certificado A1 no cargado (FISCAL_CERT_PATH / FISCAL_CERT_PASSWORD)", domain.ErrConfigurationIncomplete)
		}
		return nil
	default:
		return fmt.Errorf("%w: ambiente %q desconocido (usar production|homologation)", domain.ErrConfigurationIncomplete, env)
	}
}

// Prepare devuelve el cuerpo que se persiste y se envía: firmado en producción, tal cual en homologación.
func (r *EnvironmentRouter) Prepare(env entity.Environment, body []byte) ([]byte, error) {
	if err := r.CheckReady(env); err != nil {
		return nil, err
	}
	if env != entity.EnvironmentProduction {
		return body, nil
	}
	signed, err := r.signer.Sign(body, *r.cert)
	if err != nil {
		return nil, fmt.Errorf("firmar documento: %w", err)
	}
	return signed, nil
}

// Authorize envía el documento pendiente. En producción, si la autoridad no responde dentro
// del plazo devuelve domain.ErrAuthorizationTimeout y el documento debe quedar pendiente.
func (r *EnvironmentRouter) Authorize(ctx context.Context, doc *entity.FiscalDocument, issuer *entity.IssuerProfile) (*Outcome, error) {
	authorizer, err := r.authorizerFor(doc.Environment)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := authorizer.Authorize(callCtx, &infranfe.AuthorizationRequest{
		AccessKey:   doc.AccessKey,
		Model:       doc.Model,
		Environment: doc.Environment,
		UF:          issuer.Address.UF,
		Body:        doc.Body,
	})
	r.metrics.ObserveAuthorization(string(doc.Environment), time.Since(start))
	if err != nil {
		return nil, r.transportError("autorización", doc.AccessKey, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: la autoridad no devolvió resultado", domain.ErrAuthorizationTimeout)
	}

	at := res.ReceivedAt
	if at.IsZero() {
		at = r.clock.Now()
	}
	if res.Authorized {
		return &Outcome{Status: entity.StatusAuthorized, Protocol: res.Protocol, Code: res.Status, Reason: res.Reason, At: at}, nil
	}
	code := strings.TrimSpace(res.Status)
	if code == "" {
		code = "999"
	}
	return &Outcome{Status: entity.StatusRejected, Code: code, Reason: res.Reason, At: at}, nil
}

// Cancel registra el evento de cancelación ante la autoridad (simulado en homologación).
// Un evento no aceptado devuelve *domain.RejectionError y el documento sigue autorizado.
func (r *EnvironmentRouter) Cancel(ctx context.Context, doc *entity.FiscalDocument, issuer *entity.IssuerProfile, reason string, requestedAt time.Time) (*Outcome, error) {
	authorizer, err := r.authorizerFor(doc.Environment)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := authorizer.Cancel(callCtx, &infranfe.CancellationRequest{
		AccessKey:   doc.AccessKey,
		Protocol:    doc.Protocol,
		Reason:      reason,
		Environment: doc.Environment,
		UF:          issuer.Address.UF,
		RequestedAt: requestedAt,
	})
	if err != nil {
		return nil, r.transportError("cancelación", doc.AccessKey, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: la autoridad no devolvió resultado", domain.ErrAuthorizationTimeout)
	}
	if !res.Accepted {
		return nil, &domain.RejectionError{Code: res.Status, Reason: res.Reason}
	}
	at := res.RegisteredAt
	if at.IsZero() {
		at = r.clock.Now()
	}
	return &Outcome{Status: entity.StatusCancelled, Protocol: res.Protocol, Code: res.Status, Reason: res.Reason, At: at}, nil
}

func (r *EnvironmentRouter) authorizerFor(env entity.Environment) (infranfe.Authorizer, error) {
	if err := r.CheckReady(env); err != nil {
		return nil, err
	}
	if env == entity.EnvironmentProduction {
		return r.production, nil
	}
	return r.homologation, nil
}

// transportError traduce cualquier falta de respuesta en un error reintentable:
// sin respuesta no se sabe si la autoridad registró el documento.
func (r *EnvironmentRouter) transportError(op, accessKey string, err error) error {
	r.log.Warn().Err(err).Str("access_key", accessKey).Str("op", op).Msg("sin respuesta de la autoridad fiscal")
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s superó %s", domain.ErrAuthorizationTimeout, op, r.timeout)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrAuthorizationTimeout, op, err)
}
