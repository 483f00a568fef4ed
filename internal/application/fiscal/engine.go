package fiscal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/metrics"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// Código cNF fijo del armado de prueba previo a la numeración.
const preflightCode = "00000000"

// EngineDeps agrupa los colaboradores inyectados del motor.
type EngineDeps struct {
	Issuers        repository.IssuerRepository
	Sales          repository.SaleRepository
	Documents      repository.FiscalDocumentRepository
	Municipalities repository.MunicipalityRepository // opcional si el emisor ya trae cMun
	Taxes          TaxCalculator
	Allocator      *SequenceAllocator
	Keys           *domainnfe.AccessKeyGenerator
	Assembler      *infranfe.Assembler
	Verification   *infranfe.VerificationCodeGenerator
	Router         *EnvironmentRouter
	Clock          Clock
	Metrics        *metrics.Fiscal
	Logger         zerolog.Logger
	NewID          func() string // nil = uuid.NewString
}

// Engine orquesta la emisión de NF-e/NFC-e:
//
//	carga → validación y armado de prueba → reserva venta+modelo → número → clave
//	→ armado → QR Code → pending → autorización → authorized | rejected
//
// Ningún número se consume si la configuración o la venta son inválidas.
type Engine struct {
	issuers        repository.IssuerRepository
	sales          repository.SaleRepository
	documents      repository.FiscalDocumentRepository
	municipalities repository.MunicipalityRepository
	taxes          TaxCalculator
	allocator      *SequenceAllocator
	keys           *domainnfe.AccessKeyGenerator
	assembler      *infranfe.Assembler
	verification   *infranfe.VerificationCodeGenerator
	router         *EnvironmentRouter
	clock          Clock
	metrics        *metrics.Fiscal
	log            zerolog.Logger
	newID          func() string

	zones sync.Map // nombre IANA -> *time.Location
}

// NewEngine construye el motor.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Keys == nil {
		deps.Keys = domainnfe.NewAccessKeyGenerator(nil)
	}
	if deps.Assembler == nil {
		deps.Assembler = infranfe.NewAssembler("")
	}
	if deps.Verification == nil {
		deps.Verification = infranfe.NewVerificationCodeGenerator(infranfe.VerificationURLs{})
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Engine{
		issuers:        deps.Issuers,
		sales:          deps.Sales,
		documents:      deps.Documents,
		municipalities: deps.Municipalities,
		taxes:          deps.Taxes,
		allocator:      deps.Allocator,
		keys:           deps.Keys,
		assembler:      deps.Assembler,
		verification:   deps.Verification,
		router:         deps.Router,
		clock:          deps.Clock,
		metrics:        deps.Metrics,
		log:            deps.Logger,
		newID:          deps.NewID,
	}
}

// EmitRequest es el pedido de emisión de un documento para una venta cerrada.
type EmitRequest struct {
	SaleID         string
	Model          entity.DocumentModel
	RecipientTaxID string // opcional; vacío usa el informado en la venta
}

// EmitResult describe el documento tras el intento de autorización.
// Se devuelve también junto a domain.ErrAuthorizationTimeout y *domain.RejectionError.
type EmitResult struct {
	DocumentID          string
	Status              entity.DocumentStatus
	Model               entity.DocumentModel
	Series              int
	Number              int64
	AccessKey           string
	Protocol            string
	AuthorizedAt        *time.Time
	RejectionCode       string
	RejectionReason     string
	VerificationPayload string
	Totals              entity.DocumentTotals
}

// CancelResult es el resultado de una cancelación registrada.
type CancelResult struct {
	Status               entity.DocumentStatus
	AccessKey            string
	CancellationProtocol string
	CancelledAt          time.Time
}

// ReconcileReport resume una pasada de conciliación de documentos pendientes.
type ReconcileReport struct {
	Processed    int
	Authorized   int
	Rejected     int
	StillPending int
}

// Emit emite el documento de la venta. Devuelve el resultado aun cuando la autoridad
// rechaza (con *domain.RejectionError) o no responde (con domain.ErrAuthorizationTimeout).
func (e *Engine) Emit(ctx context.Context, req EmitRequest) (*EmitResult, error) {
	res, err := e.emit(ctx, req)
	if err != nil {
		e.metrics.IncrementError(domain.Code(err))
	}
	return res, err
}

func (e *Engine) emit(ctx context.Context, req EmitRequest) (*EmitResult, error) {
	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		return nil, fmt.Errorf("%w: sale_id obligatorio", domain.ErrInvalidInput)
	}
	if !req.Model.Valid() {
		return nil, fmt.Errorf("%w: modelo %q no soportado (55 o 65)", domain.ErrInvalidInput, req.Model)
	}
	log := e.log.With().Str("sale_id", saleID).Str("model", string(req.Model)).Logger()

	// ═══ 1. Carga en paralelo: emisor, venta y resumen de impuestos ═══
	var (
		issuer *entity.IssuerProfile
		sale   *entity.Sale
		taxes  *entity.TaxSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if issuer, err = e.issuers.GetActive(gctx); err != nil {
			return fmt.Errorf("cargar emisor activo: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if sale, err = e.sales.GetSnapshot(gctx, saleID); err != nil {
			return fmt.Errorf("cargar venta %s: %w", saleID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if taxes, err = e.taxes.Summarize(gctx, saleID); err != nil {
			return fmt.Errorf("calcular impuestos de la venta %s: %w", saleID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: no hay emisor activo", domain.ErrConfigurationIncomplete)
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: venta %s", domain.ErrNotFound, saleID)
	}
	if taxes == nil {
		return nil, fmt.Errorf("%w: la venta %s no tiene resumen de impuestos", domain.ErrInvalidInput, saleID)
	}

	// ═══ 2. Validación completa antes de tocar el contador ═══
	recipient := pkgnfe.OnlyDigits(req.RecipientTaxID)
	if recipient == "" {
		recipient = pkgnfe.OnlyDigits(sale.RecipientTaxID)
	}
	if req.Model == entity.ModelNFe && recipient == "" {
		return nil, fmt.Errorf("%w: la NF-e (modelo 55) exige CPF/CNPJ del destinatario", domain.ErrInvalidInput)
	}
	if err := domainnfe.ValidateIssuer(issuer, req.Model); err != nil {
		return nil, err
	}
	if err := e.router.CheckReady(issuer.Environment); err != nil {
		return nil, err
	}
	municipality, err := e.municipalityCode(ctx, issuer)
	if err != nil {
		return nil, err
	}
	settings, _ := issuer.Settings(req.Model)
	issuedAt := e.clock.Now().In(e.location(issuer.TimeZone)).Truncate(time.Second)

	input := &infranfe.AssembleInput{
		Sale:             sale,
		Issuer:           issuer,
		Taxes:            taxes,
		Model:            req.Model,
		RecipientTaxID:   recipient,
		IssuedAt:         issuedAt,
		MunicipalityCode: municipality,
	}
	if err := e.preflight(input, settings.Series); err != nil {
		return nil, err
	}

	// ═══ 3. Un solo documento activo por venta+modelo ═══
	if active, err := e.documents.FindActiveBySaleAndModel(ctx, saleID, req.Model); err != nil {
		return nil, fmt.Errorf("buscar documento activo: %w", err)
	} else if active != nil {
		return nil, fmt.Errorf("%w: venta %s ya tiene %s (%s)", domain.ErrDuplicateActiveDocument, saleID, active.AccessKey, active.Status)
	}
	docID := e.newID()
	if err := e.documents.Claim(ctx, saleID, req.Model, docID); err != nil {
		return nil, err
	}
	release := func(reason string) {
		// contexto propio: la liberación no debe perderse si el pedido ya expiró
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.documents.Release(rctx, saleID, req.Model, docID); err != nil {
			log.Error().Err(err).Str("document_id", docID).Str("reason", reason).Msg("no se pudo liberar la reserva de la venta")
		}
	}

	// ═══ 4. Número de la serie ═══
	number, err := e.allocator.NextNumber(ctx, issuer.ID, settings.Series, req.Model)
	if err != nil {
		release("sequence")
		return nil, err
	}
	log = log.With().Int("series", settings.Series).Int64("number", number).Logger()

	// a partir de aquí un fallo deja un número sin documento: se registra para inutilizarlo
	lost := func(step string, cause error) error {
		log.Error().Err(cause).Str("step", step).Msg("número asignado sin documento; requiere inutilização")
		release(step)
		return cause
	}

	// ═══ 5. Clave de acceso ═══
	accessKey, err := e.keys.Generate(&domainnfe.AccessKeyParams{
		UF:       issuer.Address.UF,
		IssuedAt: issuedAt,
		CNPJ:     issuer.CNPJ,
		Model:    req.Model,
		Series:   settings.Series,
		Number:   number,
	})
	if err != nil {
		return nil, lost("access-key", err)
	}
	input.Number, input.AccessKey = number, accessKey

	// ═══ 6. Armado, QR Code y firma (producción) ═══
	body, err := e.assembler.Assemble(input)
	if err != nil {
		return nil, lost("assemble", err)
	}
	verification, err := e.verification.ForIssuer(issuer, accessKey)
	if err != nil {
		return nil, lost("verification", err)
	}
	body.AttachVerification(verification.Payload, verification.URLChave)
	xmlBytes, err := body.XML()
	if err != nil {
		return nil, lost("xml", err)
	}
	prepared, err := e.router.Prepare(issuer.Environment, xmlBytes)
	if err != nil {
		return nil, lost("sign", err)
	}

	// ═══ 7. Persistir como pending antes de cualquier llamada externa ═══
	now := e.clock.Now()
	doc := &entity.FiscalDocument{
		ID:                  docID,
		SaleID:              saleID,
		IssuerID:            issuer.ID,
		Model:               req.Model,
		Series:              settings.Series,
		Number:              number,
		AccessKey:           accessKey,
		Status:              entity.StatusPending,
		Environment:         issuer.Environment,
		IssuedAt:            issuedAt,
		VerificationPayload: verification.Payload,
		RecipientTaxID:      recipient,
		Totals:              body.Totals,
		Body:                prepared,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.documents.Create(ctx, doc); err != nil {
		return nil, lost("persist", fmt.Errorf("guardar documento pendiente: %w", err))
	}
	log.Info().Str("access_key", accessKey).Str("status", string(doc.Status)).
		Str("environment", string(doc.Environment)).Msg("documento fiscal pendiente")

	// ═══ 8. Autorización ═══
	return e.settle(ctx, doc, issuer)
}

// preflight arma el documento con un número provisorio para detectar cualquier error
// de configuración o de la venta sin consumir numeración.
func (e *Engine) preflight(in *infranfe.AssembleInput, series int) error {
	key, err := e.keys.Generate(&domainnfe.AccessKeyParams{
		UF:       in.Issuer.Address.UF,
		IssuedAt: in.IssuedAt,
		CNPJ:     in.Issuer.CNPJ,
		Model:    in.Model,
		Series:   series,
		Number:   1,
		Code:     preflightCode,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return fmt.Errorf("%w: %v", domain.ErrConfigurationIncomplete, err)
		}
		return err
	}
	dry := *in
	dry.Number, dry.AccessKey = 1, key
	if _, err := e.assembler.Assemble(&dry); err != nil {
		return err
	}
	if _, err := e.verification.ForIssuer(in.Issuer, key); err != nil {
		return err
	}
	return nil
}

// settle envía el documento pendiente y aplica la transición que corresponda.
func (e *Engine) settle(ctx context.Context, doc *entity.FiscalDocument, issuer *entity.IssuerProfile) (*EmitResult, error) {
	log := e.log.With().
		Str("sale_id", doc.SaleID).
		Str("access_key", doc.AccessKey).
		Str("model", string(doc.Model)).
		Int("series", doc.Series).
		Int64("number", doc.Number).
		Str("environment", string(doc.Environment)).
		Logger()

	outcome, err := e.router.Authorize(ctx, doc, issuer)
	if err != nil {
		// sin respuesta: el documento queda pending para reintento o conciliación
		e.metrics.IncrementEmission(string(doc.Model), string(entity.StatusPending))
		log.Warn().Err(err).Str("status", string(doc.Status)).Msg("autorización sin respuesta; documento pendiente")
		return newEmitResult(doc), err
	}

	if err := domainnfe.Apply(doc, outcome.Transition()); err != nil {
		log.Error().Err(err).Msg("respuesta de la autoridad no aplicable; documento pendiente")
		return newEmitResult(doc), err
	}
	doc.UpdatedAt = e.clock.Now()

	// contexto propio: la respuesta de la autoridad ya existe y no puede perderse
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.documents.UpdateStatus(pctx, doc, entity.StatusPending); err != nil {
		log.Error().Err(err).Str("status", string(doc.Status)).Str("protocol", doc.Protocol).
			Msg("no se pudo persistir la respuesta de la autoridad")
		return newEmitResult(doc), fmt.Errorf("persistir estado %s: %w", doc.Status, err)
	}
	e.metrics.IncrementEmission(string(doc.Model), string(doc.Status))

	if doc.Status == entity.StatusRejected {
		if err := e.documents.Release(pctx, doc.SaleID, doc.Model, doc.ID); err != nil {
			log.Error().Err(err).Msg("no se pudo liberar la reserva tras el rechazo")
		}
		log.Warn().Str("status", string(doc.Status)).Str("cstat", doc.RejectionCode).
			Str("motivo", doc.RejectionReason).Msg("documento rechazado por la autoridad")
		return newEmitResult(doc), &domain.RejectionError{Code: doc.RejectionCode, Reason: doc.RejectionReason}
	}

	log.Info().Str("status", string(doc.Status)).Str("protocol", doc.Protocol).Msg("documento autorizado")
	return newEmitResult(doc), nil
}

// Cancel cancela un documento autorizado dentro del plazo legal de 24 horas.
func (e *Engine) Cancel(ctx context.Context, accessKey, reason string) (*CancelResult, error) {
	res, err := e.cancel(ctx, accessKey, reason)
	if err != nil {
		e.metrics.IncrementError(domain.Code(err))
	}
	return res, err
}

func (e *Engine) cancel(ctx context.Context, accessKey, reason string) (*CancelResult, error) {
	doc, err := e.GetStatus(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	log := e.log.With().Str("sale_id", doc.SaleID).Str("access_key", doc.AccessKey).Str("model", string(doc.Model)).Logger()

	// la guarda se evalúa con el reloj del pedido, antes de contactar a la autoridad
	now := e.clock.Now()
	if err := domainnfe.CanCancel(doc, reason, now); err != nil {
		e.metrics.IncrementCancellation(string(doc.Model), "refused")
		return nil, err
	}

	issuer, err := e.issuers.GetByID(ctx, doc.IssuerID)
	if err != nil {
		return nil, fmt.Errorf("cargar emisor %s: %w", doc.IssuerID, err)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: emisor %s no encontrado", domain.ErrConfigurationIncomplete, doc.IssuerID)
	}

	outcome, err := e.router.Cancel(ctx, doc, issuer, strings.TrimSpace(reason), now)
	if err != nil {
		e.metrics.IncrementCancellation(string(doc.Model), "error")
		log.Warn().Err(err).Msg("cancelación no registrada por la autoridad")
		return nil, err
	}

	if err := domainnfe.Apply(doc, domainnfe.Cancel{Reason: reason, Protocol: outcome.Protocol, At: now}); err != nil {
		return nil, err
	}
	doc.UpdatedAt = e.clock.Now()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.documents.UpdateStatus(pctx, doc, entity.StatusAuthorized); err != nil {
		log.Error().Err(err).Str("protocol", outcome.Protocol).Msg("cancelación aceptada pero no persistida")
		return nil, fmt.Errorf("persistir cancelación: %w", err)
	}
	if err := e.documents.Release(pctx, doc.SaleID, doc.Model, doc.ID); err != nil {
		log.Error().Err(err).Msg("no se pudo liberar la reserva tras la cancelación")
	}

	e.metrics.IncrementCancellation(string(doc.Model), "ok")
	log.Info().Str("status", string(doc.Status)).Str("protocol", doc.CancellationProtocol).Msg("documento cancelado")
	return &CancelResult{
		Status:               doc.Status,
		AccessKey:            doc.AccessKey,
		CancellationProtocol: doc.CancellationProtocol,
		CancelledAt:          *doc.CancelledAt,
	}, nil
}

// GetStatus devuelve el documento por su clave de acceso.
func (e *Engine) GetStatus(ctx context.Context, accessKey string) (*entity.FiscalDocument, error) {
	accessKey = strings.TrimSpace(accessKey)
	if err := domainnfe.ValidateAccessKey(accessKey); err != nil {
		return nil, err
	}
	doc, err := e.documents.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, fmt.Errorf("buscar documento %s: %w", accessKey, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, accessKey)
	}
	return doc, nil
}

// RetryPending reenvía el cuerpo almacenado de un documento que quedó pendiente.
// Reutiliza número y clave: nunca se vuelve a numerar.
func (e *Engine) RetryPending(ctx context.Context, accessKey string) (*EmitResult, error) {
	doc, err := e.GetStatus(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	return e.retry(ctx, doc)
}

func (e *Engine) retry(ctx context.Context, doc *entity.FiscalDocument) (*EmitResult, error) {
	if doc.Status != entity.StatusPending {
		return newEmitResult(doc), fmt.Errorf("%w: solo se reenvía un documento pendiente (estado actual: %s)", domain.ErrInvalidTransition, doc.Status)
	}
	issuer, err := e.issuers.GetByID(ctx, doc.IssuerID)
	if err != nil {
		return nil, fmt.Errorf("cargar emisor %s: %w", doc.IssuerID, err)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: emisor %s no encontrado", domain.ErrConfigurationIncomplete, doc.IssuerID)
	}
	return e.settle(ctx, doc, issuer)
}

// ReconcilePending reenvía los documentos pendientes hace más de olderThan.
// Un error de un documento no detiene la pasada; solo los errores del almacén la cortan.
func (e *Engine) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileReport, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := e.documents.ListPending(ctx, e.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("listar pendientes: %w", err)
	}

	report := &ReconcileReport{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		res, err := e.retry(ctx, doc)
		switch {
		case err == nil && res.Status == entity.StatusAuthorized:
			report.Authorized++
		case errors.Is(err, domain.ErrAuthorizationRejected):
			report.Rejected++
		default:
			report.StillPending++
			if err != nil && !domain.IsRetryable(err) {
				e.log.Error().Err(err).Str("access_key", doc.AccessKey).Msg("conciliación: documento no reenviable")
			}
		}
	}
	e.log.Info().
		Int("processed", report.Processed).
		Int("authorized", report.Authorized).
		Int("rejected", report.Rejected).
		Int("pending", report.StillPending).
		Msg("conciliación de pendientes terminada")
	return report, nil
}

// municipalityCode usa el cMun configurado o lo resuelve por nombre en la tabla IBGE.
func (e *Engine) municipalityCode(ctx context.Context, issuer *entity.IssuerProfile) (string, error) {
	if code := pkgnfe.OnlyDigits(issuer.Address.MunicipalityCode); len(code) == 7 {
		return code, nil
	}
	if e.municipalities == nil || strings.TrimSpace(issuer.Address.MunicipalityName) == "" {
		return "", fmt.Errorf("%w: falta código IBGE del municipio del emisor", domain.ErrConfigurationIncomplete)
	}
	m, err := e.municipalities.FindByName(ctx, issuer.Address.UF, issuer.Address.MunicipalityName)
	if err != nil {
		return "", fmt.Errorf("resolver municipio %s/%s: %w", issuer.Address.MunicipalityName, issuer.Address.UF, err)
	}
	if m == nil {
		return "", fmt.Errorf("%w: municipio %q no encontrado en %s", domain.ErrConfigurationIncomplete, issuer.Address.MunicipalityName, issuer.Address.UF)
	}
	return m.Code, nil
}

// location carga la zona del emisor una sola vez; sin zona usa UTC-3 (Brasília).
func (e *Engine) location(name string) *time.Location {
	if name == "" {
		name = "America/Sao_Paulo"
	}
	if loc, ok := e.zones.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		e.log.Warn().Err(err).Str("time_zone", name).Msg("zona horaria desconocida; se usa UTC-3")
		loc = time.FixedZone("BRT", -3*60*60)
	}
	e.zones.Store(name, loc)
	return loc
}

func newEmitResult(doc *entity.FiscalDocument) *EmitResult {
	return &EmitResult{
		DocumentID:          doc.ID,
		Status:              doc.Status,
		Model:               doc.Model,
		Series:              doc.Series,
		Number:              doc.Number,
		AccessKey:           doc.AccessKey,
		Protocol:            doc.Protocol,
		AuthorizedAt:        doc.AuthorizedAt,
		RejectionCode:       doc.RejectionCode,
		RejectionReason:     doc.RejectionReason,
		VerificationPayload: doc.VerificationPayload,
		Totals:              doc.Totals,
	}
}
