package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/emisor-fiscal/internal/application/dto"
	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
)

// FiscalHandler expone el motor de emisión NF-e / NFC-e.
type FiscalHandler struct {
	engine *fiscal.Engine
	danfe  *fiscal.DanfeUseCase
	log    zerolog.Logger
}

// NewFiscalHandler construye el handler.
func NewFiscalHandler(engine *fiscal.Engine, danfe *fiscal.DanfeUseCase, log zerolog.Logger) *FiscalHandler {
	return &FiscalHandler{engine: engine, danfe: danfe, log: log}
}

// Emit emite el documento fiscal de una venta cerrada.
// POST /api/fiscal-documents
//
// 201 autorizado; 202 pendiente (la autoridad no respondió a tiempo); 422 rechazado.
// En 202 y 422 el cuerpo trae el documento registrado junto al código de error.
func (h *FiscalHandler) Emit(c *fiber.Ctx) error {
	var in dto.EmitDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.engine.Emit(c.Context(), fiscal.EmitRequest{
		SaleID:         strings.TrimSpace(in.SaleID),
		Model:          entity.DocumentModel(strings.TrimSpace(in.Model)),
		RecipientTaxID: in.RecipientTaxID,
	})
	if err != nil {
		return h.failWithDocument(c, res, err)
	}
	return c.Status(fiber.StatusCreated).JSON(emitResponse(res))
}

// Get devuelve el documento por clave de acceso.
// GET /api/fiscal-documents/:key
func (h *FiscalHandler) Get(c *fiber.Ctx) error {
	doc, err := h.engine.GetStatus(c.Context(), c.Params("key"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(documentResponse(doc))
}

// Cancel registra la cancelación dentro de las 24 horas de la autorización.
// POST /api/fiscal-documents/:key/cancel (admin, gerente)
func (h *FiscalHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.engine.Cancel(c.Context(), c.Params("key"), in.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	h.log.Info().
		Str("access_key", res.AccessKey).
		Str("user_id", GetUserID(c)).
		Str("terminal_id", GetTerminalID(c)).
		Msg("cancelación solicitada por usuario")
	return c.JSON(dto.CancelDocumentResponse{
		Status:               string(res.Status),
		AccessKey:            res.AccessKey,
		CancellationProtocol: res.CancellationProtocol,
		CancelledAt:          res.CancelledAt,
	})
}

// Retry reenvía un documento pendiente con el mismo número y clave.
// POST /api/fiscal-documents/:key/retry
func (h *FiscalHandler) Retry(c *fiber.Ctx) error {
	res, err := h.engine.RetryPending(c.Context(), c.Params("key"))
	if err != nil {
		return h.failWithDocument(c, res, err)
	}
	return c.JSON(emitResponse(res))
}

// Reconcile reintenta los pendientes más viejos que older_than (por defecto 2m).
// POST /api/fiscal-documents/reconcile?older_than=5m&limit=50 (admin)
func (h *FiscalHandler) Reconcile(c *fiber.Ctx) error {
	olderThan := 2 * time.Minute
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "older_than inválido, ej. 5m"})
		}
		olderThan = d
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	report, err := h.engine.ReconcilePending(c.Context(), olderThan, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.ReconcileResponse{
		Processed:    report.Processed,
		Authorized:   report.Authorized,
		Rejected:     report.Rejected,
		StillPending: report.StillPending,
	})
}

// Danfe descarga la representación gráfica (DANFE NFC-e) en PDF.
// GET /api/fiscal-documents/:key/danfe
func (h *FiscalHandler) Danfe(c *fiber.Ctx) error {
	pdf, filename, err := h.danfe.Download(c.Context(), c.Params("key"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+filename+`"`)
	return c.Send(pdf)
}

// failWithDocument responde 202 (pendiente) o 422 (rechazado) con el documento registrado;
// cualquier otro error sigue el camino de fail.
func (h *FiscalHandler) failWithDocument(c *fiber.Ctx, res *fiscal.EmitResult, err error) error {
	if res == nil {
		return h.fail(c, err)
	}
	var status int
	switch {
	case errors.Is(err, domain.ErrAuthorizationTimeout):
		status = fiber.StatusAccepted
	case errors.Is(err, domain.ErrAuthorizationRejected):
		status = fiber.StatusUnprocessableEntity
	default:
		return h.fail(c, err)
	}
	return c.Status(status).JSON(dto.ErrorWithDocument{
		ErrorResponse: dto.ErrorResponse{Code: domain.Code(err), Message: err.Error()},
		Document:      emitResponse(res),
	})
}

// fail traduce el error de dominio a status HTTP. Los errores internos no exponen detalles.
func (h *FiscalHandler) fail(c *fiber.Ctx, err error) error {
	code := domain.Code(err)
	status := httpStatus(code)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		msg = "error interno"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: msg})
}

func httpStatus(code string) int {
	switch code {
	case "VALIDATION":
		return fiber.StatusBadRequest
	case "UNAUTHORIZED":
		return fiber.StatusUnauthorized
	case "FORBIDDEN":
		return fiber.StatusForbidden
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "DUPLICATE_ACTIVE_DOCUMENT", "INVALID_TRANSITION":
		return fiber.StatusConflict
	case "CONFIGURATION_INCOMPLETE", "CANCELLATION_WINDOW_EXPIRED", "AUTHORIZATION_REJECTED":
		return fiber.StatusUnprocessableEntity
	case "SEQUENCE_UNAVAILABLE":
		return fiber.StatusServiceUnavailable
	case "AUTHORIZATION_TIMEOUT":
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func totalsResponse(t entity.DocumentTotals) dto.TotalsResponse {
	return dto.TotalsResponse{
		Products:    t.Products,
		Discount:    t.Discount,
		Other:       t.Other,
		ICMSBase:    t.ICMSBase,
		ICMS:        t.ICMS,
		IPI:         t.IPI,
		PIS:         t.PIS,
		COFINS:      t.COFINS,
		ApproxTaxes: t.ApproxTaxes,
		Grand:       t.Grand,
	}
}

func emitResponse(r *fiscal.EmitResult) *dto.FiscalDocumentResponse {
	return &dto.FiscalDocumentResponse{
		ID:                  r.DocumentID,
		Status:              string(r.Status),
		Model:               string(r.Model),
		Series:              r.Series,
		Number:              r.Number,
		AccessKey:           r.AccessKey,
		Protocol:            r.Protocol,
		AuthorizedAt:        r.AuthorizedAt,
		RejectionCode:       r.RejectionCode,
		RejectionReason:     r.RejectionReason,
		VerificationPayload: r.VerificationPayload,
		Totals:              totalsResponse(r.Totals),
	}
}

func documentResponse(d *entity.FiscalDocument) *dto.FiscalDocumentResponse {
	issuedAt := d.IssuedAt
	return &dto.FiscalDocumentResponse{
		ID:                   d.ID,
		SaleID:               d.SaleID,
		Status:               string(d.Status),
		Model:                string(d.Model),
		Series:               d.Series,
		Number:               d.Number,
		AccessKey:            d.AccessKey,
		Environment:          string(d.Environment),
		IssuedAt:             &issuedAt,
		Protocol:             d.Protocol,
		AuthorizedAt:         d.AuthorizedAt,
		RejectionCode:        d.RejectionCode,
		RejectionReason:      d.RejectionReason,
		VerificationPayload:  d.VerificationPayload,
		CancellationReason:   d.CancellationReason,
		CancellationProtocol: d.CancellationProtocol,
		CancelledAt:          d.CancelledAt,
		Totals:               totalsResponse(d.Totals),
	}
}
