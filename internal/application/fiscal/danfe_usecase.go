package fiscal

import (
	"context"
	"fmt"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	domainnfe "github.com/jhoicas/emisor-fiscal/internal/domain/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
)

// DanfeData es lo que necesita el generador para dibujar el DANFE.
type DanfeData struct {
	Document *entity.FiscalDocument
	Issuer   *entity.IssuerProfile
	NFe      *infranfe.NFe // cuerpo almacenado, ya parseado
}

// DanfeGenerator dibuja la representación gráfica del documento.
type DanfeGenerator interface {
	GenerateDanfe(ctx context.Context, data *DanfeData) ([]byte, error)
}

// DanfeUseCase genera el DANFE de un documento autorizado o cancelado.
type DanfeUseCase struct {
	documents repository.FiscalDocumentRepository
	issuers   repository.IssuerRepository
	generator DanfeGenerator
}

// NewDanfeUseCase construye el caso de uso.
func NewDanfeUseCase(
	documents repository.FiscalDocumentRepository,
	issuers repository.IssuerRepository,
	generator DanfeGenerator,
) *DanfeUseCase {
	return &DanfeUseCase{documents: documents, issuers: issuers, generator: generator}
}

// Download devuelve el PDF y el nombre de archivo sugerido.
//
// Retorna:
//   - domain.ErrNotFound     si la clave no existe.
//   - domain.ErrInvalidInput si el documento no tiene protocolo (pending o rejected).
func (uc *DanfeUseCase) Download(ctx context.Context, accessKey string) (pdfBytes []byte, filename string, err error) {
	if err := domainnfe.ValidateAccessKey(accessKey); err != nil {
		return nil, "", err
	}

	// ── 1. Documento ──────────────────────────────────────────────────────────
	doc, err := uc.documents.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener documento: %w", err)
	}
	if doc == nil {
		return nil, "", domain.ErrNotFound
	}
	if doc.Status != entity.StatusAuthorized && doc.Status != entity.StatusCancelled {
		return nil, "", fmt.Errorf("%w: el documento está en estado %s; el DANFE requiere autorización",
			domain.ErrInvalidInput, doc.Status)
	}

	// ── 2. Emisor ─────────────────────────────────────────────────────────────
	issuer, err := uc.issuers.GetByID(ctx, doc.IssuerID)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: obtener emisor: %w", err)
	}
	if issuer == nil {
		return nil, "", fmt.Errorf("%w: emisor %s", domain.ErrNotFound, doc.IssuerID)
	}

	// ── 3. Cuerpo y PDF ───────────────────────────────────────────────────────
	tree, err := infranfe.ParseDocument(doc.Body)
	if err != nil {
		return nil, "", fmt.Errorf("danfe: %w", err)
	}
	pdfBytes, err = uc.generator.GenerateDanfe(ctx, &DanfeData{Document: doc, Issuer: issuer, NFe: tree})
	if err != nil {
		return nil, "", fmt.Errorf("danfe: generación fallida: %w", err)
	}

	filename = fmt.Sprintf("danfe_%s.pdf", doc.AccessKey)
	return pdfBytes, filename, nil
}
