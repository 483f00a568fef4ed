// Package memory implementa los puertos de persistencia en memoria de proceso.
// Se usa en pruebas y en demostraciones locales sin base de datos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
)

type claimKey struct {
	saleID string
	model  entity.DocumentModel
}

// DocumentStore guarda documentos fiscales y reservas venta+modelo bajo un mismo mutex.
type DocumentStore struct {
	mu     sync.RWMutex
	byID   map[string]*entity.FiscalDocument
	byKey  map[string]string // access_key -> id
	claims map[claimKey]string
}

// NewDocumentStore crea el almacén vacío.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		byID:   make(map[string]*entity.FiscalDocument),
		byKey:  make(map[string]string),
		claims: make(map[claimKey]string),
	}
}

var _ repository.FiscalDocumentRepository = (*DocumentStore)(nil)

func (s *DocumentStore) Claim(_ context.Context, saleID string, model entity.DocumentModel, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{saleID, model}
	if owner, ok := s.claims[k]; ok && owner != documentID {
		return fmt.Errorf("%w: venta %s modelo %s", domain.ErrDuplicateActiveDocument, saleID, model)
	}
	s.claims[k] = documentID
	return nil
}

func (s *DocumentStore) Release(_ context.Context, saleID string, model entity.DocumentModel, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{saleID, model}
	if s.claims[k] == documentID {
		delete(s.claims, k)
	}
	return nil
}

func (s *DocumentStore) Create(_ context.Context, doc *entity.FiscalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[doc.ID]; ok {
		return fmt.Errorf("documento %s ya existe", doc.ID)
	}
	if _, ok := s.byKey[doc.AccessKey]; ok {
		return fmt.Errorf("clave de acceso %s ya existe", doc.AccessKey)
	}
	s.byID[doc.ID] = clone(doc)
	s.byKey[doc.AccessKey] = doc.ID
	return nil
}

func (s *DocumentStore) UpdateStatus(_ context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[doc.ID]
	if !ok {
		return fmt.Errorf("%w: documento %s", domain.ErrNotFound, doc.ID)
	}
	if current.Status != from {
		return fmt.Errorf("%w: el documento %s ya está en %s", domain.ErrInvalidTransition, doc.ID, current.Status)
	}
	s.byID[doc.ID] = clone(doc)
	return nil
}

func (s *DocumentStore) GetByAccessKey(_ context.Context, accessKey string) (*entity.FiscalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[accessKey]
	if !ok {
		return nil, nil
	}
	return clone(s.byID[id]), nil
}

func (s *DocumentStore) FindActiveBySaleAndModel(_ context.Context, saleID string, model entity.DocumentModel) (*entity.FiscalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.byID {
		if d.SaleID == saleID && d.Model == model && d.Status.Active() {
			return clone(d), nil
		}
	}
	return nil, nil
}

func (s *DocumentStore) ListPending(_ context.Context, olderThan time.Time, limit int) ([]*entity.FiscalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.FiscalDocument
	for _, d := range s.byID {
		if d.Status == entity.StatusPending && d.CreatedAt.Before(olderThan) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count devuelve cuántos documentos hay guardados (cualquier estado).
func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func clone(d *entity.FiscalDocument) *entity.FiscalDocument {
	if d == nil {
		return nil
	}
	c := *d
	c.Body = append([]byte(nil), d.Body...)
	if d.AuthorizedAt != nil {
		t := *d.AuthorizedAt
		c.AuthorizedAt = &t
	}
	if d.CancelledAt != nil {
		t := *d.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
