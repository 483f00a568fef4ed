package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	pkgnfe "github.com/jhoicas/emisor-fiscal/pkg/nfe"
)

// IssuerStore guarda perfiles de emisor; el primero cargado es el activo.
type IssuerStore struct {
	mu       sync.RWMutex
	activeID string
	byID     map[string]*entity.IssuerProfile
}

// NewIssuerStore crea el almacén con los perfiles dados.
func NewIssuerStore(profiles ...*entity.IssuerProfile) *IssuerStore {
	s := &IssuerStore{byID: make(map[string]*entity.IssuerProfile)}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

var _ repository.IssuerRepository = (*IssuerStore)(nil)

// Put agrega o reemplaza un perfil.
func (s *IssuerStore) Put(p *entity.IssuerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		s.activeID = p.ID
	}
	s.byID[p.ID] = p
}

func (s *IssuerStore) GetActive(_ context.Context) (*entity.IssuerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[s.activeID], nil
}

func (s *IssuerStore) GetByID(_ context.Context, id string) (*entity.IssuerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id], nil
}

// SaleStore guarda instantáneas de venta.
type SaleStore struct {
	mu    sync.RWMutex
	sales map[string]*entity.Sale
}

// NewSaleStore crea el almacén con las ventas dadas.
func NewSaleStore(sales ...*entity.Sale) *SaleStore {
	s := &SaleStore{sales: make(map[string]*entity.Sale)}
	for _, sale := range sales {
		s.Put(sale)
	}
	return s
}

var _ repository.SaleRepository = (*SaleStore)(nil)

// Put agrega o reemplaza una venta.
func (s *SaleStore) Put(sale *entity.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.ID] = sale
}

func (s *SaleStore) GetSnapshot(_ context.Context, saleID string) (*entity.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sales[saleID], nil
}

// MunicipalityStore busca municipios por UF y nombre normalizado.
type MunicipalityStore struct {
	byName map[string]entity.Municipality
}

// NewMunicipalityStore indexa los municipios dados.
func NewMunicipalityStore(list ...entity.Municipality) *MunicipalityStore {
	s := &MunicipalityStore{byName: make(map[string]entity.Municipality, len(list))}
	for _, m := range list {
		s.byName[municipalityKey(m.UF, m.Name)] = m
	}
	return s
}

var _ repository.MunicipalityRepository = (*MunicipalityStore)(nil)

func (s *MunicipalityStore) FindByName(_ context.Context, uf, name string) (*entity.Municipality, error) {
	m, ok := s.byName[municipalityKey(uf, name)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func municipalityKey(uf, name string) string {
	return strings.ToUpper(strings.TrimSpace(uf)) + "|" + pkgnfe.NormalizeName(name)
}
