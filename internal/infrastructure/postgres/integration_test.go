//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain"
	"github.com/jhoicas/emisor-fiscal/internal/domain/entity"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/tax"
	"github.com/jhoicas/emisor-fiscal/pkg/config"
)

type PostgresSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("emisor_fiscal"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn, MaxConns: 40})
	s.Require().NoError(err)
	s.pool = pool

	s.Require().NoError(postgres.Migrate(ctx, pool, zerolog.Nop()))
	// Segunda ejecución: no debe reaplicar nada.
	s.Require().NoError(postgres.Migrate(ctx, pool, zerolog.Nop()))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `TRUNCATE fiscal_document_claims, fiscal_documents, fiscal_sequences,
		sale_items, sales, issuer_document_settings, issuers, municipalities, operators`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) insertIssuer(ctx context.Context) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO issuers (id, legal_name, trade_name, cnpj, state_registration, tax_regime,
			street, street_number, district, municipality_code, municipality_name, uf, zip_code, environment, active)
		VALUES ('issuer-1', 'Mercado Bom Preço Ltda', 'Bom Preço', '11222333000181', '111222333444', 'simplified',
			'Rua das Flores', '100', 'Centro', '', 'São Paulo', 'SP', '01001000', 'homologation', TRUE)`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO issuer_document_settings (issuer_id, model, series, csc_id, csc_token)
		VALUES ('issuer-1', '65', 1, '000001', 'CSCTESTE123'), ('issuer-1', '55', 1, '', '')`)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO municipalities (code, name, uf, normalized_name)
		VALUES ('3550308', 'São Paulo', 'SP', 'SAO PAULO')`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) insertSale(ctx context.Context, id string) {
	_, err := s.pool.Exec(ctx, `INSERT INTO sales (id, total, payment_method) VALUES ($1, 100, '01')`, id)
	s.Require().NoError(err)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sale_items (sale_id, position, product_id, code, name, ncm, cfop, quantity, unit_price, line_total)
		VALUES ($1, 1, 'p-001', '001', 'Arroz 5kg', '10063021', '5102', 2, 25, 50),
		       ($1, 2, 'p-002', '002', 'Feijão 1kg', '07133399', '5102', 1, 50, 50)`, id)
	s.Require().NoError(err)
}

func newDocument(saleID, key string, number int64, created time.Time) *entity.FiscalDocument {
	return &entity.FiscalDocument{
		ID:          uuid.NewString(),
		SaleID:      saleID,
		IssuerID:    "issuer-1",
		Model:       entity.ModelNFCe,
		Series:      1,
		Number:      number,
		AccessKey:   key,
		Status:      entity.StatusPending,
		Environment: entity.EnvironmentHomologation,
		IssuedAt:    created,
		Totals:      entity.DocumentTotals{Products: decimal.RequireFromString("100.00"), Grand: decimal.RequireFromString("100.00")},
		Body:        []byte("<NFe/>"),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

// ═══ Secuencia ═══

func (s *PostgresSuite) TestSequence_ConcurrenteSinDuplicadosNiHuecos() {
	ctx := context.Background()
	repo := postgres.NewSequenceRepository(s.pool)
	key := entity.SequenceKey{IssuerID: "issuer-1", Series: 1, Model: entity.ModelNFCe}
	const workers = 100

	var mu sync.Mutex
	var got []int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.Next(ctx, key)
			s.NoError(err)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	s.Require().Len(got, workers)
	for i, n := range got {
		s.Equal(int64(i+1), n)
	}
	cur, err := repo.Current(ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(workers), cur)
}

func (s *PostgresSuite) TestSequence_SeedSoloSiNoExiste() {
	ctx := context.Background()
	repo := postgres.NewSequenceRepository(s.pool)
	key := entity.SequenceKey{IssuerID: "issuer-1", Series: 2, Model: entity.ModelNFe}

	s.Require().NoError(repo.Seed(ctx, key, 4500))
	s.Require().NoError(repo.Seed(ctx, key, 10))
	n, err := repo.Next(ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(4501), n)
}

// ═══ Documentos y reservas ═══

func (s *PostgresSuite) TestClaim_ConcurrenteUnSoloGanador() {
	ctx := context.Background()
	repo := postgres.NewFiscalDocumentRepository(s.pool)
	const workers = 30

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Claim(ctx, "sale-x", entity.ModelNFCe, uuid.NewString())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDuplicateActiveDocument):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(workers-1), dup.Load())
}

func (s *PostgresSuite) TestClaim_MismoDuenoEsIdempotenteYReleaseLibera() {
	ctx := context.Background()
	repo := postgres.NewFiscalDocumentRepository(s.pool)

	s.Require().NoError(repo.Claim(ctx, "sale-1", entity.ModelNFCe, "doc-a"))
	s.Require().NoError(repo.Claim(ctx, "sale-1", entity.ModelNFCe, "doc-a"))
	s.Require().NoError(repo.Claim(ctx, "sale-1", entity.ModelNFe, "doc-b"), "otro modelo es otro par")

	// Release de un documento ajeno no libera.
	s.Require().NoError(repo.Release(ctx, "sale-1", entity.ModelNFCe, "doc-z"))
	s.ErrorIs(repo.Claim(ctx, "sale-1", entity.ModelNFCe, "doc-c"), domain.ErrDuplicateActiveDocument)

	s.Require().NoError(repo.Release(ctx, "sale-1", entity.ModelNFCe, "doc-a"))
	s.NoError(repo.Claim(ctx, "sale-1", entity.ModelNFCe, "doc-c"))
}

func (s *PostgresSuite) TestDocument_CreateLeerYCompareAndSet() {
	ctx := context.Background()
	repo := postgres.NewFiscalDocumentRepository(s.pool)
	now := time.Date(2024, 10, 15, 13, 30, 0, 0, time.UTC)
	key := "35241011222333000181650010000000011123456780"
	doc := newDocument("sale-1", key, 1, now)
	s.Require().NoError(repo.Create(ctx, doc))

	active, err := repo.FindActiveBySaleAndModel(ctx, "sale-1", entity.ModelNFCe)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(doc.ID, active.ID)

	authorized := now.Add(2 * time.Second)
	doc.Status = entity.StatusAuthorized
	doc.AuthorizedAt = &authorized
	doc.Protocol = "135240000000001"
	s.Require().NoError(repo.UpdateStatus(ctx, doc, entity.StatusPending))

	// Otra transición desde pending ya no aplica.
	doc.Status = entity.StatusRejected
	s.ErrorIs(repo.UpdateStatus(ctx, doc, entity.StatusPending), domain.ErrInvalidTransition)

	got, err := repo.GetByAccessKey(ctx, key)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(entity.StatusAuthorized, got.Status)
	s.Equal("135240000000001", got.Protocol)
	s.Require().NotNil(got.AuthorizedAt)
	s.True(got.AuthorizedAt.Equal(authorized))
	s.Equal("100.00", got.Totals.Grand.StringFixed(2))
	s.Equal([]byte("<NFe/>"), got.Body)

	missing, err := repo.GetByAccessKey(ctx, "00000000000000000000000000000000000000000000")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *PostgresSuite) TestDocument_ListPendingOrdenadoYLimitado() {
	ctx := context.Background()
	repo := postgres.NewFiscalDocumentRepository(s.pool)
	base := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	keys := []string{
		"35241011222333000181650010000000011000000011",
		"35241011222333000181650010000000021000000022",
		"35241011222333000181650010000000031000000033",
	}
	for i, k := range keys {
		s.Require().NoError(repo.Create(ctx, newDocument("sale-"+k[40:], k, int64(i+1), base.Add(time.Duration(i)*time.Minute))))
	}

	list, err := repo.ListPending(ctx, base.Add(90*time.Second), 10)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(keys[0], list[0].AccessKey)
	s.Equal(keys[1], list[1].AccessKey)

	list, err = repo.ListPending(ctx, base.Add(time.Hour), 1)
	s.Require().NoError(err)
	s.Len(list, 1)
}

// ═══ Catálogos ═══

func (s *PostgresSuite) TestCatalogos_EmisorVentaYMunicipio() {
	ctx := context.Background()
	s.insertIssuer(ctx)
	s.insertSale(ctx, "sale-1")

	issuer, err := postgres.NewIssuerRepository(s.pool).GetActive(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(issuer)
	s.Equal(entity.RegimeSimplified, issuer.TaxRegime)
	settings, ok := issuer.Settings(entity.ModelNFCe)
	s.Require().True(ok)
	s.Equal("CSCTESTE123", settings.CSCToken)

	sale, err := postgres.NewSaleRepository(s.pool).GetSnapshot(ctx, "sale-1")
	s.Require().NoError(err)
	s.Require().Len(sale.Items, 2)
	s.Equal("Arroz 5kg", sale.Items[0].Name)
	s.Equal("25", sale.Items[0].UnitPrice.String())

	m, err := postgres.NewMunicipalityRepository(s.pool).FindByName(ctx, "sp", "SAO  paulo")
	s.Require().NoError(err)
	s.Require().NotNil(m)
	s.Equal("3550308", m.Code)
}

func (s *PostgresSuite) TestOperator_CreateYLoginUnico() {
	ctx := context.Background()
	repo := postgres.NewOperatorRepository(s.pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	op := &entity.Operator{
		ID: uuid.NewString(), Login: "ana", PasswordHash: "$2a$10$hash", Name: "Ana",
		Role: "gerente", TerminalID: "pdv-01", Active: true, CreatedAt: now, UpdatedAt: now,
	}
	s.Require().NoError(repo.Create(ctx, op))

	dup := *op
	dup.ID = uuid.NewString()
	s.ErrorIs(repo.Create(ctx, &dup), domain.ErrLoginTaken)

	got, err := repo.GetByLogin(ctx, "ana")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(op.ID, got.ID)
	s.Equal("pdv-01", got.TerminalID)
	s.True(got.Active)

	missing, err := repo.GetByLogin(ctx, "nadie")
	s.Require().NoError(err)
	s.Nil(missing)
}

// ═══ Motor completo sobre PostgreSQL ═══

func (s *PostgresSuite) TestEngine_EmitirYCancelar() {
	ctx := context.Background()
	s.insertIssuer(ctx)
	s.insertSale(ctx, "sale-1")

	log := zerolog.Nop()
	issuers := postgres.NewIssuerRepository(s.pool)
	sales := postgres.NewSaleRepository(s.pool)
	engine := fiscal.NewEngine(fiscal.EngineDeps{
		Issuers:        issuers,
		Sales:          sales,
		Documents:      postgres.NewFiscalDocumentRepository(s.pool),
		Municipalities: postgres.NewMunicipalityRepository(s.pool),
		Taxes:          tax.NewCalculator(sales, issuers, tax.DefaultRates()),
		Allocator: fiscal.NewSequenceAllocator(postgres.NewSequenceRepository(s.pool),
			fiscal.AllocatorConfig{Backend: "postgres", Retries: 2}, nil, log),
		Router: fiscal.NewEnvironmentRouter(fiscal.RouterDeps{Logger: log}),
		Logger: log,
	})

	res, err := engine.Emit(ctx, fiscal.EmitRequest{SaleID: "sale-1", Model: entity.ModelNFCe})
	s.Require().NoError(err)
	s.Equal(entity.StatusAuthorized, res.Status)
	s.Equal(int64(1), res.Number)
	s.Equal("100.00", res.Totals.Grand.StringFixed(2))

	_, err = engine.Emit(ctx, fiscal.EmitRequest{SaleID: "sale-1", Model: entity.ModelNFCe})
	s.ErrorIs(err, domain.ErrDuplicateActiveDocument)

	cancel, err := engine.Cancel(ctx, res.AccessKey, "Cliente desistiu da compra")
	s.Require().NoError(err)
	s.Equal(entity.StatusCancelled, cancel.Status)

	again, err := engine.Emit(ctx, fiscal.EmitRequest{SaleID: "sale-1", Model: entity.ModelNFCe})
	s.Require().NoError(err)
	s.Equal(int64(2), again.Number)
}
