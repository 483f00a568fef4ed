package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/emisor-fiscal/internal/application/auth"
	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/internal/domain/repository"
	infrabolt "github.com/jhoicas/emisor-fiscal/internal/infrastructure/bolt"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/metrics"
	infranfe "github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/nfe/signer"
	infrapdf "github.com/jhoicas/emisor-fiscal/internal/infrastructure/pdf"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/emisor-fiscal/internal/infrastructure/redis"
	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/tax"
	httpRouter "github.com/jhoicas/emisor-fiscal/internal/interfaces/http"
	"github.com/jhoicas/emisor-fiscal/pkg/config"
	"github.com/jhoicas/emisor-fiscal/pkg/logger"
)

const reconcileBatch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.Log.Level,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sequence_backend", cfg.Fiscal.SequenceBackend).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, log.Component("migrate")); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	sequences, closeSequences, err := openSequenceStore(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Fiscal.SequenceBackend).Msg("contador de numeración")
	}
	defer closeSequences()

	issuerRepo := postgres.NewIssuerRepository(pool)
	saleRepo := postgres.NewSaleRepository(pool)
	documentRepo := postgres.NewFiscalDocumentRepository(pool)
	municipalityRepo := postgres.NewMunicipalityRepository(pool)
	operatorRepo := postgres.NewOperatorRepository(pool)

	fiscalMetrics := metrics.New()

	// Certificado A1: sin él la producción queda sin firma y el router la rechaza.
	var cert *tls.Certificate
	if cfg.Fiscal.CertPath != "" {
		c, err := signer.LoadFromP12(cfg.Fiscal.CertPath, cfg.Fiscal.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Fiscal.CertPath).Msg("certificado A1")
		}
		cert = &c
	}

	// Production queda nil hasta tener el cliente SOAP de la SEFAZ; los emisores en
	// homologación usan el simulador del router.
	router := fiscal.NewEnvironmentRouter(fiscal.RouterDeps{
		Signer:      signer.NewDigitalSignatureService(),
		Certificate: cert,
		Timeout:     cfg.Fiscal.AuthorizationTimeout,
		Metrics:     fiscalMetrics,
		Logger:      log.Component("router"),
	})

	allocator := fiscal.NewSequenceAllocator(sequences, fiscal.AllocatorConfig{
		Backend: cfg.Fiscal.SequenceBackend,
		Retries: cfg.Fiscal.SequenceRetries,
		Backoff: cfg.Fiscal.SequenceBackoff,
	}, fiscalMetrics, log.Component("sequence"))

	engine := fiscal.NewEngine(fiscal.EngineDeps{
		Issuers:        issuerRepo,
		Sales:          saleRepo,
		Documents:      documentRepo,
		Municipalities: municipalityRepo,
		Taxes:          tax.NewCalculator(saleRepo, issuerRepo, tax.DefaultRates()),
		Allocator:      allocator,
		Assembler:      infranfe.NewAssembler(cfg.App.Name),
		Verification: infranfe.NewVerificationCodeGenerator(infranfe.VerificationURLs{
			QRCodeProduction:     cfg.Fiscal.QRCodeURLProd,
			QRCodeHomologation:   cfg.Fiscal.QRCodeURLHomolog,
			ConsultaProduction:   cfg.Fiscal.ConsultaURLProd,
			ConsultaHomologation: cfg.Fiscal.ConsultaURLHomolog,
		}),
		Router:  router,
		Metrics: fiscalMetrics,
		Logger:  log.Component("engine"),
	})

	// DANFE: representación gráfica del documento autorizado
	danfeUC := fiscal.NewDanfeUseCase(documentRepo, issuerRepo, infrapdf.NewDanfeGenerator())

	authUC := auth.NewAuthUseCase(operatorRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	if cfg.Auth.AdminLogin != "" {
		created, err := authUC.EnsureAdmin(ctx, cfg.Auth.AdminLogin, cfg.Auth.AdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("administrador inicial")
		}
		if created {
			log.Info().Str("login", cfg.Auth.AdminLogin).Msg("administrador inicial creado")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.Fiscal.AuthorizationTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:      engine,
		Danfe:       danfeUC,
		Auth:        authUC,
		JWTSecret:   cfg.JWT.Secret,
		ServiceName: cfg.App.Name,
		SwaggerFile: "./docs/swagger.json",
		Logger:      log.Component("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			return fmt.Errorf("servidor HTTP: %w", err)
		}
		return nil
	})
	if cfg.Fiscal.ReconcileInterval > 0 {
		g.Go(func() error {
			reconcileLoop(gctx, engine, cfg.Fiscal, log.Component("reconcile"))
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	log.Info().Msg("aplicación detenida")
}

// openSequenceStore elige el almacén del contador según SEQUENCE_BACKEND.
func openSequenceStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (repository.SequenceRepository, func(), error) {
	switch cfg.Fiscal.SequenceBackend {
	case config.SequenceBackendRedis:
		client, err := infraredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return infraredis.NewSequenceRepository(client), func() { _ = client.Close() }, nil
	case config.SequenceBackendBolt:
		store, err := infrabolt.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.SequenceBackendPostgres, "":
		return postgres.NewSequenceRepository(pool), func() {}, nil
	default:
		return nil, nil, errors.New("backend de numeración desconocido: " + cfg.Fiscal.SequenceBackend)
	}
}

// reconcileLoop reintenta periódicamente los documentos que quedaron pendientes.
func reconcileLoop(ctx context.Context, engine *fiscal.Engine, cfg config.FiscalConfig, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := engine.ReconcilePending(ctx, cfg.ReconcileOlderThan, reconcileBatch)
			if err != nil {
				log.Error().Err(err).Msg("barrido de pendientes")
				continue
			}
			if report.Processed > 0 {
				log.Info().
					Int("processed", report.Processed).
					Int("authorized", report.Authorized).
					Int("rejected", report.Rejected).
					Int("still_pending", report.StillPending).
					Msg("barrido de pendientes")
			}
		}
	}
}
