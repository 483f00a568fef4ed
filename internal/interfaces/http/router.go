package http

import (
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jhoicas/emisor-fiscal/internal/application/auth"
	"github.com/jhoicas/emisor-fiscal/internal/application/fiscal"
	"github.com/jhoicas/emisor-fiscal/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine      *fiscal.Engine
	Danfe       *fiscal.DanfeUseCase
	Auth        *auth.AuthUseCase // nil = sin /api/auth (tokens emitidos fuera)
	JWTSecret   string
	ServiceName string
	SwaggerFile string // vacío = sin /docs
	Logger      zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.SwaggerFile != "" {
		// Swagger UI en local: http://localhost:<port>/docs
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: deps.SwaggerFile,
			Path:     "docs",
			Title:    "Emisor Fiscal API",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	requireAuth := AuthMiddleware(deps.JWTSecret)

	if deps.Auth != nil {
		ah := NewAuthHandler(deps.Auth)
		api.Post("/auth/login", ah.Login)
		api.Post("/auth/operators", requireAuth, RequireRole(jwt.RoleAdmin), ah.Register)
	}

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", requireAuth)

	h := NewFiscalHandler(deps.Engine, deps.Danfe, deps.Logger)
	docs := protected.Group("/fiscal-documents")
	docs.Post("/", h.Emit)
	docs.Post("/reconcile", RequireRole(jwt.RoleAdmin), h.Reconcile)
	docs.Get("/:key", h.Get)
	docs.Get("/:key/danfe", h.Danfe)
	docs.Post("/:key/retry", h.Retry)
	docs.Post("/:key/cancel", RequireRole(jwt.RoleAdmin, jwt.RoleGerente), h.Cancel)
}
