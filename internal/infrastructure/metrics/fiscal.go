package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fiscal agrupa las métricas del motor de emisión. Un *Fiscal nil no registra nada.
type Fiscal struct {
	// Documentos emitidos por modelo y estado final (authorized|rejected|pending)
	Emissions *prometheus.CounterVec

	// Cancelaciones por modelo y resultado (ok|error)
	Cancellations *prometheus.CounterVec

	// Latencia de la llamada al autorizador por ambiente
	AuthorizationLatency *prometheus.HistogramVec

	// Fallos del contador de numeración por backend
	SequenceFailures *prometheus.CounterVec

	// Errores de emisión por código estable (CONFIGURATION_INCOMPLETE, ...)
	EmissionErrors *prometheus.CounterVec
}

// New registra las métricas en el registro por defecto. Llamar una sola vez por proceso.
func New() *Fiscal {
	return &Fiscal{
		Emissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emisor_fiscal_documents_total",
			Help: "Documentos fiscales emitidos por modelo y estado",
		}, []string{"model", "status"}),

		Cancellations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emisor_fiscal_cancellations_total",
			Help: "Pedidos de cancelación por modelo y resultado",
		}, []string{"model", "result"}),

		AuthorizationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emisor_fiscal_authorization_duration_seconds",
			Help:    "Duración de la autorización ante la autoridad fiscal",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"environment"}),

		SequenceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emisor_fiscal_sequence_failures_total",
			Help: "Intentos fallidos de incremento del contador de numeración",
		}, []string{"backend"}),

		EmissionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emisor_fiscal_emission_errors_total",
			Help: "Errores de emisión por código",
		}, []string{"code"}),
	}
}

// IncrementEmission registra un documento emitido.
func (m *Fiscal) IncrementEmission(model, status string) {
	if m != nil {
		m.Emissions.WithLabelValues(model, status).Inc()
	}
}

// IncrementCancellation registra un pedido de cancelación.
func (m *Fiscal) IncrementCancellation(model, result string) {
	if m != nil {
		m.Cancellations.WithLabelValues(model, result).Inc()
	}
}

// ObserveAuthorization registra la duración de la llamada al autorizador.
func (m *Fiscal) ObserveAuthorization(environment string, d time.Duration) {
	if m != nil {
		m.AuthorizationLatency.WithLabelValues(environment).Observe(d.Seconds())
	}
}

// IncrementSequenceFailure registra un incremento fallido del contador.
func (m *Fiscal) IncrementSequenceFailure(backend string) {
	if m != nil {
		m.SequenceFailures.WithLabelValues(backend).Inc()
	}
}

// IncrementError registra un error de emisión por su código estable.
func (m *Fiscal) IncrementError(code string) {
	if m != nil {
		m.EmissionErrors.WithLabelValues(code).Inc()
	}
}
