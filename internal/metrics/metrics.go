package metrics

import (
	"strconv"

	"esm_pdw/internal/pdw"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "pdwsim"

// Collector agrupa as métricas do simulador num registry próprio
type Collector struct {
	registry *prometheus.Registry

	pulses    *prometheus.CounterVec
	batches   prometheus.Counter
	batchSize prometheus.Histogram
	clients   prometheus.Gauge
	snapshots *prometheus.CounterVec
	published *prometheus.CounterVec
}

// New cria e registra as métricas
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_total",
			Help:      "Scheduled pulses by emitter and outcome.",
		}, []string{"track_id", "outcome"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches produced by the engine.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "PDWs per batch.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket consumers.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot writes by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_batches_total",
			Help:      "Batches forwarded per sink and result.",
		}, []string{"sink", "result"}),
	}

	c.registry.MustRegister(
		c.pulses, c.batches, c.batchSize, c.clients, c.snapshots, c.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry expõe o registry para o handler /metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObservePulse implementa pdw.Observer
func (c *Collector) ObservePulse(trackID int, _ float64, outcome pdw.Outcome) {
	c.pulses.WithLabelValues(strconv.Itoa(trackID), outcome.String()).Inc()
}

// ObserveBatch conta um lote e seu tamanho
func (c *Collector) ObserveBatch(size int) {
	c.batches.Inc()
	c.batchSize.Observe(float64(size))
}

// SetClients atualiza o número de consumidores websocket
func (c *Collector) SetClients(n int) {
	c.clients.Set(float64(n))
}

// ObserveSnapshot conta uma gravação de snapshot
func (c *Collector) ObserveSnapshot(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.snapshots.WithLabelValues(result).Inc()
}

// ObservePublish conta um envio para um sink
func (c *Collector) ObservePublish(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.published.WithLabelValues(sink, result).Inc()
}
