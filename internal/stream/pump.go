package stream

import (
	"context"
	"iter"
	"time"

	"esm_pdw/internal/logger"
	"esm_pdw/pkg/models"
)

// Source produz a sequência de lotes (pdw.Engine)
type Source interface {
	Batches() iter.Seq[[]models.PDW]
}

// Sink recebe cada lote já envolvido com a tag de tipo
type Sink interface {
	Name() string
	PublishBatch(msg models.BatchMessage) error
}

// Observer recebe contadores do pump (metrics.Collector)
type Observer interface {
	ObserveBatch(size int)
	ObservePublish(sink string, err error)
}

// Config controla a política de envio
type Config struct {
	SuppressEmpty  bool          // não encaminhar lotes vazios
	StatusInterval time.Duration // intervalo do STREAM_STATUS (0 desliga)
}

// Pump é o único assinante do motor: puxa lotes e os entrega aos sinks.
// Falha de um sink é registrada e não interrompe o stream.
type Pump struct {
	source   Source
	sinks    []Sink
	config   Config
	log      *logger.SystemLogger
	observer Observer
	clients  func() int
	now      func() time.Time

	batches int64
	pulses  int64
}

// NewPump cria o pump
func NewPump(source Source, config Config, log *logger.SystemLogger, sinks ...Sink) *Pump {
	return &Pump{
		source: source,
		sinks:  sinks,
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// SetObserver registra o observador de métricas
func (p *Pump) SetObserver(o Observer) {
	p.observer = o
}

// SetClientCounter informa quantos consumidores estão conectados (apenas para status)
func (p *Pump) SetClientCounter(fn func() int) {
	p.clients = fn
}

// Run consome o motor até o contexto terminar
func (p *Pump) Run(ctx context.Context) error {
	lastStatus := p.now()

	for batch := range p.source.Batches() {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.batches++
		p.pulses += int64(len(batch))
		if p.observer != nil {
			p.observer.ObserveBatch(len(batch))
		}

		if len(batch) > 0 || !p.config.SuppressEmpty {
			p.forward(models.NewBatchMessage(batch))
		}

		if p.config.StatusInterval > 0 && p.now().Sub(lastStatus) >= p.config.StatusInterval {
			lastStatus = p.now()
			clients := 0
			if p.clients != nil {
				clients = p.clients()
			}
			p.log.LogStreamStatus(p.batches, p.pulses, clients)
		}
	}
	return nil
}

func (p *Pump) forward(msg models.BatchMessage) {
	for _, sink := range p.sinks {
		err := sink.PublishBatch(msg)
		if p.observer != nil {
			p.observer.ObservePublish(sink.Name(), err)
		}
		if err != nil {
			p.log.LogCriticalError(sink.Name(), "publish_batch", err)
		}
	}
}

// Totals retorna lotes e pulsos encaminhados (use após Run retornar)
func (p *Pump) Totals() (batches, pulses int64) {
	return p.batches, p.pulses
}
