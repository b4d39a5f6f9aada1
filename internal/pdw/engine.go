// Package pdw implementa o motor de geração de PDWs: agenda os pulsos de cada
// emissor, modela a iluminação da antena rotativa, aplica o limiar de detecção
// e injeta o ruído de medição.
//
// O motor é single-threaded. Cada consumidor que precise de uma simulação
// independente deve criar seu próprio Engine; fan-out é responsabilidade de
// quem consome o stream.
package pdw

import (
	"iter"
	"math/rand"
	"time"

	"esm_pdw/internal/emitter"
	"esm_pdw/pkg/models"
)

// DefaultTickInterval é a pausa entre lotes (apenas para limitar CPU)
const DefaultTickInterval = 10 * time.Millisecond

// Clock retorna a hora atual
type Clock func() time.Time

// Observer recebe o destino de cada pulso agendado
type Observer interface {
	ObservePulse(trackID int, toaUS float64, outcome Outcome)
}

// Engine gera lotes de PDWs a partir do relógio de parede
type Engine struct {
	schedulers      []*scheduler
	clock           Clock
	sleep           func(time.Duration)
	start           time.Time
	rng             RandomSource
	illum           illuminator
	lossProbability float64
	tickInterval    time.Duration
	observer        Observer
}

// Option configura o Engine
type Option func(*Engine)

// WithClock injeta o relógio (testes)
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSleep injeta a pausa entre lotes (testes)
func WithSleep(s func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = s }
}

// WithRand injeta a fonte aleatória
func WithRand(r RandomSource) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSeed usa um gerador math/rand com semente fixa
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// WithTickInterval altera a pausa entre lotes
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithLossProbability altera a probabilidade de perda de pulso
func WithLossProbability(p float64) Option {
	return func(e *Engine) { e.lossProbability = p }
}

// WithDetectionThreshold altera o limiar de detecção (dB relativo ao boresight)
func WithDetectionThreshold(db float64) Option {
	return func(e *Engine) { e.illum.thresholdDB = db }
}

// WithObserver registra um observador de pulsos
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New cria um motor com estado próprio. O instante de início é lido do relógio aqui.
func New(reg *emitter.Registry, opts ...Option) *Engine {
	e := &Engine{
		clock:           time.Now,
		sleep:           time.Sleep,
		lossProbability: DefaultLossProbability,
		tickInterval:    DefaultTickInterval,
		illum:           illuminator{thresholdDB: DefaultDetectionThresholdDB},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.illum.rng = e.rng

	for _, cfg := range reg.All() {
		e.schedulers = append(e.schedulers, &scheduler{cfg: cfg})
	}

	e.start = e.clock()
	return e
}

// Now retorna o tempo de simulação atual em microssegundos
func (e *Engine) Now() float64 {
	return SimTimeUS(e.clock().Sub(e.start))
}

// Tick executa uma passada por todos os emissores e retorna o lote,
// na ordem dos emissores (não ordenado globalmente por TOA).
func (e *Engine) Tick() []models.PDW {
	nowUS := e.Now()
	var batch []models.PDW
	for _, s := range e.schedulers {
		batch = s.catchUp(nowUS, e, batch)
	}
	return batch
}

// Batches é a sequência preguiçosa e infinita de lotes.
// O consumidor encerra saindo do range.
func (e *Engine) Batches() iter.Seq[[]models.PDW] {
	return func(yield func([]models.PDW) bool) {
		for {
			if !yield(e.Tick()) {
				return
			}
			if e.tickInterval > 0 {
				e.sleep(e.tickInterval)
			}
		}
	}
}

// NextTOA retorna o próximo TOA agendado de um emissor
func (e *Engine) NextTOA(trackID int) (float64, bool) {
	for _, s := range e.schedulers {
		if s.cfg.TrackID == trackID {
			return s.nextTOAUS(), true
		}
	}
	return 0, false
}

func (e *Engine) observe(trackID int, toaUS float64, outcome Outcome) {
	if e.observer != nil {
		e.observer.ObservePulse(trackID, toaUS, outcome)
	}
}
