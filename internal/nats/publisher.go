package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"esm_pdw/internal/logger"
	"esm_pdw/pkg/models"

	"github.com/nats-io/nats.go"
)

// Publisher publica lotes de PDW e eventos de snapshot no NATS.
// Sem conexão, as publicações são ignoradas sem erro.
type Publisher struct {
	conn            *nats.Conn
	subject         string
	snapshotSubject string
	mutex           sync.Mutex
	enabled         bool
	log             *logger.SystemLogger
}

// NewPublisher cria um novo publisher NATS
func NewPublisher(subject, snapshotSubject string, log *logger.SystemLogger) *Publisher {
	return &Publisher{
		subject:         subject,
		snapshotSubject: snapshotSubject,
		log:             log,
	}
}

// Connect conecta ao servidor NATS com reconexão infinita
func (p *Publisher) Connect(natsURL string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	opts := []nats.Option{
		nats.Name("PDW-Stream-Publisher"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			p.log.LogNATSDisconnected(err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.log.LogNATSConnected(nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			p.log.LogWarning("nats", "connection closed")
		}),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		p.enabled = false
		return fmt.Errorf("erro ao conectar ao NATS: %w", err)
	}

	p.conn = conn
	p.enabled = true
	p.log.LogNATSConnected(natsURL)
	return nil
}

// Name identifica o sink
func (p *Publisher) Name() string {
	return "nats"
}

// PublishBatch publica um lote no subject configurado
func (p *Publisher) PublishBatch(msg models.BatchMessage) error {
	return p.PublishWithSubject(p.subject, msg)
}

// PublishSnapshot anuncia um snapshot gravado
func (p *Publisher) PublishSnapshot(meta models.SnapshotMetadata, filename string) error {
	event := struct {
		Filename string                  `json:"filename"`
		Metadata models.SnapshotMetadata `json:"metadata"`
	}{filename, meta}
	return p.PublishWithSubject(p.snapshotSubject, event)
}

// PublishWithSubject serializa e publica em um subject específico
func (p *Publisher) PublishWithSubject(subject string, data interface{}) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.enabled || p.conn == nil {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("erro ao serializar dados: %w", err)
	}

	if err := p.conn.Publish(subject, jsonData); err != nil {
		return fmt.Errorf("erro ao publicar no NATS em %s: %w", subject, err)
	}
	return nil
}

// Disconnect drena e fecha a conexão
func (p *Publisher) Disconnect() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
		p.conn = nil
		p.enabled = false
	}
}

// IsConnected verifica se está conectado ao NATS
func (p *Publisher) IsConnected() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.enabled && p.conn != nil && p.conn.IsConnected()
}

// IsEnabled verifica se NATS está habilitado
func (p *Publisher) IsEnabled() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.enabled
}
