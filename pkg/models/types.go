package models

// EmitterConfig representa os parâmetros estáticos de um emissor radar
type EmitterConfig struct {
	TrackID          int     `json:"track_id" mapstructure:"track_id"`
	PRIUS            float64 `json:"pri_us" mapstructure:"pri_us"`
	CenterFreqMHz    float64 `json:"center_freq_mhz" mapstructure:"center_freq_mhz"`
	BandwidthMHz     float64 `json:"bandwidth_mhz" mapstructure:"bandwidth_mhz"`
	BearingDeg       float64 `json:"bearing_deg" mapstructure:"bearing_deg"`
	BeamWidthDeg     float64 `json:"beam_width_deg" mapstructure:"beam_width_deg"`
	ScanPeriodS      float64 `json:"scan_period_s" mapstructure:"scan_period_s"`
	BaseAmplitudeDBm float64 `json:"base_amplitude_dbm" mapstructure:"base_amplitude_dbm"`

	// DisplayTag é usado apenas pela visualização (cor do traço no cliente web)
	DisplayTag string `json:"display_tag" mapstructure:"display_tag"`
}

// PDW representa um Pulse Descriptor Word medido pelo sensor.
// As chaves JSON seguem o contrato do cliente web.
type PDW struct {
	TOAUS          float64 `json:"TOA"`
	TrackID        int     `json:"TrackID"`
	FreqMHz        float64 `json:"Freq"`
	AmplitudeDBm   float64 `json:"AM"`
	FreqModulation float64 `json:"FM"`
	PulseWidthUS   float64 `json:"PW"`
	AOADeg         float64 `json:"AOA"`
	PRIUS          float64 `json:"PRI"`
	DisplayTag     string  `json:"Color"`
}

// ArchivedPDW é o registro gravado em snapshot (sem o campo de visualização)
type ArchivedPDW struct {
	TOAUS          float64 `json:"TOA"`
	TrackID        int     `json:"TrackID"`
	FreqMHz        float64 `json:"Freq"`
	AmplitudeDBm   float64 `json:"AM"`
	FreqModulation float64 `json:"FM"`
	PulseWidthUS   float64 `json:"PW"`
	AOADeg         float64 `json:"AOA"`
	PRIUS          float64 `json:"PRI"`
}

// Archive remove o display tag do PDW
func (p PDW) Archive() ArchivedPDW {
	return ArchivedPDW{
		TOAUS:          p.TOAUS,
		TrackID:        p.TrackID,
		FreqMHz:        p.FreqMHz,
		AmplitudeDBm:   p.AmplitudeDBm,
		FreqModulation: p.FreqModulation,
		PulseWidthUS:   p.PulseWidthUS,
		AOADeg:         p.AOADeg,
		PRIUS:          p.PRIUS,
	}
}

// BatchMessageType é a tag enviada junto com cada lote
const BatchMessageType = "pdw_batch"

// BatchMessage é a mensagem enviada aos consumidores do stream
type BatchMessage struct {
	Type string `json:"type"`
	Data []PDW  `json:"data"`
}

// NewBatchMessage envolve um lote com a tag de tipo. Um lote nil vira lista vazia no JSON.
func NewBatchMessage(batch []PDW) BatchMessage {
	if batch == nil {
		batch = []PDW{}
	}
	return BatchMessage{Type: BatchMessageType, Data: batch}
}

// SnapshotMetadata é o cabeçalho do arquivo de snapshot
type SnapshotMetadata struct {
	Version    string `json:"version"`
	Timestamp  string `json:"timestamp"`
	SensorID   string `json:"sensor_id"`
	PulseCount int    `json:"pulse_count"`
}

// Snapshot é o envelope completo gravado em disco
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	PDWs     []ArchivedPDW    `json:"pdws"`
}

// SnapshotRequest é o corpo aceito por POST /api/snapshot
type SnapshotRequest struct {
	PDWs []PDW `json:"pdws"`
}

// SnapshotResponse é a resposta de POST /api/snapshot
type SnapshotResponse struct {
	OK       bool   `json:"ok"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}
