package emitter

import (
	"errors"
	"fmt"
	"math"

	"esm_pdw/pkg/models"
)

var (
	// ErrInvalidTrackID indica track_id não positivo.
	ErrInvalidTrackID = errors.New("emitter: track_id must be positive")

	// ErrDuplicateTrackID indica dois emissores com o mesmo track_id.
	ErrDuplicateTrackID = errors.New("emitter: duplicate track_id")

	// ErrInvalidPRI indica pri_us não positivo.
	ErrInvalidPRI = errors.New("emitter: pri_us must be > 0")

	// ErrInvalidBeamWidth indica beam_width_deg não positivo.
	ErrInvalidBeamWidth = errors.New("emitter: beam_width_deg must be > 0")

	// ErrInvalidScanPeriod indica scan_period_s não positivo.
	ErrInvalidScanPeriod = errors.New("emitter: scan_period_s must be > 0")

	// ErrInvalidBearing indica bearing_deg fora de [0, 360).
	ErrInvalidBearing = errors.New("emitter: bearing_deg must be in [0, 360)")

	// ErrEmpty indica registro sem emissores.
	ErrEmpty = errors.New("emitter: no emitters configured")
)

// Registry guarda a configuração imutável dos emissores, na ordem de cadastro
type Registry struct {
	emitters []models.EmitterConfig
	byID     map[int]int
}

// NewRegistry valida todos os emissores e cria o registro.
// Configuração inválida é rejeitada aqui, nunca no meio do stream.
func NewRegistry(configs []models.EmitterConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, ErrEmpty
	}

	r := &Registry{
		emitters: make([]models.EmitterConfig, 0, len(configs)),
		byID:     make(map[int]int, len(configs)),
	}

	for _, cfg := range configs {
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		if _, exists := r.byID[cfg.TrackID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTrackID, cfg.TrackID)
		}
		r.byID[cfg.TrackID] = len(r.emitters)
		r.emitters = append(r.emitters, cfg)
	}

	return r, nil
}

// Validate verifica os parâmetros físicos de um emissor
func Validate(cfg models.EmitterConfig) error {
	switch {
	case cfg.TrackID <= 0:
		return fmt.Errorf("%w: got %d", ErrInvalidTrackID, cfg.TrackID)
	case !(cfg.PRIUS > 0) || math.IsInf(cfg.PRIUS, 0):
		return fmt.Errorf("track %d: %w: got %v", cfg.TrackID, ErrInvalidPRI, cfg.PRIUS)
	case !(cfg.BeamWidthDeg > 0) || math.IsInf(cfg.BeamWidthDeg, 0):
		return fmt.Errorf("track %d: %w: got %v", cfg.TrackID, ErrInvalidBeamWidth, cfg.BeamWidthDeg)
	case !(cfg.ScanPeriodS > 0) || math.IsInf(cfg.ScanPeriodS, 0):
		return fmt.Errorf("track %d: %w: got %v", cfg.TrackID, ErrInvalidScanPeriod, cfg.ScanPeriodS)
	case !(cfg.BearingDeg >= 0 && cfg.BearingDeg < 360):
		return fmt.Errorf("track %d: %w: got %v", cfg.TrackID, ErrInvalidBearing, cfg.BearingDeg)
	}
	return nil
}

// Get retorna a configuração de um emissor
func (r *Registry) Get(trackID int) (models.EmitterConfig, bool) {
	idx, ok := r.byID[trackID]
	if !ok {
		return models.EmitterConfig{}, false
	}
	return r.emitters[idx], true
}

// All retorna uma cópia dos emissores na ordem de cadastro
func (r *Registry) All() []models.EmitterConfig {
	out := make([]models.EmitterConfig, len(r.emitters))
	copy(out, r.emitters)
	return out
}

// Len retorna o número de emissores
func (r *Registry) Len() int {
	return len(r.emitters)
}

// DefaultConfigs retorna o cenário padrão com cinco radares
func DefaultConfigs() []models.EmitterConfig {
	return []models.EmitterConfig{
		{TrackID: 1, PRIUS: 1000, CenterFreqMHz: 9400, BandwidthMHz: 50, BearingDeg: 45, DisplayTag: "#FF5555", ScanPeriodS: 3.0, BeamWidthDeg: 2.5, BaseAmplitudeDBm: -30},
		{TrackID: 2, PRIUS: 450, CenterFreqMHz: 3100, BandwidthMHz: 20, BearingDeg: 120, DisplayTag: "#55FF55", ScanPeriodS: 5.2, BeamWidthDeg: 3.0, BaseAmplitudeDBm: -42},
		{TrackID: 3, PRIUS: 1200, CenterFreqMHz: 5600, BandwidthMHz: 30, BearingDeg: 280, DisplayTag: "#5555FF", ScanPeriodS: 8.0, BeamWidthDeg: 2.0, BaseAmplitudeDBm: -35},
		{TrackID: 4, PRIUS: 800, CenterFreqMHz: 10200, BandwidthMHz: 100, BearingDeg: 15, DisplayTag: "#FFFF55", ScanPeriodS: 4.5, BeamWidthDeg: 2.8, BaseAmplitudeDBm: -50},
		{TrackID: 5, PRIUS: 600, CenterFreqMHz: 8800, BandwidthMHz: 40, BearingDeg: 190, DisplayTag: "#FF55FF", ScanPeriodS: 10.0, BeamWidthDeg: 2.2, BaseAmplitudeDBm: -38},
	}
}
