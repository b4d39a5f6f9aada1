package pdw

import (
	"math"

	"esm_pdw/pkg/models"
)

const (
	// HalfPowerDB é a queda de ganho em |ângulo relativo| = beam_width/2
	HalfPowerDB = 3.0

	// DefaultDetectionThresholdDB é o limiar relativo ao boresight
	DefaultDetectionThresholdDB = -40.0

	// NominalPulseWidthUS é a largura de pulso nominal reportada
	NominalPulseWidthUS = 10.0
)

// Ruído de medição (amplitude uniforme ±meia-largura)
const (
	amplitudeNoiseDB  = 1.0
	freqNoiseMHz      = 2.0
	aoaNoiseDeg       = 0.5
	pulseWidthNoiseUS = 0.1
	priJitterUS       = 0.5
	maxFreqModulation = 2.0
)

// RandomSource é a fonte de aleatoriedade injetável (ex: *rand.Rand)
type RandomSource interface {
	Float64() float64
}

// Outcome é o destino de um pulso agendado
type Outcome int

const (
	// Lost: pulso perdido antes de qualquer medição
	Lost Outcome = iota
	// OutOfBeam: fora da janela de iluminação (rejeição barata)
	OutOfBeam
	// BelowThreshold: iluminado, mas abaixo do limiar de detecção
	BelowThreshold
	// Detected: PDW emitido
	Detected
)

func (o Outcome) String() string {
	switch o {
	case Lost:
		return "lost"
	case OutOfBeam:
		return "out_of_beam"
	case BelowThreshold:
		return "below_threshold"
	case Detected:
		return "detected"
	}
	return "unknown"
}

// RelativeAngle dobra o ângulo de rotação para (-180, 180]
func RelativeAngle(rotationDeg float64) float64 {
	if rotationDeg > 180 {
		return rotationDeg - 360
	}
	return rotationDeg
}

// InBeamWindow informa se o ângulo relativo está dentro de 2x a largura de feixe
func InBeamWindow(relativeDeg, beamWidthDeg float64) bool {
	return math.Abs(relativeDeg) < 2*beamWidthDeg
}

// BeamGainDB aproxima o lóbulo principal por uma gaussiana em dB,
// com -3 dB exatos em metade da largura de feixe e -48 dB na borda da janela (2x).
func BeamGainDB(relativeDeg, beamWidthDeg float64) float64 {
	x := 2 * relativeDeg / beamWidthDeg
	return -HalfPowerDB * x * x
}

// illuminator decide a detecção e sintetiza as medições de um pulso não perdido
type illuminator struct {
	thresholdDB float64
	rng         RandomSource
}

// illuminate avalia um pulso no TOA agendado. A geometria ignora bearing_deg;
// o bearing só alimenta o AOA reportado.
func (il *illuminator) illuminate(cfg *models.EmitterConfig, toaUS float64) (models.PDW, Outcome) {
	rotation := RotationAngle(ElapsedSeconds(toaUS), cfg.ScanPeriodS)
	relative := RelativeAngle(rotation)

	if !InBeamWindow(relative, cfg.BeamWidthDeg) {
		return models.PDW{}, OutOfBeam
	}

	gainDB := BeamGainDB(relative, cfg.BeamWidthDeg)
	if !(gainDB > il.thresholdDB) {
		return models.PDW{}, BelowThreshold
	}

	// ordem dos sorteios fixa: reprodutível com semente fixa
	am := cfg.BaseAmplitudeDBm + gainDB + il.uniform(-amplitudeNoiseDB, amplitudeNoiseDB)
	freq := cfg.CenterFreqMHz + il.uniform(-freqNoiseMHz, freqNoiseMHz)
	fm := il.uniform(0, maxFreqModulation)
	pw := NominalPulseWidthUS + il.uniform(-pulseWidthNoiseUS, pulseWidthNoiseUS)
	aoa := normalizeDeg(cfg.BearingDeg + il.uniform(-aoaNoiseDeg, aoaNoiseDeg))
	pri := cfg.PRIUS + il.uniform(-priJitterUS, priJitterUS)

	return models.PDW{
		TOAUS:          toaUS,
		TrackID:        cfg.TrackID,
		FreqMHz:        freq,
		AmplitudeDBm:   am,
		FreqModulation: fm,
		PulseWidthUS:   pw,
		AOADeg:         aoa,
		PRIUS:          pri,
		DisplayTag:     cfg.DisplayTag,
	}, Detected
}

func (il *illuminator) uniform(a, b float64) float64 {
	return a + (b-a)*il.rng.Float64()
}
