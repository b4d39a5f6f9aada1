package pdw

import (
	"math"
	"time"
)

// MicrosPerSecond é a escala fixa entre tempo real e tempo de simulação (tempo real, sem aceleração)
const MicrosPerSecond = 1e6

// SimTimeUS converte tempo decorrido em tempo de simulação (microssegundos desde o início)
func SimTimeUS(elapsed time.Duration) float64 {
	return elapsed.Seconds() * MicrosPerSecond
}

// ElapsedSeconds converte um TOA de simulação de volta em segundos decorridos
func ElapsedSeconds(toaUS float64) float64 {
	return toaUS / MicrosPerSecond
}

// RotationAngle retorna o ângulo de apontamento da antena em [0, 360)
func RotationAngle(elapsedS, scanPeriodS float64) float64 {
	return normalizeDeg(elapsedS * 360.0 / scanPeriodS)
}

// normalizeDeg dobra um ângulo para [0, 360)
func normalizeDeg(a float64) float64 {
	a = math.Mod(a, 360.0)
	if a < 0 {
		a += 360.0
	}
	if a >= 360.0 {
		a = 0
	}
	return a
}
