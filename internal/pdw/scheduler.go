package pdw

import "esm_pdw/pkg/models"

// DefaultLossProbability é a probabilidade de perda de pulso (Bernoulli)
const DefaultLossProbability = 0.02

// scheduler mantém o índice do próximo pulso de um emissor.
// O TOA agendado é sempre n * pri_us, sem acumular erro de arredondamento.
type scheduler struct {
	cfg  models.EmitterConfig
	next int64
}

// nextTOAUS é o TOA agendado do próximo pulso
func (s *scheduler) nextTOAUS() float64 {
	return float64(s.next) * s.cfg.PRIUS
}

// catchUp processa, em ordem de TOA, todos os pulsos devidos até nowUS.
// O agendamento avança exatamente pri_us por pulso; o jitter só existe no PRI reportado.
func (s *scheduler) catchUp(nowUS float64, e *Engine, batch []models.PDW) []models.PDW {
	for s.nextTOAUS() <= nowUS {
		toa := s.nextTOAUS()
		s.next++

		if e.rng.Float64() < e.lossProbability {
			e.observe(s.cfg.TrackID, toa, Lost)
			continue
		}

		pdw, outcome := e.illum.illuminate(&s.cfg, toa)
		e.observe(s.cfg.TrackID, toa, outcome)
		if outcome == Detected {
			batch = append(batch, pdw)
		}
	}
	return batch
}
