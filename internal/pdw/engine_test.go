package pdw

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"esm_pdw/internal/emitter"
	"esm_pdw/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type pulseEvent struct {
	trackID int
	toaUS   float64
	outcome Outcome
}

type recorder struct {
	events []pulseEvent
}

func (r *recorder) ObservePulse(trackID int, toaUS float64, outcome Outcome) {
	r.events = append(r.events, pulseEvent{trackID, toaUS, outcome})
}

func (r *recorder) count(o Outcome) int {
	n := 0
	for _, ev := range r.events {
		if ev.outcome == o {
			n++
		}
	}
	return n
}

func mustRegistry(t *testing.T, cfgs ...models.EmitterConfig) *emitter.Registry {
	t.Helper()
	reg, err := emitter.NewRegistry(cfgs)
	require.NoError(t, err)
	return reg
}

func scenarioEmitter() models.EmitterConfig {
	return models.EmitterConfig{
		TrackID:          1,
		PRIUS:            1000,
		CenterFreqMHz:    9400,
		BandwidthMHz:     50,
		BearingDeg:       0,
		BeamWidthDeg:     2.5,
		ScanPeriodS:      3.0,
		BaseAmplitudeDBm: -30,
		DisplayTag:       "#FF5555",
	}
}

// omniEmitter tem feixe tão largo que todo pulso não perdido é detectado
func omniEmitter(trackID int, bearing float64) models.EmitterConfig {
	return models.EmitterConfig{
		TrackID:          trackID,
		PRIUS:            100,
		CenterFreqMHz:    9400,
		BearingDeg:       bearing,
		BeamWidthDeg:     200,
		ScanPeriodS:      1.0,
		BaseAmplitudeDBm: -30,
		DisplayTag:       "#00FF00",
	}
}

func TestBeamGainDB_HalfPowerAtHalfBeamwidth(t *testing.T) {
	assert.InDelta(t, -3.0, BeamGainDB(1.25, 2.5), 1e-6)
	assert.InDelta(t, -3.0, BeamGainDB(-1.25, 2.5), 1e-6)
	assert.Equal(t, 0.0, BeamGainDB(0, 2.5))
	// borda da janela de iluminação fica abaixo do limiar padrão
	assert.Less(t, BeamGainDB(5.0, 2.5), DefaultDetectionThresholdDB)
}

func TestRelativeAngle_Folding(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{90, 90},
		{180, 180},
		{180.5, -179.5},
		{359, -1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, RelativeAngle(tc.in), 1e-9, "rotation %v", tc.in)
	}
}

func TestRotationAngle(t *testing.T) {
	assert.InDelta(t, 0.0, RotationAngle(0, 3), 1e-9)
	assert.InDelta(t, 180.0, RotationAngle(1.5, 3), 1e-9)
	assert.InDelta(t, 0.0, RotationAngle(3, 3), 1e-9)
	assert.InDelta(t, 120.0, RotationAngle(4, 3), 1e-9)

	for s := 0.0; s < 50; s += 0.037 {
		a := RotationAngle(s, 5.2)
		assert.GreaterOrEqual(t, a, 0.0)
		assert.Less(t, a, 360.0)
	}
}

func TestSimTimeUS(t *testing.T) {
	assert.Equal(t, 1e6, SimTimeUS(time.Second))
	assert.Equal(t, 1500.0, SimTimeUS(1500*time.Microsecond))
}

func TestScheduler_GapsEqualPRI(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	a := scenarioEmitter()
	b := omniEmitter(2, 10)
	b.PRIUS = 450

	e := New(mustRegistry(t, a, b), WithClock(clock.Now), WithSeed(42), WithObserver(rec))

	// passos irregulares, mais finos e mais grossos que o PRI
	steps := []time.Duration{7 * time.Millisecond, 300 * time.Microsecond, 23 * time.Millisecond, 100 * time.Microsecond}
	start := clock.now
	for i := 0; clock.now.Sub(start) < 2*time.Second; i++ {
		clock.Advance(steps[i%len(steps)])
		e.Tick()
	}

	nowUS := e.Now()
	perTrack := map[int][]float64{}
	for _, ev := range rec.events {
		perTrack[ev.trackID] = append(perTrack[ev.trackID], ev.toaUS)
	}

	for _, cfg := range []models.EmitterConfig{a, b} {
		toas := perTrack[cfg.TrackID]
		require.NotEmpty(t, toas)
		assert.Equal(t, 0.0, toas[0])
		for i := 1; i < len(toas); i++ {
			require.Equal(t, cfg.PRIUS, toas[i]-toas[i-1], "track %d pulse %d", cfg.TrackID, i)
		}
		// cada pulso devido foi processado exatamente uma vez
		due := 0
		for toa := 0.0; toa <= nowUS; toa += cfg.PRIUS {
			due++
		}
		assert.Equal(t, due, len(toas))

		next, ok := e.NextTOA(cfg.TrackID)
		require.True(t, ok)
		assert.Greater(t, next, nowUS)
	}
}

func TestScheduler_FractionalPRIStaysOnGrid(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	cfg := omniEmitter(3, 0)
	cfg.PRIUS = 333.3

	e := New(mustRegistry(t, cfg), WithClock(clock.Now), WithSeed(7), WithObserver(rec))

	for i := 0; i < 1000; i++ {
		clock.Advance(10 * time.Millisecond)
		e.Tick()
	}

	// todo TOA agendado é n*pri, não a soma acumulada de pri
	require.Greater(t, len(rec.events), 30000)
	for n, ev := range rec.events {
		require.Equal(t, float64(n)*cfg.PRIUS, ev.toaUS, "pulse %d", n)
	}

	next, ok := e.NextTOA(cfg.TrackID)
	require.True(t, ok)
	assert.Equal(t, float64(len(rec.events))*cfg.PRIUS, next)
}

func TestEngine_EmittedTOAsStrictlyIncreasing(t *testing.T) {
	clock := newFakeClock()
	e := New(mustRegistry(t, emitter.DefaultConfigs()...), WithClock(clock.Now), WithSeed(7))

	last := map[int]float64{}
	for i := 0; i < 2000; i++ {
		clock.Advance(10 * time.Millisecond)
		for _, p := range e.Tick() {
			if prev, ok := last[p.TrackID]; ok {
				require.Greater(t, p.TOAUS, prev)
			}
			last[p.TrackID] = p.TOAUS
		}
	}
	assert.NotEmpty(t, last)
}

func TestEngine_EmittedPulsesRespectWindowAndThreshold(t *testing.T) {
	reg := mustRegistry(t, emitter.DefaultConfigs()...)

	for _, threshold := range []float64{DefaultDetectionThresholdDB, -1.5} {
		clock := newFakeClock()
		e := New(reg, WithClock(clock.Now), WithSeed(99), WithDetectionThreshold(threshold))

		emitted := 0
		for i := 0; i < 2000; i++ {
			clock.Advance(10 * time.Millisecond)
			for _, p := range e.Tick() {
				cfg, ok := reg.Get(p.TrackID)
				require.True(t, ok)

				rel := RelativeAngle(RotationAngle(ElapsedSeconds(p.TOAUS), cfg.ScanPeriodS))
				require.Less(t, math.Abs(rel), 2*cfg.BeamWidthDeg)
				require.Greater(t, BeamGainDB(rel, cfg.BeamWidthDeg), threshold)
				emitted++
			}
		}
		assert.Positive(t, emitted, "threshold %v", threshold)
	}
}

func TestEngine_LossFractionConverges(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	cfg := omniEmitter(1, 0)
	cfg.PRIUS = 10

	e := New(mustRegistry(t, cfg), WithClock(clock.Now), WithSeed(2024), WithObserver(rec))
	for i := 0; i < 400; i++ {
		clock.Advance(10 * time.Millisecond)
		e.Tick()
	}

	total := len(rec.events)
	require.Greater(t, total, 300000)

	// desvio padrão binomial ~ 2.5e-4; tolerância de ~8 sigma
	lost := float64(rec.count(Lost)) / float64(total)
	assert.InDelta(t, DefaultLossProbability, lost, 0.002)

	// feixe omnidirecional: tudo que não se perdeu foi detectado
	assert.Equal(t, total, rec.count(Lost)+rec.count(Detected))
}

func TestEngine_MeasuredFieldRanges(t *testing.T) {
	clock := newFakeClock()
	e := New(mustRegistry(t, omniEmitter(1, 359.8), omniEmitter(2, 0.2)),
		WithClock(clock.Now), WithSeed(5))

	wrapped := false
	n := 0
	for i := 0; i < 200; i++ {
		clock.Advance(5 * time.Millisecond)
		for _, p := range e.Tick() {
			n++
			assert.GreaterOrEqual(t, p.FreqMHz, 9398.0)
			assert.LessOrEqual(t, p.FreqMHz, 9402.0)
			assert.GreaterOrEqual(t, p.AOADeg, 0.0)
			assert.Less(t, p.AOADeg, 360.0)
			assert.GreaterOrEqual(t, p.PulseWidthUS, 9.9)
			assert.LessOrEqual(t, p.PulseWidthUS, 10.1)
			assert.GreaterOrEqual(t, p.FreqModulation, 0.0)
			assert.LessOrEqual(t, p.FreqModulation, 2.0)
			assert.InDelta(t, 100.0, p.PRIUS, 0.5)
			assert.Equal(t, "#00FF00", p.DisplayTag)
			if (p.TrackID == 1 && p.AOADeg < 1) || (p.TrackID == 2 && p.AOADeg > 359) {
				wrapped = true
			}
		}
	}
	require.Greater(t, n, 10000)
	assert.True(t, wrapped, "AOA noise should wrap around 0/360")
}

func TestEngine_SingleScanScenario(t *testing.T) {
	clock := newFakeClock()
	cfg := scenarioEmitter()
	e := New(mustRegistry(t, cfg), WithClock(clock.Now), WithSeed(1))

	var all []models.PDW
	nonEmpty := 0
	for i := 0; i < 300; i++ {
		clock.Advance(10 * time.Millisecond)
		batch := e.Tick()
		if len(batch) > 0 {
			nonEmpty++
		}
		all = append(all, batch...)
	}
	require.Positive(t, nonEmpty)
	require.NotEmpty(t, all)

	peak := all[0]
	for _, p := range all {
		s := ElapsedSeconds(p.TOAUS)
		// fora da passagem pelo boresight não há pulsos
		assert.False(t, s > 0.04 && s < 2.96, "pulse at %.4fs", s)
		assert.LessOrEqual(t, p.AmplitudeDBm, -29.0)
		if p.AmplitudeDBm > peak.AmplitudeDBm {
			peak = p
		}
	}

	assert.InDelta(t, -30.0, peak.AmplitudeDBm, 1.0)
	rel := RelativeAngle(RotationAngle(ElapsedSeconds(peak.TOAUS), cfg.ScanPeriodS))
	assert.Less(t, math.Abs(rel), cfg.BeamWidthDeg/2)
}

func TestEngine_DeterministicWithSeed(t *testing.T) {
	run := func() []models.PDW {
		clock := newFakeClock()
		e := New(mustRegistry(t, emitter.DefaultConfigs()...), WithClock(clock.Now), WithRand(rand.New(rand.NewSource(11))))
		var out []models.PDW
		for i := 0; i < 500; i++ {
			clock.Advance(10 * time.Millisecond)
			out = append(out, e.Tick()...)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestEngine_BatchesPacesBetweenYields(t *testing.T) {
	clock := newFakeClock()
	var slept []time.Duration
	sleep := func(d time.Duration) {
		slept = append(slept, d)
		clock.Advance(d)
	}

	e := New(mustRegistry(t, omniEmitter(1, 90)),
		WithClock(clock.Now), WithSleep(sleep), WithSeed(3), WithTickInterval(5*time.Millisecond))

	got := 0
	for batch := range e.Batches() {
		got++
		if got > 1 {
			assert.NotEmpty(t, batch)
		}
		if got == 3 {
			break
		}
	}

	assert.Equal(t, 3, got)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, slept)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "lost", Lost.String())
	assert.Equal(t, "out_of_beam", OutOfBeam.String())
	assert.Equal(t, "below_threshold", BelowThreshold.String())
	assert.Equal(t, "detected", Detected.String())
}
