package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	s := NewSMA(3)
	s.Update(1)
	s.Update(2)
	assert.False(t, s.Ready())

	s.Update(3)
	assert.True(t, s.Ready())
	assert.InDelta(t, 2.0, s.Value(), 1e-9)

	// Window slides: [2, 3, 10].
	s.Update(10)
	assert.InDelta(t, 5.0, s.Value(), 1e-9)
}

func TestSMAStdDev(t *testing.T) {
	s := NewSMA(4)
	for _, v := range []float64{2, 4, 4, 6} {
		s.Update(v)
	}
	// Population stddev of {2,4,4,6} is sqrt(2).
	assert.InDelta(t, 1.4142135, s.StdDev(), 1e-6)
}

func TestEMASeedsWithFirstPrice(t *testing.T) {
	e := NewEMA(10)
	e.Update(100)
	assert.InDelta(t, 100.0, e.Value(), 1e-9)
	assert.False(t, e.Ready())

	// k = 2/11; second value folds in.
	e.Update(111)
	k := 2.0 / 11.0
	assert.InDelta(t, 111*k+100*(1-k), e.Value(), 1e-9)
}

func TestRSIExtremes(t *testing.T) {
	up := NewRSI(5)
	for p := 100.0; p <= 110; p++ {
		up.Update(p)
	}
	assert.True(t, up.Ready())
	assert.InDelta(t, 100.0, up.Value(), 1e-9, "all gains pins RSI at 100")

	down := NewRSI(5)
	for p := 110.0; p >= 100; p-- {
		down.Update(p)
	}
	assert.True(t, down.Ready())
	assert.InDelta(t, 0.0, down.Value(), 1e-9, "all losses pins RSI at 0")

	flat := NewRSI(5)
	for i := 0; i < 10; i++ {
		flat.Update(100)
	}
	assert.InDelta(t, 50.0, flat.Value(), 1e-9, "no movement is neutral")
}

func TestRSIBounded(t *testing.T) {
	r := NewRSI(14)
	prices := []float64{100, 102, 101, 103, 99, 105, 104, 106, 103, 107, 108, 105, 109, 110, 108, 111}
	for _, p := range prices {
		r.Update(p)
	}
	assert.True(t, r.Ready())
	v := r.Value()
	assert.Greater(t, v, 50.0, "uptrending series should read above neutral")
	assert.LessOrEqual(t, v, 100.0)
}

func TestMACDWarmup(t *testing.T) {
	m := NewMACDLine(3, 6, 3)
	for i := 0; i < 5; i++ {
		m.Update(100)
	}
	assert.False(t, m.Ready())
	for i := 0; i < 5; i++ {
		m.Update(100)
	}
	assert.True(t, m.Ready())

	macd, signal := m.Values()
	assert.InDelta(t, 0.0, macd, 1e-9)
	assert.InDelta(t, 0.0, signal, 1e-9)
}

func TestReturnsVol(t *testing.T) {
	v := NewReturnsVol(4)
	for _, p := range []float64{100, 100, 100, 100, 100} {
		v.Update(p)
	}
	assert.True(t, v.Ready())
	assert.InDelta(t, 0.0, v.Value(), 1e-9)

	w := NewReturnsVol(4)
	for _, p := range []float64{100, 110, 99, 112, 95} {
		w.Update(p)
	}
	assert.True(t, w.Ready())
	assert.Greater(t, w.Value(), 0.0)
}
