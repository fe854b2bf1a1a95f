package strategy

import "math"

// Streaming indicators. Each consumes one price per Update call and exposes
// Ready once its warm-up window is full.

// SMA is a simple moving average over a fixed window.
type SMA struct {
	period int
	window []float64
	sum    float64
}

// NewSMA creates an SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period, window: make([]float64, 0, period)}
}

// Update pushes a price into the window.
func (s *SMA) Update(price float64) {
	s.window = append(s.window, price)
	s.sum += price
	if len(s.window) > s.period {
		s.sum -= s.window[0]
		s.window = s.window[1:]
	}
}

// Ready reports whether the window is full.
func (s *SMA) Ready() bool { return len(s.window) == s.period }

// Value returns the current average, or 0 before Ready.
func (s *SMA) Value() float64 {
	if len(s.window) == 0 {
		return 0
	}
	return s.sum / float64(len(s.window))
}

// StdDev returns the population standard deviation of the window.
func (s *SMA) StdDev() float64 {
	n := len(s.window)
	if n == 0 {
		return 0
	}
	mean := s.sum / float64(n)
	var ss float64
	for _, v := range s.window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}

// EMA is an exponential moving average seeded with the first price,
// k = 2/(period+1).
type EMA struct {
	k     float64
	value float64
	count int
	min   int
}

// NewEMA creates an EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{k: 2.0 / float64(period+1), min: period}
}

// Update folds a price into the average.
func (e *EMA) Update(price float64) {
	if e.count == 0 {
		e.value = price
	} else {
		e.value = price*e.k + e.value*(1-e.k)
	}
	e.count++
}

// Ready reports whether at least period prices have been seen.
func (e *EMA) Ready() bool { return e.count >= e.min }

// Value returns the current average.
func (e *EMA) Value() float64 { return e.value }

// RSI computes the relative strength index with Wilder smoothing. The first
// period deltas seed the averages; later deltas are smoothed.
type RSI struct {
	period   int
	prev     float64
	hasPrev  bool
	seen     int
	avgGain  float64
	avgLoss  float64
}

// NewRSI creates an RSI with the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update pushes a price.
func (r *RSI) Update(price float64) {
	if !r.hasPrev {
		r.prev = price
		r.hasPrev = true
		return
	}
	delta := price - r.prev
	r.prev = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.seen++
	if r.seen <= r.period {
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
		return
	}
	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

// Ready reports whether the seed window is complete.
func (r *RSI) Ready() bool { return r.seen >= r.period }

// Value returns the RSI in [0, 100].
func (r *RSI) Value() float64 {
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

// MACDLine combines fast and slow EMAs with a signal-line EMA over their
// difference.
type MACDLine struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACDLine creates a MACD with the given fast/slow/signal periods.
func NewMACDLine(fast, slow, signal int) *MACDLine {
	return &MACDLine{fast: NewEMA(fast), slow: NewEMA(slow), signal: NewEMA(signal)}
}

// Update pushes a price through all three averages.
func (m *MACDLine) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.Update(m.fast.Value() - m.slow.Value())
	}
}

// Ready reports whether all three lines are warmed up.
func (m *MACDLine) Ready() bool {
	return m.fast.Ready() && m.slow.Ready() && m.signal.Ready()
}

// Values returns the MACD line and its signal line.
func (m *MACDLine) Values() (macd, signal float64) {
	return m.fast.Value() - m.slow.Value(), m.signal.Value()
}

// ReturnsVol tracks the standard deviation of simple returns over a window.
// Options strategies use it as the trigger measure.
type ReturnsVol struct {
	window  []float64
	size    int
	prev    float64
	hasPrev bool
}

// NewReturnsVol creates a ReturnsVol over the given window size.
func NewReturnsVol(size int) *ReturnsVol {
	return &ReturnsVol{size: size}
}

// Update pushes a price; the derived return enters the window.
func (v *ReturnsVol) Update(price float64) {
	if !v.hasPrev {
		v.prev = price
		v.hasPrev = true
		return
	}
	if v.prev != 0 {
		v.window = append(v.window, price/v.prev-1)
		if len(v.window) > v.size {
			v.window = v.window[1:]
		}
	}
	v.prev = price
}

// Ready reports whether the window is full.
func (v *ReturnsVol) Ready() bool { return len(v.window) == v.size }

// Value returns the standard deviation of the windowed returns.
func (v *ReturnsVol) Value() float64 {
	n := len(v.window)
	if n == 0 {
		return 0
	}
	var mean float64
	for _, r := range v.window {
		mean += r
	}
	mean /= float64(n)
	var ss float64
	for _, r := range v.window {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}
