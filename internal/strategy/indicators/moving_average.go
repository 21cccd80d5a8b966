package indicators

import "fmt"

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	Period int
	Type   MovingAverageType
}

// MovingAverage is an incremental SMA/EMA fed one value per bar.
// The EMA is seeded with the SMA of its first Period values; until then
// both types return the running mean.
type MovingAverage struct {
	config MovingAverageConfig
	window []float64
	sum    float64
	count  int
	ema    float64
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) (*MovingAverage, error) {
	if config.Period <= 0 {
		return nil, fmt.Errorf("moving average period must be positive, got %d", config.Period)
	}
	switch config.Type {
	case SimpleMovingAverage, ExponentialMovingAverage:
	default:
		return nil, fmt.Errorf("unsupported moving average type: %s", config.Type)
	}
	return &MovingAverage{config: config, window: make([]float64, 0, config.Period)}, nil
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.config.Period)
}

// Ready reports whether Period values have been seen.
func (m *MovingAverage) Ready() bool { return m.count >= m.config.Period }

// Update feeds the next value and returns the current average.
func (m *MovingAverage) Update(v float64) float64 {
	m.count++
	if len(m.window) == m.config.Period {
		m.sum -= m.window[0]
		m.window = append(m.window[:0], m.window[1:]...)
	}
	m.window = append(m.window, v)
	m.sum += v

	sma := m.sum / float64(len(m.window))
	if m.config.Type == SimpleMovingAverage {
		return sma
	}

	switch {
	case m.count <= m.config.Period:
		m.ema = sma
	default:
		multiplier := 2.0 / float64(m.config.Period+1)
		m.ema = (v-m.ema)*multiplier + m.ema
	}
	return m.ema
}
