package indicators

// IsPivotHigh reports whether the bar `right` bars ago is a confirmed pivot
// high: strictly above the `left` bars before it and not exceeded by any of the
// `right` bars after it.
func IsPivotHigh(s *Series, left, right int) bool {
	if s.CurrentBar() < left+right || !s.Has(left+right) {
		return false
	}
	pivot := s.High(right)
	for i := 1; i <= left; i++ {
		if s.High(right+i) >= pivot {
			return false
		}
	}
	for i := 0; i < right; i++ {
		if s.High(i) > pivot {
			return false
		}
	}
	return true
}

// IsPivotLow mirrors IsPivotHigh for lows.
func IsPivotLow(s *Series, left, right int) bool {
	if s.CurrentBar() < left+right || !s.Has(left+right) {
		return false
	}
	pivot := s.Low(right)
	for i := 1; i <= left; i++ {
		if s.Low(right+i) <= pivot {
			return false
		}
	}
	for i := 0; i < right; i++ {
		if s.Low(i) < pivot {
			return false
		}
	}
	return true
}

// SwingTracker remembers the most recent confirmed swing high and low of a
// given strength.
type SwingTracker struct {
	strength  int
	high, low float64
	hasHigh   bool
	hasLow    bool
	highBar   int
	lowBar    int
}

// NewSwingTracker creates a tracker with symmetric strength.
func NewSwingTracker(strength int) *SwingTracker {
	return &SwingTracker{strength: strength}
}

// Update checks the series for a newly confirmed swing. Call once per bar.
func (t *SwingTracker) Update(s *Series) {
	if IsPivotHigh(s, t.strength, t.strength) {
		t.high, t.hasHigh = s.High(t.strength), true
		t.highBar = s.CurrentBar() - t.strength
	}
	if IsPivotLow(s, t.strength, t.strength) {
		t.low, t.hasLow = s.Low(t.strength), true
		t.lowBar = s.CurrentBar() - t.strength
	}
}

// LastHigh returns the most recent swing high, if any.
func (t *SwingTracker) LastHigh() (float64, bool) { return t.high, t.hasHigh }

// LastLow returns the most recent swing low, if any.
func (t *SwingTracker) LastLow() (float64, bool) { return t.low, t.hasLow }
