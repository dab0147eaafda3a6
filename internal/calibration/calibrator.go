// Package calibration tracks the top and bottom position bands of each cable.
package calibration

// DefaultMeaningfulRange is the band width (position units) below which ranges are ignored
const DefaultMeaningfulRange = 50

// DangerZoneFraction is the bottom share of the band treated as the danger zone
const DangerZoneFraction = 0.05

// Window capacities: narrow until warmup is done, wider afterwards
const (
	WarmupWindowSize  = 2
	WorkingWindowSize = 3
)

// Bound is a position that may not have been observed yet
type Bound struct {
	Value int
	Valid bool
}

func bound(v int) Bound { return Bound{Value: v, Valid: true} }

// Pair is the lowest and highest sample that produced a bound
type Pair struct {
	Low   int
	High  int
	Valid bool
}

func pair(low, high int) Pair { return Pair{Low: low, High: high, Valid: true} }

// RepRanges is an immutable snapshot of the calibrated bands
type RepRanges struct {
	MinPosA   Bound
	MaxPosA   Bound
	MinPosB   Bound
	MaxPosB   Bound
	MinRangeA Pair
	MaxRangeA Pair
	MinRangeB Pair
	MaxRangeB Pair
	RangeA    int // max(MaxPosA-MinPosA, 0), 0 when either bound is unset
	RangeB    int
}

// cable holds the windows and bands for one cable
type cable struct {
	top      *Window
	bottom   *Window
	min      Bound
	max      Bound
	minRange Pair
	maxRange Pair
}

func newCable() *cable {
	return &cable{
		top:    NewWindow(WarmupWindowSize),
		bottom: NewWindow(WarmupWindowSize),
	}
}

func (c *cable) reset() {
	*c = *newCable()
}

func (c *cable) rangeWidth() int {
	if !c.min.Valid || !c.max.Valid {
		return 0
	}
	return c.max.Value - c.min.Value
}

func (c *cable) recordTop(pos, capacity int) {
	c.top.SetCapacity(capacity)
	c.top.Push(pos)
	c.max = windowAverage(c.top)
	c.maxRange = windowPair(c.top)
}

func (c *cable) recordBottom(pos, capacity int) {
	c.bottom.SetCapacity(capacity)
	c.bottom.Push(pos)
	c.min = windowAverage(c.bottom)
	c.minRange = windowPair(c.bottom)
}

func (c *cable) widen(pos int) {
	if !c.min.Valid || pos < c.min.Value {
		high := pos
		if c.minRange.Valid {
			high = c.minRange.High
		}
		c.min = bound(pos)
		c.minRange = pair(pos, high)
	}
	if !c.max.Valid || pos > c.max.Value {
		low := pos
		if c.maxRange.Valid {
			low = c.maxRange.Low
		}
		c.max = bound(pos)
		c.maxRange = pair(low, pos)
	}
}

func (c *cable) inDangerZone(pos, threshold int) bool {
	if !c.min.Valid || !c.max.Valid {
		return false
	}
	width := c.rangeWidth()
	if width <= threshold {
		return false
	}
	return pos <= c.min.Value+int(float64(width)*DangerZoneFraction)
}

func windowAverage(w *Window) Bound {
	avg, ok := w.Average()
	return Bound{Value: avg, Valid: ok}
}

func windowPair(w *Window) Pair {
	low, ok := w.Min()
	if !ok {
		return Pair{}
	}
	high, _ := w.Max()
	return pair(low, high)
}

// Calibrator derives per-cable min/max bands from top and bottom samples.
// Not safe for concurrent use.
type Calibrator struct {
	a *cable
	b *cable
}

func NewCalibrator() *Calibrator {
	return &Calibrator{a: newCable(), b: newCable()}
}

// RecordTop adds a top-of-movement sample. Non-positive positions are skipped per cable,
// and the call is ignored when both are non-positive.
func (c *Calibrator) RecordTop(posA, posB, capacity int) {
	if posA <= 0 && posB <= 0 {
		return
	}
	if posA > 0 {
		c.a.recordTop(posA, capacity)
	}
	if posB > 0 {
		c.b.recordTop(posB, capacity)
	}
}

// RecordBottom adds a bottom-of-movement sample, with the same skipping rules as RecordTop
func (c *Calibrator) RecordBottom(posA, posB, capacity int) {
	if posA <= 0 && posB <= 0 {
		return
	}
	if posA > 0 {
		c.a.recordBottom(posA, capacity)
	}
	if posB > 0 {
		c.b.recordBottom(posB, capacity)
	}
}

// UpdateContinuously widens the bands toward any new extreme. Bands never narrow here.
func (c *Calibrator) UpdateContinuously(posA, posB int) {
	if posA <= 0 && posB <= 0 {
		return
	}
	if posA > 0 {
		c.a.widen(posA)
	}
	if posB > 0 {
		c.b.widen(posB)
	}
}

// SetInitialBaseline anchors the minimum of an uncalibrated cable to its starting position
func (c *Calibrator) SetInitialBaseline(posA, posB int) {
	if posA > 0 && !c.a.min.Valid {
		c.a.min = bound(posA)
		c.a.minRange = pair(posA, posA)
	}
	if posB > 0 && !c.b.min.Valid {
		c.b.min = bound(posB)
		c.b.minRange = pair(posB, posB)
	}
}

// HasMeaningfulRange reports whether either band is wider than threshold
func (c *Calibrator) HasMeaningfulRange(threshold int) bool {
	return c.a.rangeWidth() > threshold || c.b.rangeWidth() > threshold
}

// IsInDangerZone reports whether either cable sits in the bottom 5% of a band wider than threshold
func (c *Calibrator) IsInDangerZone(posA, posB, threshold int) bool {
	return c.a.inDangerZone(posA, threshold) || c.b.inDangerZone(posB, threshold)
}

// Ranges returns a snapshot of the current bands
func (c *Calibrator) Ranges() RepRanges {
	return RepRanges{
		MinPosA:   c.a.min,
		MaxPosA:   c.a.max,
		MinPosB:   c.b.min,
		MaxPosB:   c.b.max,
		MinRangeA: c.a.minRange,
		MaxRangeA: c.a.maxRange,
		MinRangeB: c.b.minRange,
		MaxRangeB: c.b.maxRange,
		RangeA:    max(c.a.rangeWidth(), 0),
		RangeB:    max(c.b.rangeWidth(), 0),
	}
}

// MinA and MaxA expose cable A's band for progress interpolation
func (c *Calibrator) MinA() Bound { return c.a.min }
func (c *Calibrator) MaxA() Bound { return c.a.max }

// Reset clears every window and band
func (c *Calibrator) Reset() {
	c.a.reset()
	c.b.reset()
}
