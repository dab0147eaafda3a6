// Package filter rejects physically impossible cable positions before they reach
// calibration or rep detection.
package filter

// DefaultSpikeThreshold is the largest absolute position accepted from the machine
const DefaultSpikeThreshold = 50000

// State is the last accepted position per cable. Zero means nothing accepted yet.
type State struct {
	LastGoodA int
	LastGoodB int
}

// Rejection reports which cables were substituted on a Validate call
type Rejection struct {
	A bool
	B bool
}

// Any reports whether either cable was rejected
func (r Rejection) Any() bool {
	return r.A || r.B
}

// Validator substitutes the last good value for any position whose magnitude exceeds
// the threshold. Each cable is filtered independently.
// Not safe for concurrent use.
type Validator struct {
	threshold int
	state     State
}

// NewValidator creates a validator. A non-positive threshold selects the default.
func NewValidator(threshold int) *Validator {
	if threshold <= 0 {
		threshold = DefaultSpikeThreshold
	}
	return &Validator{threshold: threshold}
}

// Validate returns the filtered positions. A rejected cable returns the previous
// last-good value and leaves it unchanged; an accepted cable updates it.
func (v *Validator) Validate(posA, posB int) (a, b int, rejected Rejection) {
	a, rejected.A = v.validateOne(posA, &v.state.LastGoodA)
	b, rejected.B = v.validateOne(posB, &v.state.LastGoodB)
	return a, b, rejected
}

func (v *Validator) validateOne(pos int, lastGood *int) (int, bool) {
	if abs(pos) > v.threshold {
		return *lastGood, true
	}
	*lastGood = pos
	return pos, false
}

// State returns a copy of the filter state
func (v *Validator) State() State {
	return v.state
}

// Threshold returns the configured spike threshold
func (v *Validator) Threshold() int {
	return v.threshold
}

// Reset clears the last good positions. Called when a connection starts.
func (v *Validator) Reset() {
	v.state = State{}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
