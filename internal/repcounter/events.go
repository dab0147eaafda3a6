package repcounter

// RepEventType is the kind of rep lifecycle transition
type RepEventType int

const (
	// WarmupCompleted fires for every warmup rep the machine confirms
	WarmupCompleted RepEventType = iota
	// WarmupComplete fires once, when the warmup target is reached
	WarmupComplete
	// WorkingPending fires at the top of a working rep, before it is confirmed
	WorkingPending
	// WorkingCompleted fires when the machine confirms a working rep
	WorkingCompleted
	// WorkoutComplete fires when the working target is reached
	WorkoutComplete
)

var repEventTypeNames = map[RepEventType]string{
	WarmupCompleted:  "WARMUP_COMPLETED",
	WarmupComplete:   "WARMUP_COMPLETE",
	WorkingPending:   "WORKING_PENDING",
	WorkingCompleted: "WORKING_COMPLETED",
	WorkoutComplete:  "WORKOUT_COMPLETE",
}

func (t RepEventType) String() string {
	if name, ok := repEventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// RepEvent is one transition with the tallies at the time it fired.
// For WorkingPending, WorkingCount is still the confirmed count; the pending rep is WorkingCount+1.
type RepEvent struct {
	Type         RepEventType
	WarmupCount  int
	WorkingCount int
}

// RepCount is a snapshot of the tallies and pending state
type RepCount struct {
	WarmupReps         int
	WorkingReps        int
	TotalReps          int // working reps only
	IsWarmupComplete   bool
	HasPendingRep      bool
	PendingRepProgress float64 // 0 at the top, 1 at the bottom
}
