package orchestrator

// State is a step of the run state machine:
//
//	Idle → Planning → GeneratingSection(0..N-1) → Assembling → Done
//
// with Failed reachable from Planning or any GeneratingSection.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateGeneratingSection
	StateAssembling
	StateDone
	StateFailed
)

func (s State) String() string {
	names := [...]string{
		"idle",
		"planning",
		"generating",
		"assembling",
		"done",
		"failed",
	}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ParseState is the inverse of String. Unknown names map to StateIdle.
func ParseState(name string) State {
	for s := StateIdle; s <= StateFailed; s++ {
		if s.String() == name {
			return s
		}
	}
	return StateIdle
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	*s = ParseState(string(b))
	return nil
}
