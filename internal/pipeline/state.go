package pipeline

// State is the position of a job in the pipeline.
type State string

const (
	StateCreated         State = "created"
	StateIntroGenerated  State = "intro_generated"
	StateSlidesGenerated State = "slides_generated"
	StateSubtitlesBuilt  State = "subtitles_built"
	StateVideoAssembled  State = "video_assembled"
	StateComplete        State = "complete"
	StateFailed          State = "failed"
)

// order ranks the non-failed states; a job only ever moves forward.
var order = map[State]int{
	StateCreated:         0,
	StateIntroGenerated:  1,
	StateSlidesGenerated: 2,
	StateSubtitlesBuilt:  3,
	StateVideoAssembled:  4,
	StateComplete:        5,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := order[s]
	return ok || s == StateFailed
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Running reports whether a job in s has been picked up but not finished.
func (s State) Running() bool {
	return s.Valid() && s != StateCreated && !s.Terminal()
}

// CanTransition reports whether moving from s to next is allowed: forward
// by exactly one step, or to failed from any non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	from, ok1 := order[s]
	to, ok2 := order[next]
	return ok1 && ok2 && to == from+1
}

// progress is the percentage reported on entering each state.
var progress = map[State]int{
	StateCreated:         0,
	StateIntroGenerated:  10,
	StateSlidesGenerated: 80,
	StateSubtitlesBuilt:  85,
	StateVideoAssembled:  98,
	StateComplete:        100,
}

// slideProgress interpolates between intro and slides for done of total.
func slideProgress(done, total int) int {
	lo, hi := progress[StateIntroGenerated], progress[StateSlidesGenerated]
	if total <= 0 {
		return lo
	}
	return lo + (hi-lo)*done/total
}
