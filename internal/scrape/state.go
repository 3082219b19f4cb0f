package scrape

// State is a step of a scrape call.
type State int

const (
	Idle State = iota
	RateLimitWait
	Fetching
	Parsing
	Normalizing
	Filtering
	Done
	Failed
)

var stateNames = [...]string{
	Idle:          "idle",
	RateLimitWait: "rate_limit_wait",
	Fetching:      "fetching",
	Parsing:       "parsing",
	Normalizing:   "normalizing",
	Filtering:     "filtering",
	Done:          "done",
	Failed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Observer is told about every state transition of a call. It runs on the
// scraping goroutine and must not block.
type Observer func(platform string, from, to State)

type tracker struct {
	platform string
	state    State
	observe  Observer
}

func (t *tracker) to(next State) {
	prev := t.state
	t.state = next
	if t.observe != nil {
		t.observe(t.platform, prev, next)
	}
}
