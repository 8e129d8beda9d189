package matching

// Mode selects whether a mutating call has external side effects.
//
// Live moves balances, writes history and emits events. Replay only
// rebuilds in-memory state from the operation log, last prices included.
// Both modes run the same matching code.
type Mode int

const (
	Live Mode = iota
	Replay
)

func (m Mode) String() string {
	if m == Replay {
		return "replay"
	}
	return "live"
}

func (m Mode) live() bool {
	return m == Live
}
