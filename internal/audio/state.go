package audio

// State is the recorder lifecycle state. Transitions:
//
//	inactive -> initializing -> recording <-> paused
//	recording/paused -> stopping -> inactive
//	initializing/recording/paused -> error -> inactive
//
// error and stopping are transient: after cleanup the recorder always
// settles back to inactive so the next start can succeed.
type State string

const (
	StateInactive     State = "inactive"
	StateInitializing State = "initializing"
	StateRecording    State = "recording"
	StatePaused       State = "paused"
	StateStopping     State = "stopping"
	StateError        State = "error"
)

// Compact codes mirroring State for the lock-free reads on the buffer
// and timer paths. The mutex-guarded State field stays canonical; the
// atomic mirror is updated in the same critical section.
const (
	codeInactive int32 = iota
	codeInitializing
	codeRecording
	codePaused
	codeStopping
	codeError
)

func stateCode(s State) int32 {
	switch s {
	case StateInitializing:
		return codeInitializing
	case StateRecording:
		return codeRecording
	case StatePaused:
		return codePaused
	case StateStopping:
		return codeStopping
	case StateError:
		return codeError
	default:
		return codeInactive
	}
}
