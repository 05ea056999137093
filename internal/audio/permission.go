package audio

import "context"

// PermissionState mirrors the three-way platform permission answer.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// PermissionGate answers whether microphone capture is allowed.
// Platform dialogs and OS policy live behind this interface; the
// recorder only gates Start on the answer and never prompts by itself.
type PermissionGate interface {
	Check(ctx context.Context) (PermissionState, error)
	Request(ctx context.Context) (PermissionState, error)
}

// StaticGate is a PermissionGate with a fixed answer. Desktop builds
// run with StaticGate{State: PermissionGranted}; tests use it to
// exercise the denied and prompt paths.
type StaticGate struct {
	State PermissionState
}

func (g StaticGate) Check(ctx context.Context) (PermissionState, error) {
	return g.State, nil
}

func (g StaticGate) Request(ctx context.Context) (PermissionState, error) {
	return g.State, nil
}
