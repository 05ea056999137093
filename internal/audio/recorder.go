package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/dsp"
	"github.com/audiolibrelab/voicecapture/internal/encode"
	"github.com/audiolibrelab/voicecapture/internal/options"
)

// Sentinel errors for call sequencing. Handlers match on these to pick
// response codes; everything else is a device or pipeline failure.
var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrStopTimeout      = errors.New("timed out draining capture pipeline")
)

const (
	// durationTickInterval is the cadence of durationChanged events and
	// of the maxDuration check.
	durationTickInterval = 200 * time.Millisecond

	// stopTimeout bounds the wait for the pipeline to drain after the
	// capture source has been told to stop. Exceeding it fails the stop.
	stopTimeout = 5 * time.Second
)

// Config wires a Recorder's collaborators. Backend is the only required
// field; the rest default to a granted permission gate, a fresh options
// store, the default logger and the system clock.
type Config struct {
	Backend capture.Backend
	Store   *options.Store
	Gate    PermissionGate
	Logger  *slog.Logger
	Clock   func() time.Time
}

// StartParams carries the per-call inputs of Start.
type StartParams struct {
	// Auto marks a start triggered by voice detection rather than an
	// explicit user action.
	Auto bool

	// Device selects a capture device by name for this session only.
	// The file backend interprets it as the path of the file to replay.
	// Empty means the backend's default device.
	Device string

	// Overrides are merged into the persisted options before the
	// session is configured.
	Overrides options.Patch
}

// Recorder is the recording engine: a state machine around one capture
// session at a time, with a streaming gain -> DSP -> encode pipeline.
// All methods are safe for concurrent use.
type Recorder struct {
	// Collaborators
	backend capture.Backend
	store   *options.Store
	gate    PermissionGate
	logger  *slog.Logger
	clock   func() time.Time
	events  *eventBus

	// State management. mutex guards state and sess; stateMirror and
	// gainBits are the lock-free copies read on the buffer and timer
	// paths so audio delivery never blocks on control calls.
	mutex       sync.Mutex
	state       State
	sess        *session
	stateMirror atomic.Int32
	gainBits    atomic.Uint64
}

// session owns the moving parts of one recording. Start creates it and
// exactly one of Stop or an internal pipeline failure tears it down.
type session struct {
	id     string
	source capture.Source
	chain  *dsp.Chain
	enc    encode.Encoder
	opts   options.Options
	format capture.Config
	auto   bool

	// Timing. Guarded by the recorder mutex.
	startTime   time.Time
	pausedAt    time.Time
	totalPaused time.Duration

	// Goroutine lifecycle
	pumpDone  chan struct{}
	timerStop chan struct{}
	timerDone chan struct{}
}

// New creates a Recorder. See Config for defaulting rules.
func New(cfg Config) *Recorder {
	if cfg.Backend == nil {
		cfg.Backend = capture.NewMiniaudioBackend()
	}
	if cfg.Store == nil {
		cfg.Store = options.NewStore()
	}
	if cfg.Gate == nil {
		cfg.Gate = StaticGate{State: PermissionGranted}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "recorder")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	r := &Recorder{
		backend: cfg.Backend,
		store:   cfg.Store,
		gate:    cfg.Gate,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		events:  newEventBus(),
		state:   StateInactive,
	}
	r.gainBits.Store(math.Float64bits(cfg.Store.Current().Gain))
	return r
}

// Subscribe returns a channel of recorder events and a cancel function.
// Slow consumers lose events rather than slowing the engine down.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	return r.events.subscribe()
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// Options returns the persisted options.
func (r *Recorder) Options() options.Options {
	return r.store.Current()
}

// SetOptions merges a patch into the persisted options. Allowed at any
// time; a session already in flight keeps its capture format, but a
// gain change applies live.
func (r *Recorder) SetOptions(p options.Patch) options.Options {
	merged := r.store.Apply(p)
	if p.Gain != nil {
		gain := *p.Gain
		if gain < 0 {
			gain = 0
		}
		r.gainBits.Store(math.Float64bits(gain))
	}
	return merged
}

// ResetOptions restores the built-in defaults.
func (r *Recorder) ResetOptions() options.Options {
	reset := r.store.Reset()
	r.gainBits.Store(math.Float64bits(reset.Gain))
	return reset
}

// SetInputGain updates the live gain. The new value applies from the
// next delivered buffer onward, whatever goroutine is calling.
func (r *Recorder) SetInputGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	r.gainBits.Store(math.Float64bits(gain))
	r.store.SetGain(gain)
}

// InputGain returns the live gain value.
func (r *Recorder) InputGain() float64 {
	return math.Float64frombits(r.gainBits.Load())
}

// Capabilities queries the capture backend for its device list and
// supported formats.
func (r *Recorder) Capabilities() (capture.Capabilities, error) {
	return r.backend.Capabilities()
}

// CheckPermissions reports the microphone permission state without
// prompting.
func (r *Recorder) CheckPermissions(ctx context.Context) (PermissionState, error) {
	return r.gate.Check(ctx)
}

// RequestPermissions asks the platform gate to prompt if permission has
// not been decided yet.
func (r *Recorder) RequestPermissions(ctx context.Context) (PermissionState, error) {
	return r.gate.Request(ctx)
}

// Start begins a new recording session. It merges the overrides into
// the persisted options, normalizes them against the backend's
// capabilities, opens the capture device and encoder, and transitions
// to recording. Any setup failure releases what was acquired and
// settles the state machine back to inactive.
func (r *Recorder) Start(ctx context.Context, params StartParams) error {
	perm, err := r.gate.Check(ctx)
	if err != nil {
		return fmt.Errorf("checking microphone permission: %w", err)
	}
	if perm != PermissionGranted {
		return fmt.Errorf("%w (state: %s)", ErrPermissionDenied, perm)
	}

	r.mutex.Lock()
	switch r.state {
	case StateRecording, StatePaused:
		r.mutex.Unlock()
		return ErrAlreadyRecording
	case StateInactive:
	default:
		cur := r.state
		r.mutex.Unlock()
		return fmt.Errorf("can only start a recording from inactive state, current: %s", cur)
	}
	r.setStateLocked(StateInitializing)
	r.mutex.Unlock()

	effective, sess, err := r.openSession(ctx, params)
	if err != nil {
		r.mutex.Lock()
		r.setStateLocked(StateError)
		r.setStateLocked(StateInactive)
		r.mutex.Unlock()
		r.logger.Error("Recording start failed", "error", err)
		return err
	}

	r.mutex.Lock()
	r.sess = sess
	r.gainBits.Store(math.Float64bits(effective.Gain))
	sess.startTime = r.clock()
	r.setStateLocked(StateRecording)
	r.mutex.Unlock()

	go r.pump(sess)
	go r.durationTimer(sess)

	r.logger.Info("Recording started",
		"id", sess.id,
		"backend", r.backend.Name(),
		"sampleRate", sess.format.SampleRate,
		"channels", sess.format.Channels,
		"format", effective.Output.Format,
		"auto", params.Auto)
	return nil
}

// openSession acquires the capture source, encoder and processing chain
// for one session. On error everything acquired so far is released.
func (r *Recorder) openSession(ctx context.Context, params StartParams) (options.Options, *session, error) {
	merged := r.store.Apply(params.Overrides)

	caps, err := r.backend.Capabilities()
	if err != nil {
		return options.Options{}, nil, fmt.Errorf("querying capture capabilities: %w", err)
	}
	effective := options.Normalize(merged, caps)

	source, err := r.backend.Open(capture.Config{
		SampleRate:       effective.Input.SampleRate,
		Channels:         effective.Input.ChannelCount,
		SampleSize:       effective.Input.SampleSize,
		Device:           params.Device,
		AutoGainControl:  effective.Input.AutoGainControl,
		EchoCancellation: effective.Input.EchoCancellation,
		NoiseSuppression: effective.Input.NoiseSuppression,
	})
	if err != nil {
		return options.Options{}, nil, fmt.Errorf("opening capture device: %w", err)
	}

	if err := source.Start(ctx); err != nil {
		source.Stop()
		return options.Options{}, nil, fmt.Errorf("starting capture: %w", err)
	}

	// The device may have adjusted rate or channel count; encoder and
	// DSP chain follow the effective format, not the requested one.
	format := source.Format()

	enc, err := encode.New(effective.Output.Format, format.SampleRate, format.Channels, effective.Input.SampleSize)
	if err != nil {
		source.Stop()
		return options.Options{}, nil, fmt.Errorf("opening encoder: %w", err)
	}

	sess := &session{
		id:        uuid.New().String(),
		source:    source,
		chain:     dsp.NewChain(effective.DSP, format.SampleRate, format.Channels),
		enc:       enc,
		opts:      effective,
		format:    format,
		auto:      params.Auto,
		pumpDone:  make(chan struct{}),
		timerStop: make(chan struct{}),
		timerDone: make(chan struct{}),
	}
	return effective, sess, nil
}

// Stop finalizes the current recording and returns its result. Safe to
// call concurrently with the timer's auto-stop: exactly one caller runs
// the finalize sequence, every other concurrent caller gets a zero
// Result with a nil error.
func (r *Recorder) Stop(ctx context.Context) (Result, error) {
	r.mutex.Lock()
	switch r.state {
	case StateRecording, StatePaused:
	case StateStopping:
		// Another stop is already finalizing this session.
		r.mutex.Unlock()
		return Result{}, nil
	default:
		cur := r.state
		r.mutex.Unlock()
		return Result{}, fmt.Errorf("%w, current state: %s", ErrNotRecording, cur)
	}

	sess := r.sess
	if !sess.pausedAt.IsZero() {
		sess.totalPaused += r.clock().Sub(sess.pausedAt)
		sess.pausedAt = time.Time{}
	}
	r.setStateLocked(StateStopping)
	r.mutex.Unlock()

	close(sess.timerStop)
	<-sess.timerDone

	// Stopping the source closes its buffer channel once the device is
	// fully torn down, which lets the pump drain and exit.
	if err := sess.source.Stop(); err != nil {
		r.logger.Warn("Capture source reported error on stop", "error", err)
	}

	select {
	case <-sess.pumpDone:
	case <-time.After(stopTimeout):
		r.settleError(ErrStopTimeout)
		return Result{}, ErrStopTimeout
	}

	// Computed once, after capture has fully stopped.
	duration := r.clock().Sub(sess.startTime) - sess.totalPaused

	encoded, err := sess.enc.Finish()
	if err != nil {
		err = fmt.Errorf("finalizing encoder: %w", err)
		r.settleError(err)
		return Result{}, err
	}

	uri, size, err := r.writeRecording(sess, encoded.Bytes)
	if err != nil {
		r.settleError(err)
		return Result{}, err
	}

	result := Result{
		ID:       sess.id,
		Duration: duration.Milliseconds(),
		MIME:     encoded.MIME,
		URI:      uri,
		Size:     size,
	}
	if sess.opts.Output.ReturnBase64 {
		result.Base64 = base64.StdEncoding.EncodeToString(encoded.Bytes)
	}

	r.mutex.Lock()
	r.sess = nil
	r.setStateLocked(StateInactive)
	r.mutex.Unlock()

	r.events.publish(Event{Type: EventAudioURLReady, Duration: result.Duration, Result: &result})
	r.logger.Info("Recording stopped",
		"id", sess.id,
		"duration", duration.Round(time.Millisecond),
		"size", size,
		"uri", uri)
	return result, nil
}

// Pause suspends capture. A no-op unless currently recording.
func (r *Recorder) Pause() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateRecording {
		r.logger.Debug("Pause ignored", "state", r.state)
		return
	}
	r.sess.pausedAt = r.clock()
	r.setStateLocked(StatePaused)
	r.logger.Info("Recording paused", "id", r.sess.id)
}

// Resume continues a paused recording. A no-op unless currently paused.
// The time spent paused is excluded from the reported duration.
func (r *Recorder) Resume() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StatePaused {
		r.logger.Debug("Resume ignored", "state", r.state)
		return
	}
	r.sess.totalPaused += r.clock().Sub(r.sess.pausedAt)
	r.sess.pausedAt = time.Time{}
	r.setStateLocked(StateRecording)
	r.logger.Info("Recording resumed", "id", r.sess.id, "totalPaused", r.sess.totalPaused.Round(time.Millisecond))
}

// setStateLocked commits a state transition and emits stateChanged.
// Callers must hold the mutex.
func (r *Recorder) setStateLocked(s State) {
	r.state = s
	r.stateMirror.Store(stateCode(s))
	r.events.publish(Event{Type: EventStateChanged, State: s})
}

// settleError returns the state machine to inactive after a fatal stop
// failure, surfacing the error state transiently on the way.
func (r *Recorder) settleError(err error) {
	r.mutex.Lock()
	r.sess = nil
	r.setStateLocked(StateError)
	r.setStateLocked(StateInactive)
	r.mutex.Unlock()
	r.logger.Error("Recording failed", "error", err)
}

// fail tears the session down after an error inside the pipeline, where
// no caller is waiting on a return value. If a stop is already in
// flight the stopper owns the teardown and fail does nothing.
func (r *Recorder) fail(err error) {
	r.mutex.Lock()
	if r.state != StateRecording && r.state != StatePaused {
		r.mutex.Unlock()
		return
	}
	sess := r.sess
	r.setStateLocked(StateError)
	r.mutex.Unlock()

	r.events.publish(Event{Type: EventError, Message: err.Error()})

	close(sess.timerStop)
	if stopErr := sess.source.Stop(); stopErr != nil {
		r.logger.Warn("Capture source reported error on stop", "error", stopErr)
	}

	r.mutex.Lock()
	r.sess = nil
	r.setStateLocked(StateInactive)
	r.mutex.Unlock()
	r.logger.Error("Recording failed", "error", err)
}

// pump is the single consumer of the capture source. It serializes the
// per-buffer pipeline so the encoded stream reflects buffers in exact
// arrival order. Buffers delivered while the state is anything other
// than recording are dropped, which is what makes pause correct.
func (r *Recorder) pump(sess *session) {
	defer close(sess.pumpDone)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Capture pipeline panic", "panic", p)
			go r.fail(fmt.Errorf("capture pipeline panic: %v", p))
		}
	}()

	for buf := range sess.source.Buffers() {
		if r.stateMirror.Load() != codeRecording {
			continue
		}
		gain := math.Float64frombits(r.gainBits.Load())
		dsp.ApplyGain(buf.Samples, float32(gain))
		sess.chain.Process(buf.Samples)
		if err := sess.enc.Push(buf.Samples); err != nil {
			go r.fail(fmt.Errorf("encoding samples: %w", err))
			return
		}
	}
}

// durationTimer emits durationChanged events while recording and fires
// the auto-stop when maxDuration is reached. It exits when the session
// stops or when it has handed off to the auto-stop.
func (r *Recorder) durationTimer(sess *session) {
	defer close(sess.timerDone)

	ticker := time.NewTicker(durationTickInterval)
	defer ticker.Stop()

	maxDuration := time.Duration(sess.opts.Output.MaxDuration) * time.Millisecond
	for {
		select {
		case <-sess.timerStop:
			return
		case <-ticker.C:
			if r.stateMirror.Load() != codeRecording {
				continue
			}
			elapsed := r.elapsed(sess)
			r.events.publish(Event{Type: EventDurationChanged, Duration: elapsed.Milliseconds()})

			if maxDuration > 0 && elapsed >= maxDuration {
				r.logger.Info("Max duration reached, stopping", "id", sess.id, "elapsed", elapsed.Round(time.Millisecond))
				// Stop waits for timerDone, so it must not run on this
				// goroutine. The stopping guard keeps this stop and any
				// concurrent caller from both finalizing.
				go func() {
					if _, err := r.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
						r.logger.Error("Auto-stop failed", "error", err)
					}
				}()
				return
			}
		}
	}
}

// elapsed is wall time since start minus time spent paused, including a
// pause still in progress.
func (r *Recorder) elapsed(sess *session) time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	paused := sess.totalPaused
	if !sess.pausedAt.IsZero() {
		paused += r.clock().Sub(sess.pausedAt)
	}
	return r.clock().Sub(sess.startTime) - paused
}

// writeRecording persists the encoded bytes under the configured output
// directory and returns the file path and size.
func (r *Recorder) writeRecording(sess *session, data []byte) (string, int64, error) {
	dir := options.ExpandPath(sess.opts.Output.Directory)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("creating output directory: %w", err)
	}

	name := fmt.Sprintf("rec-%s-%s.%s",
		sess.startTime.Format("20060102-150405"),
		sess.id[:8],
		sess.opts.Output.Format)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", 0, fmt.Errorf("writing recording: %w", err)
	}
	return path, int64(len(data)), nil
}
