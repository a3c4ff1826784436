package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai"
)

// Controller owns both backends and routes every operation to the one
// selected by the current mode. Operations that change which backend is
// engaged are serialized; StopListening never waits behind a pending start.
type Controller struct {
	realtime Backend
	browser  Backend
	logger   zerolog.Logger

	opMu sync.Mutex // serializes Start, SwitchMode and Speak

	mu          sync.RWMutex
	mode        Mode
	err         string
	cancelStart context.CancelFunc
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithInitialMode sets the mode the controller starts in. The default is ModeRealtime.
func WithInitialMode(m Mode) ControllerOption {
	return func(c *Controller) { c.mode = m }
}

// WithLogger overrides the controller's logger.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController wires the two backends. Neither backend is started.
func NewController(realtime, browser Backend, opts ...ControllerOption) (*Controller, error) {
	if realtime == nil || browser == nil {
		return nil, errors.New("voice: both realtime and browser backends are required")
	}
	if realtime.Mode() != ModeRealtime {
		return nil, fmt.Errorf("voice: realtime slot holds a %s backend", realtime.Mode())
	}
	if browser.Mode() != ModeBrowser {
		return nil, fmt.Errorf("voice: browser slot holds a %s backend", browser.Mode())
	}

	c := &Controller{
		realtime: realtime,
		browser:  browser,
		mode:     ModeRealtime,
		logger:   logging.WithComponent("voice"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mode != ModeRealtime && c.mode != ModeBrowser {
		return nil, fmt.Errorf("voice: invalid initial mode %s", c.mode)
	}
	return c, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Controller) active() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backendFor(c.mode)
}

func (c *Controller) backendFor(m Mode) Backend {
	if m == ModeBrowser {
		return c.browser
	}
	return c.realtime
}

// SwitchMode tears down the active backend and then makes target active.
// Switching to the current mode is a no-op. Listening is not resumed.
func (c *Controller) SwitchMode(ctx context.Context, target Mode) error {
	if target != ModeRealtime && target != ModeBrowser {
		return fmt.Errorf("voice: invalid mode %s", target)
	}
	if c.Mode() == target {
		return nil
	}

	c.abortPendingStart()
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	current := c.mode
	c.mu.RUnlock()
	if current == target {
		return nil
	}

	old := c.backendFor(current)
	if err := old.Shutdown(ctx); err != nil {
		// The old backend never stays engaged once Shutdown returns, even
		// on error, so the switch still completes.
		c.logger.Warn().Err(err).Str("mode", current.String()).Msg("backend shutdown reported an error")
	}

	// The target may still report a failure from before it was last left.
	c.backendFor(target).ClearError()

	c.mu.Lock()
	c.mode = target
	c.err = ""
	c.mu.Unlock()

	c.logger.Info().
		Str("from", current.String()).
		Str("to", target.String()).
		Msg("voice mode switched")
	return nil
}

// StartListening engages the active backend.
func (c *Controller) StartListening(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancelStart = cancel
	backend := c.backendFor(c.mode)
	c.mu.Unlock()

	err := backend.StartListening(ctx)

	c.mu.Lock()
	c.cancelStart = nil
	c.mu.Unlock()

	// A start aborted by StopListening or SwitchMode is not a failure.
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.record(err)
	return err
}

// StopListening disengages the active backend. It also aborts a start that
// is still in progress.
func (c *Controller) StopListening() error {
	c.abortPendingStart()
	err := c.active().StopListening()
	if err != nil {
		c.record(err)
	}
	return err
}

// Speak queues text for synthesis. In realtime mode the remote side produces
// its own audio, so Speak does nothing.
func (c *Controller) Speak(text string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sp, ok := c.active().(Speaker)
	if !ok {
		return nil
	}
	err := sp.Speak(text)
	c.record(err)
	return err
}

// StopSpeaking silences the active backend if it speaks on request.
func (c *Controller) StopSpeaking() {
	if sp, ok := c.active().(Speaker); ok {
		sp.StopSpeaking()
	}
}

// Shutdown releases the active backend, as when the voice UI goes away.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.abortPendingStart()
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.active().Shutdown(ctx)
}

// Status reports the derived state of the active backend. Supported is true
// when either backend can run.
func (c *Controller) Status() Status {
	c.mu.RLock()
	mode, ctlErr := c.mode, c.err
	c.mu.RUnlock()

	st := c.backendFor(mode).Status()
	if ctlErr != "" {
		st.Err = ctlErr
	}
	if mode == ModeBrowser {
		st.Connected = true
	}
	st.Supported = c.realtime.Status().Supported || c.browser.Status().Supported
	return st
}

func (c *Controller) IsListening() bool { return c.Status().Listening }
func (c *Controller) IsSpeaking() bool  { return c.Status().Speaking }
func (c *Controller) IsConnected() bool { return c.Status().Connected }
func (c *Controller) IsSupported() bool { return c.Status().Supported }

// Error returns the last error message, or "".
func (c *Controller) Error() string { return c.Status().Err }

func (c *Controller) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.err = ""
		return
	}
	c.err = ai.Describe(err)
}

func (c *Controller) abortPendingStart() {
	c.mu.Lock()
	cancel := c.cancelStart
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
