// Package session implements the execution session controller: it gates
// runs so at most one is in flight, assembles the run request from the UI
// inputs, and owns the session channel of the active run.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/standardbeagle/runbox/internal/channel"
	"github.com/standardbeagle/runbox/pkg/events"
)

// RunEvent is the event name the run request is sent under.
const RunEvent = "run"

var ErrRunInProgress = errors.New("run already in progress")

// RunRequest is the single message sent to the backend per run.
type RunRequest struct {
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Flags    []string `json:"flags"`
	Args     string   `json:"args"`
}

// Terminal receives program output. Reset clears it before a run.
type Terminal interface {
	io.Writer
	Reset()
}

type Editor interface {
	Text() string
}

// Inputs exposes the language selection and the runtime arguments field.
type Inputs interface {
	Language() string
	Args() string
}

type FlagCollector interface {
	Collect() []string
}

// Affordance is the run control's enabled state. It is called with the
// controller lock held and must not call back into the Controller.
type Affordance interface {
	SetRunEnabled(enabled bool)
}

type ViewModes interface {
	ForceTerminalOnly()
}

type Options struct {
	Opener     channel.Opener
	Terminal   Terminal
	Editor     Editor
	Inputs     Inputs
	Flags      FlagCollector
	Affordance Affordance
	View       ViewModes
	// Embedded makes every run trigger switch to the terminal-only view.
	Embedded bool
	// RunTimeout closes a run that takes longer. Zero disables it.
	RunTimeout time.Duration
	EventBus   *events.EventBus
}

// run is the state of one in-flight run. Its identity tells a live
// notification from a stale one.
type run struct {
	id      string
	ch      channel.Channel
	timer   *time.Timer
	started time.Time
	log     pslog.Logger
}

// Controller is created once at startup and shared by every entry point.
type Controller struct {
	mu     sync.Mutex
	active *run

	opener     channel.Opener
	terminal   Terminal
	editor     Editor
	inputs     Inputs
	flags      FlagCollector
	affordance Affordance
	view       ViewModes
	embedded   bool
	runTimeout time.Duration
	bus        *events.EventBus
}

func NewController(opts Options) *Controller {
	c := &Controller{
		opener:     opts.Opener,
		terminal:   opts.Terminal,
		editor:     opts.Editor,
		inputs:     opts.Inputs,
		flags:      opts.Flags,
		affordance: opts.Affordance,
		view:       opts.View,
		embedded:   opts.Embedded,
		runTimeout: opts.RunTimeout,
		bus:        opts.EventBus,
	}
	if c.terminal == nil {
		c.terminal = discardTerminal{}
	}
	if c.affordance == nil {
		c.affordance = noAffordance{}
	}
	return c
}

// Running reports whether a run holds the guard.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Embedded reports the startup embedded flag.
func (c *Controller) Embedded() bool { return c.embedded }

// HandleRunTrigger is bound to the run control and its shortcut. In
// embedded mode it always switches to the terminal view, even while a run
// is in flight; the run itself only starts when the guard is free.
func (c *Controller) HandleRunTrigger(ctx context.Context) error {
	if c.embedded && c.view != nil {
		c.view.ForceTerminalOnly()
	}
	if c.Running() {
		return nil
	}
	var source string
	if c.editor != nil {
		source = c.editor.Text()
	}
	if err := c.StartRun(ctx, source); err != nil && !errors.Is(err, ErrRunInProgress) {
		return err
	}
	return nil
}

// StartRun opens a session channel and sends the run request built from
// source and the current inputs. It returns ErrRunInProgress, with no other
// effect, while another run holds the guard.
func (c *Controller) StartRun(ctx context.Context, source string) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrRunInProgress
	}
	r := &run{id: uuid.NewString(), started: time.Now()}
	r.log = pslog.Ctx(ctx).With("run", r.id)
	c.active = r
	c.mu.Unlock()

	if c.opener == nil {
		err := errors.New("no session transport configured")
		c.finish(r, channel.ReasonError, err)
		return err
	}

	c.terminal.Reset()

	ch, err := c.opener.Open(ctx, channel.Handlers{
		OnOutput:     func(chunk []byte) { c.onOutput(r, chunk) },
		OnDisconnect: func(reason channel.Reason) { c.onDisconnect(r, reason) },
	})
	if err != nil {
		r.log.Error("open session failed", "err", err)
		c.finish(r, channel.ReasonError, err)
		return fmt.Errorf("open session: %w", err)
	}

	c.mu.Lock()
	if c.active != r {
		// Aborted or disconnected while opening.
		c.mu.Unlock()
		_ = ch.Close(channel.ReasonAborted)
		return nil
	}
	r.ch = ch
	r.log = r.log.With("channel", ch.ID())
	c.affordance.SetRunEnabled(false)
	if c.runTimeout > 0 {
		r.timer = time.AfterFunc(c.runTimeout, func() { c.expire(r) })
	}
	c.mu.Unlock()

	req := c.buildRequest(source)
	r.log.Info("run started", "language", req.Language, "flags", len(req.Flags))

	c.bus.Publish(events.Event{
		Type:  events.RunStarted,
		RunID: r.id,
		Data: map[string]interface{}{
			"language": req.Language,
			"flags":    req.Flags,
			"args":     req.Args,
		},
	})

	if err := ch.Send(RunEvent, req); err != nil {
		r.log.Error("send run request failed", "err", err)
		_ = ch.Close(channel.ReasonError)
		return fmt.Errorf("send run request: %w", err)
	}
	return nil
}

// Abort closes the in-flight run with reason aborted. It reports whether a
// run was active.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return false
	}
	return c.closeRun(r, channel.ReasonAborted)
}

func (c *Controller) expire(r *run) {
	if c.closeRun(r, channel.ReasonTimeout) {
		r.log.Warn("run timed out", "after", c.runTimeout.String())
	}
}

func (c *Controller) closeRun(r *run, reason channel.Reason) bool {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		return false
	}
	ch := r.ch
	if ch == nil {
		// Still opening: release now, StartRun closes the late channel.
		c.releaseLocked(r, reason, nil)
		c.mu.Unlock()
		c.announce(r, reason, nil)
		return true
	}
	c.mu.Unlock()

	if err := ch.Close(reason); err != nil {
		r.log.Warn("close session failed", "err", err)
	}
	return true
}

func (c *Controller) buildRequest(source string) RunRequest {
	req := RunRequest{Code: source, Flags: []string{}}
	if c.inputs != nil {
		req.Language = c.inputs.Language()
		req.Args = c.inputs.Args()
	}
	if c.flags != nil {
		if f := c.flags.Collect(); f != nil {
			req.Flags = f
		}
	}
	return req
}

// onOutput drops output of runs that no longer hold the guard so a late
// chunk never lands after the next run's reset.
func (c *Controller) onOutput(r *run, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != r {
		return
	}
	_, _ = c.terminal.Write(chunk)
}

func (c *Controller) onDisconnect(r *run, reason channel.Reason) {
	c.finish(r, reason, nil)
}

// finish releases the guard held by r. Notifications for any other run are
// ignored.
func (c *Controller) finish(r *run, reason channel.Reason, cause error) bool {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		r.log.Debug("ignoring stale disconnect", "reason", reason.String())
		return false
	}
	c.releaseLocked(r, reason, cause)
	c.mu.Unlock()

	c.announce(r, reason, cause)
	return true
}

// releaseLocked clears the guard. c.mu must be held and r must be active.
func (c *Controller) releaseLocked(r *run, reason channel.Reason, cause error) {
	c.active = nil
	if r.timer != nil {
		r.timer.Stop()
	}
	c.affordance.SetRunEnabled(true)
	if banner := Banner(reason, cause); banner != "" {
		_, _ = io.WriteString(c.terminal, banner)
	}
}

func (c *Controller) announce(r *run, reason channel.Reason, cause error) {
	elapsed := time.Since(r.started)
	data := map[string]interface{}{
		"reason":   reason.String(),
		"duration": elapsed.String(),
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	c.bus.Publish(events.Event{Type: events.RunFinished, RunID: r.id, Data: data})

	if reason == channel.ReasonCompleted {
		r.log.Info("run finished", "reason", reason.String(), "elapsed", elapsed.String())
	} else {
		r.log.Warn("run finished", "reason", reason.String(), "elapsed", elapsed.String())
	}
}

// Banner is the line written to the terminal when a run ends for a reason
// other than completion.
func Banner(reason channel.Reason, cause error) string {
	var msg string
	switch reason {
	case channel.ReasonCompleted:
		return ""
	case channel.ReasonTimeout:
		msg = "run timed out"
	case channel.ReasonAborted:
		msg = "run aborted"
	default:
		msg = "connection lost"
	}
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return "\r\n[" + msg + "]\r\n"
}

type discardTerminal struct{}

func (discardTerminal) Write(p []byte) (int, error) { return len(p), nil }
func (discardTerminal) Reset()                      {}

type noAffordance struct{}

func (noAffordance) SetRunEnabled(bool) {}
