package pipeline

import (
	"strings"
	"sync"
	"time"

	"camwatch/internal/logger"
)

// Controller is the single entry point for control-surface commands, shared by
// the keyboard and the HTTP API.
type Controller struct {
	state    *State
	log      *logger.Logger
	now      func() time.Time
	quit     chan struct{}
	quitOnce sync.Once
	hooks    []func(change string, s Settings)
}

// NewController wraps state.
func NewController(state *State, log *logger.Logger) *Controller {
	return &Controller{state: state, log: log, now: time.Now, quit: make(chan struct{})}
}

// State returns the controlled state.
func (c *Controller) State() *State {
	return c.state
}

// OnChange registers a callback run after every applied command or Set, with
// the command or setting name. Register before use.
func (c *Controller) OnChange(fn func(change string, s Settings)) {
	c.hooks = append(c.hooks, fn)
}

// Execute applies cmd and returns its status message.
func (c *Controller) Execute(cmd Command) string {
	if cmd == CmdNone {
		return ""
	}
	if cmd == CmdQuit {
		c.quitOnce.Do(func() {
			c.log.Info("Quit requested")
			close(c.quit)
		})
		return "Quit"
	}
	msg := c.state.Apply(cmd, c.now())
	if msg != "" {
		c.log.Info("Control: %s", msg)
	}
	c.changed(cmd.String())
	return msg
}

// Set assigns an absolute value to a setting, see State.Set.
func (c *Controller) Set(name string, value float64) (string, error) {
	msg, err := c.state.Set(name, value, c.now())
	if err != nil {
		return "", err
	}
	c.log.Info("Control: %s", msg)
	c.changed(strings.ToLower(strings.TrimSpace(name)))
	return msg, nil
}

func (c *Controller) changed(change string) {
	settings := c.state.Snapshot()
	for _, fn := range c.hooks {
		fn(change, settings)
	}
}

// Quit is closed once a quit command was executed.
func (c *Controller) Quit() <-chan struct{} {
	return c.quit
}
