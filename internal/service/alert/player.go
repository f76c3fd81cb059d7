package alert

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// CommandPlayer plays a sound file with an external command such as
// "aplay -q" or "afplay".
type CommandPlayer struct {
	name string
	args []string
}

// NewCommandPlayer splits command on whitespace and appends file.
func NewCommandPlayer(command, file string) (*CommandPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty sound command")
	}
	args := append(fields[1:len(fields):len(fields)], file)
	return &CommandPlayer{name: fields[0], args: args}, nil
}

// Args returns the full command line.
func (p *CommandPlayer) Args() []string {
	return append([]string{p.name}, p.args...)
}

func (p *CommandPlayer) Play(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, p.name, p.args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s: %s", p.name, strings.TrimSpace(string(out)))
	}
	return nil
}
