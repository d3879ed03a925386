package inject

import (
	"context"
	"fmt"
	"os/exec"
)

const defaultTypeCommand = "ydotool"

var defaultTypeArgs = []string{"type"}

// CommandSink types text by running an external tool once per fragment,
// with the fragment appended as the final argument. The default invocation
// is `ydotool type <text>`; wtype or xdotool work the same way.
type CommandSink struct {
	command string
	args    []string
}

// NewCommandSink resolves the typing tool on PATH and returns the sink.
// A missing tool is reported here so the pipeline fails before capturing
// any audio.
func NewCommandSink(command string, args []string) (*CommandSink, error) {
	if command == "" {
		command = defaultTypeCommand
		if len(args) == 0 {
			args = defaultTypeArgs
		}
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("typing tool %q not found in PATH: %w", command, err)
	}

	return &CommandSink{command: path, args: args}, nil
}

// Name returns the backend name.
func (s *CommandSink) Name() string { return BackendCommand }

// Type runs the typing tool with the fragment as its last argument.
func (s *CommandSink) Type(ctx context.Context, text string) error {
	args := make([]string, 0, len(s.args)+1)
	args = append(args, s.args...)
	args = append(args, text)

	cmd := exec.CommandContext(ctx, s.command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w (output: %s)", s.command, err, output)
	}

	return nil
}
