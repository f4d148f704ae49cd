package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

// CommandRunner abstracts subprocess execution for testability. Stdout and
// stderr are returned separately so tool failures can surface the error
// stream verbatim.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (stdout []byte, stderr []byte, err error)
}

type ExecCommandRunner struct{}

func (r ExecCommandRunner) Run(ctx context.Context, cmd Command) ([]byte, []byte, error) {
	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		command.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		command.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		command.Stdin = cmd.Stdin
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
