package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner is the only way the assembler touches external processes. It runs
// tool with args, feeding input on stdin, and returns what the tool wrote to
// stdout.
type Runner interface {
	Run(ctx context.Context, tool string, args []string, input []byte) ([]byte, error)
}

// ToolError is returned when a tool exits non-zero or cannot be started.
type ToolError struct {
	Tool   string
	Err    error
	Stderr string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("error running %s: %v. stderr:\n%s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type ExecRunner struct {
	// Dir is the working directory of every command. Empty means the
	// current directory.
	Dir string
}

func (r ExecRunner) Run(ctx context.Context, tool string, args []string, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	c := exec.CommandContext(ctx, tool, args...)
	c.Dir = r.Dir
	c.Stdout = &stdout
	c.Stderr = &stderr
	if input != nil {
		c.Stdin = bytes.NewReader(input)
	}

	if err := c.Run(); err != nil {
		return nil, &ToolError{Tool: tool, Err: err, Stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}
