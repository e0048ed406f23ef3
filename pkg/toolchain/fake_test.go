package toolchain

import (
	"context"
	"strings"
)

// Call is one recorded invocation of a FakeRunner.
type Call struct {
	Tool  string
	Args  []string
	Input []byte
}

// FakeRunner hands every invocation to a handler instead of starting a
// process. Tests use it to return fixture objects.
type FakeRunner struct {
	handler func(tool string, args []string, input []byte) ([]byte, error)
	Calls   []Call
}

func NewFakeRunner(handler func(tool string, args []string, input []byte) ([]byte, error)) *FakeRunner {
	return &FakeRunner{handler: handler}
}

func (f *FakeRunner) Run(ctx context.Context, tool string, args []string, input []byte) ([]byte, error) {
	f.Calls = append(f.Calls, Call{
		Tool:  tool,
		Args:  append([]string(nil), args...),
		Input: input,
	})
	return f.handler(tool, args, input)
}

// Tools returns the base names of the tools invoked so far, in order.
func (f *FakeRunner) Tools() []string {
	var tools []string
	for _, c := range f.Calls {
		name := c.Tool
		if i := strings.LastIndexAny(name, `/\`); i >= 0 {
			name = name[i+1:]
		}
		tools = append(tools, strings.TrimSuffix(name, ".exe"))
	}
	return tools
}

// OutputArg returns the value following "-o" in args, or "".
func OutputArg(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-o" {
			return args[i+1]
		}
	}
	return ""
}
