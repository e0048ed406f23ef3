package linker

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind uint8

const (
	// ParseError covers malformed patch sources and placement mistakes.
	ParseError ErrorKind = iota
	// ObjectError covers object files whose shape cannot be placed.
	ObjectError
	// RelocationError covers fixups that cannot be applied.
	RelocationError
)

func (k ErrorKind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case ObjectError:
		return "unsupported object"
	case RelocationError:
		return "relocation failed"
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// Error is a fatal build error of a known category. Toolchain failures are
// reported as *toolchain.ToolError instead.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// errNotPlaced is returned by passes that need origins when free space has
// not been allocated yet.
var errNotPlaced = &Error{Kind: ParseError, Msg: "chunk has no origin"}

func newError(kind ErrorKind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// KindOf reports the category of err, if it is one of ours.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
