// Package skillerrors defines the closed set of error kinds produced by the
// skills runtime: registry, policy, executor, and both sandbox backends all
// return values of this type so callers can pattern-match with errors.As.
package skillerrors

import "fmt"

// Kind enumerates the closed set of failure categories the runtime produces.
type Kind int

const (
	SkillNotFound Kind = iota
	InvalidManifest
	PermissionDenied
	ToolNotAllowed
	Timeout
	WasmError
	NativeExecutionError
	SandboxError
	UnsupportedPlatform
	Io
	Yaml
	Json
	BuildError
)

func (k Kind) String() string {
	switch k {
	case SkillNotFound:
		return "skill not found"
	case InvalidManifest:
		return "invalid manifest"
	case PermissionDenied:
		return "permission denied"
	case ToolNotAllowed:
		return "tool not allowed"
	case Timeout:
		return "execution timeout"
	case WasmError:
		return "wasm execution failed"
	case NativeExecutionError:
		return "native execution failed"
	case SandboxError:
		return "sandbox error"
	case UnsupportedPlatform:
		return "unsupported platform"
	case Io:
		return "io error"
	case Yaml:
		return "yaml error"
	case Json:
		return "json error"
	case BuildError:
		return "build error"
	default:
		return "unknown error"
	}
}

// Error is the runtime's single exported error type. Detail carries the
// message payload; Cause, when set, is the underlying wrapped error.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with a formatted detail message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error carrying an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Is reports whether err is a skillerrors.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if se, ok := err.(*Error); ok {
		e = se
	} else {
		return false
	}
	return e.Kind == kind
}
