// Package errs provides the typed error kinds debugedit propagates out of
// its DWARF rewriting core: format violations, constraint violations and
// resource errors (see spec §7). All three are fatal at the point they are
// raised; callers distinguish them with errors.As rather than string
// matching.
package errs

import "fmt"

// Kind classifies a debugedit error per the three categories the
// specification enumerates.
type Kind int

const (
	// Format marks a malformed DWARF/ELF encoding: unknown version, bad
	// form, truncated CU, duplicate abbreviation code, and similar.
	Format Kind = iota
	// Constraint marks a value that parses fine but violates a rule this
	// tool enforces, e.g. an unsupported relocation type for the target
	// machine, or an address_size mismatch between a line table and its CU.
	Constraint
	// Resource marks an I/O or allocation failure unrelated to the bytes
	// being interpreted.
	Resource
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format violation"
	case Constraint:
		return "constraint violation"
	case Resource:
		return "resource error"
	default:
		return "unknown error"
	}
}

// Error wraps an underlying cause with a Kind, so it can be inspected with
// errors.As without parsing the message.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap generalizes the teacher's utils.MakeError into a typed, kind-aware
// constructor: it formats detailsBody with args the same way fmt.Errorf
// would, then attaches cause so %w-style chains keep working through
// errors.Is/errors.As.
func Wrap(kind Kind, cause error, detailsBody string, args ...any) error {
	return &Error{
		Kind:  kind,
		Msg:   fmt.Sprintf(detailsBody, args...),
		Cause: cause,
	}
}

// Newf builds a typed error with no wrapped cause.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Formatf is a convenience constructor for the common Format kind.
func Formatf(format string, args ...any) error {
	return Newf(Format, format, args...)
}

// Constraintf is a convenience constructor for the common Constraint kind.
func Constraintf(format string, args ...any) error {
	return Newf(Constraint, format, args...)
}

// Resourcef is a convenience constructor for the common Resource kind.
func Resourcef(format string, args ...any) error {
	return Newf(Resource, format, args...)
}
