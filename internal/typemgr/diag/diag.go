// Package diag carries the Type Manager's structured error kinds
// (spec.md §7), following the same Stage/Severity/Code taxonomy as the
// teacher's own internal/diag package.
package diag

// Stage identifies which Type Manager phase produced the diagnostic.
type Stage string

const (
	StageRegistry  Stage = "registry"
	StageScanner   Stage = "scanner"
	StageDispatch  Stage = "dispatch"
	StageEmit      Stage = "emit"
)

// Severity captures how impactful the diagnostic is. Per spec.md §7, all
// Type Manager errors are fatal to the compilation unit; Severity exists
// so a future caller that aggregates diagnostics from other subsystems can
// treat ours uniformly.
type Severity string

const (
	SeverityError Severity = "error"
)

// Code is a stable identifier for a diagnostic, one per spec.md §7 error
// kind.
type Code string

const (
	// CodeMissingClass: the class-file loader cannot find a required class.
	CodeMissingClass Code = "TYPEMGR_MISSING_CLASS"
	// CodeMissingImplementation: an interface method is used, but no
	// concrete implementation exists in the hierarchy.
	CodeMissingImplementation Code = "TYPEMGR_MISSING_IMPLEMENTATION"
	// CodeLateRegistration: a type/field registration occurred after the
	// scan-finish latch.
	CodeLateRegistration Code = "TYPEMGR_LATE_REGISTRATION"
	// CodeUnsupportedType: an array of unknown element kind was requested.
	CodeUnsupportedType Code = "TYPEMGR_UNSUPPORTED_TYPE"
	// CodeIOFailure: class-file loader I/O failed.
	CodeIOFailure Code = "TYPEMGR_IO_FAILURE"
)

// Diagnostic is a Type Manager diagnostic. Unlike the teacher's own
// diag.Diagnostic, this carries no source Span: the Type Manager's input
// is already-parsed class files, identified by name, not source text
// locations.
type Diagnostic struct {
	Stage    Stage
	Severity Severity
	Code     Code
	Message  string
	// Offender is the name (class, field, or type key) that the
	// diagnostic is about, when applicable.
	Offender string
}

func (d Diagnostic) Error() string {
	if d.Offender == "" {
		return string(d.Code) + ": " + d.Message
	}
	return string(d.Code) + ": " + d.Message + ": " + d.Offender
}

// New builds a fatal Diagnostic for the given code, message, and offender.
func New(stage Stage, code Code, message, offender string) *Diagnostic {
	return &Diagnostic{
		Stage:    stage,
		Severity: SeverityError,
		Code:     code,
		Message:  message,
		Offender: offender,
	}
}
