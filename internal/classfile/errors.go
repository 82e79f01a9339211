package classfile

import "errors"

// Sentinel errors a Loader wraps with fmt.Errorf("%w: ...") so callers can
// use errors.Is.
var (
	ErrNotFound   = errors.New("classfile: not found")
	ErrIsInterface = errors.New("classfile: is an interface")
	ErrIsClass    = errors.New("classfile: is a class")
)
