// Package safe isolates calls into collaborator code so that a panicking
// callback becomes an ordinary error.
package safe

import (
	"github.com/sourcegraph/conc/panics"
)

// Call runs fn and converts a panic into an error.
func Call(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = fn()
	})
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// Go runs fn, returning the panic as an error, or nil.
func Go(fn func()) error {
	return Call(func() error {
		fn()
		return nil
	})
}

// Bool runs fn and reports its result; a panic yields false and the error.
func Bool(fn func() bool) (ok bool, err error) {
	err = Call(func() error {
		ok = fn()
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}
