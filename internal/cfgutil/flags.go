// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"errors"
	"io/fs"
	"os"
)

// ExplicitString is a string flag that remembers whether go-flags set it.
// txprep uses it for --configfile, where a missing default file is fine but a
// missing file the user named is an error.
type ExplicitString struct {
	Value string
	set   bool
}

// NewExplicitString returns a flag holding defaultValue that reports itself
// as not explicitly set.
func NewExplicitString(defaultValue string) *ExplicitString {
	return &ExplicitString{Value: defaultValue}
}

// ExplicitlySet reports whether UnmarshalFlag has been called.
func (e *ExplicitString) ExplicitlySet() bool {
	return e.set
}

// MarshalFlag implements the flags.Marshaler interface.
func (e *ExplicitString) MarshalFlag() (string, error) {
	return e.Value, nil
}

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (e *ExplicitString) UnmarshalFlag(value string) error {
	e.Value, e.set = value, true
	return nil
}

// FileExists reports whether path names an existing file or directory.  Any
// stat error other than not-exist is returned.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil

	case errors.Is(err, fs.ErrNotExist):
		return false, nil

	default:
		return false, err
	}
}
