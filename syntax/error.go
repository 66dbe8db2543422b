// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package syntax

import (
	"bytes"

	"github.com/plumblang/plumb/errors"
)

// ParseErrors collects the diagnostics produced by a parse. Each
// entry is span-tagged; rendering yields one line per diagnostic.
type ParseErrors []*errors.Error

func (e ParseErrors) Error() string {
	b := new(bytes.Buffer)
	for i, err := range e {
		b.WriteString(err.ErrorSeparator(": "))
		if i != len(e)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// errlist accumulates parse diagnostics.
type errlist []*errors.Error

func (e errlist) Append(err error) errlist {
	if err == nil {
		return e
	}
	switch err := err.(type) {
	case *errors.Error:
		return append(e, err)
	case ParseErrors:
		return append(e, err...)
	default:
		return append(e, errors.Recover(err))
	}
}

func (e errlist) Make() error {
	if len(e) > 0 {
		return ParseErrors(e)
	}
	return nil
}
