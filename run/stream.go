// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"github.com/plumblang/plumb/values"
)

// A stream is a finite, ordered, lazy sequence of values. The
// driver is pull-based: each call to next returns the stream's next
// value, reporting ok=false once the stream is exhausted. Streams
// are single-pass.
type stream func() (v values.T, ok bool, err error)

// emptyStream is the stream with no values.
func emptyStream() (values.T, bool, error) {
	return values.Null, false, nil
}

// sliceStream streams the provided values in order.
func sliceStream(items []values.T) stream {
	i := 0
	return func() (values.T, bool, error) {
		if i >= len(items) {
			return values.Null, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}
}

// singleStream streams exactly one value.
func singleStream(v values.T) stream {
	return sliceStream([]values.T{v})
}

// drain pulls the stream to exhaustion, returning its values.
// An empty upstream yields an empty (nil) slice, never an error.
func drain(s stream) ([]values.T, error) {
	var items []values.T
	for {
		v, ok, err := s()
		if err != nil {
			return items, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, v)
	}
}

// collectStream defers a whole-upstream computation until the first
// pull, then streams the computed values. Collecting stages
// (grouping, ranking, merging) are built on it.
func collectStream(compute func() ([]values.T, error)) stream {
	var (
		started bool
		items   []values.T
		i       int
	)
	return func() (values.T, bool, error) {
		if !started {
			started = true
			var err error
			items, err = compute()
			if err != nil {
				return values.Null, false, err
			}
		}
		if i >= len(items) {
			return values.Null, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}
}
