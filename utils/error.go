// Copyright 2021 tigerkv Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License")
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"errors"
	"fmt"

	pkgerr "github.com/pkg/errors"
)

var (
	// ErrEmptyKey is returned if an empty key is staged for an update operation.
	ErrEmptyKey = errors.New("Key cannot be empty")
	// ErrBadMagic bad magic
	ErrBadMagic = errors.New("bad magic")
	// ErrBadChecksum is returned at checksum mismatch.
	ErrBadChecksum = errors.New("bad check sum")
	// ErrBadInternalKey is raised when a key without a version suffix reaches
	// the ordered store.
	ErrBadInternalKey = errors.New("internal key is missing its version suffix")
	// ErrTruncate marks a partially written tail record in the log.
	ErrTruncate = errors.New("Do truncate")
	// ErrNulByte is raised when a string argument contains an embedded NUL.
	ErrNulByte = errors.New("string argument contains an embedded NUL byte")
)

// Panic 如果err 不为nil 则panic
func Panic(err error) {
	if err != nil {
		panic(err)
	}
}

// CondPanic e
func CondPanic(condition bool, err error) {
	if condition {
		Panic(err)
	}
}

// AssertTrue asserts that b is true. Otherwise, it would log fatal.
func AssertTrue(b bool) {
	if !b {
		panic(fmt.Errorf("Assert failed"))
	}
}

// Wrapf is errors.Wrapf used only in the badger codebase.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerr.Wrapf(err, format, args...)
}

// Wrap wraps errors from external lib.
func Wrap(err error, msg string) error {
	return pkgerr.Wrap(err, msg)
}
