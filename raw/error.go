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

// Package raw wraps the engine's handle tables one to one. Every operation
// slot is checked before the call, string arguments are validated against
// embedded NUL bytes, and integer statuses come back as *Error values whose
// text is always the engine's own Strerror output.
package raw

import (
	"errors"
	"strings"

	pkgerr "github.com/pkg/errors"

	"github.com/tigerkv/tigerkv/native"
	"github.com/tigerkv/tigerkv/utils"
)

// Error is one nonzero engine status.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// statusErr translates an engine status into an error. Zero is success.
func statusErr(code int) error {
	if code == native.StatusOK {
		return nil
	}
	return &Error{Code: code, Message: native.Strerror(code)}
}

// IsNotFound reports whether err is the engine's "no matching record"
// sentinel.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == native.StatusNotFound
}

// IsRollback reports whether err says the transaction lost a conflict and
// must be retried.
func IsRollback(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == native.StatusRollback
}

// IsDuplicateKey reports whether err is the duplicate key status.
func IsDuplicateKey(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == native.StatusDuplicateKey
}

// Strerror exposes the engine's code-to-message facility.
func Strerror(code int) string {
	return native.Strerror(code)
}

// checkNul panics when a string argument carries an embedded NUL. The handle
// layer treats configuration and uri arguments as C strings; a NUL would
// silently truncate them.
func checkNul(s string) {
	if strings.IndexByte(s, 0) >= 0 {
		utils.Panic(utils.ErrNulByte)
	}
}

// opPanic reports a handle whose operation slot is missing. A nil slot is a
// programming error, not a runtime condition.
func opPanic(op string) {
	utils.Panic(pkgerr.Errorf("handle operation %q is not implemented", op))
}
