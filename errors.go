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

package tigerkv

import (
	"github.com/pkg/errors"

	"github.com/tigerkv/tigerkv/raw"
)

// Lifetime violations caught by this layer before any engine call.
var (
	// ErrClosedHandle is returned when a closed handle is used again.
	ErrClosedHandle = errors.New("handle already closed")
	// ErrTxnActive is returned when a session with a running transaction is
	// closed or asked to start another one.
	ErrTxnActive = errors.New("session has a running transaction")
	// ErrTxnFinished is returned when a finalized transaction is finalized
	// again.
	ErrTxnFinished = errors.New("transaction already finalized")
)

// IsNotFound reports whether err is the engine's "no matching record"
// sentinel.
func IsNotFound(err error) bool {
	return raw.IsNotFound(err)
}

// IsRollback reports whether err says a transaction lost a conflict and must
// be retried.
func IsRollback(err error) bool {
	return raw.IsRollback(err)
}

// IsDuplicateKey reports whether err is the duplicate key status.
func IsDuplicateKey(err error) bool {
	return raw.IsDuplicateKey(err)
}

// Strerror exposes the engine's code-to-message facility.
func Strerror(code int) string {
	return raw.Strerror(code)
}
