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

package native

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Engine status protocol: 0 is success, positive codes are OS errno values,
// negative codes in the -30800 block are engine specific. NotFound is a
// sentinel, not a failure; callers of search-style operations treat it as an
// empty result.
const (
	StatusOK = 0

	// StatusRollback means the operation lost a race with a concurrent
	// transaction; the whole transaction must be retried from its start.
	StatusRollback = -30800
	// StatusDuplicateKey is returned by insert with overwrite disabled.
	StatusDuplicateKey = -30801
	// StatusError is a non-specific engine failure.
	StatusError = -30802
	// StatusNotFound is the reserved "no matching record" sentinel.
	StatusNotFound = -30803
	// StatusPanic means the engine hit an unrecoverable internal fault.
	StatusPanic = -30804
	// StatusRunRecovery means the log must be recovered before use.
	StatusRunRecovery = -30806
	// StatusPrepareConflict means the operation raced a prepared transaction.
	StatusPrepareConflict = -30808
	// StatusTrySalvage means on-disk state is unreadable; salvage or recreate.
	StatusTrySalvage = -30809
)

// Errno-range codes the engine hands back for input and environment problems.
var (
	EINVAL = int(unix.EINVAL)
	ENOENT = int(unix.ENOENT)
	EEXIST = int(unix.EEXIST)
	EBUSY  = int(unix.EBUSY)
	EIO    = int(unix.EIO)
	EPERM  = int(unix.EPERM)
)

var statusMsg = map[int]string{
	StatusRollback:        "TIGERKV_ROLLBACK: conflict between concurrent operations",
	StatusDuplicateKey:    "TIGERKV_DUPLICATE_KEY: attempt to insert an existing key",
	StatusError:           "TIGERKV_ERROR: non-specific error",
	StatusNotFound:        "TIGERKV_NOTFOUND: item not found",
	StatusPanic:           "TIGERKV_PANIC: fatal error",
	StatusRunRecovery:     "TIGERKV_RUN_RECOVERY: recovery must be run",
	StatusPrepareConflict: "TIGERKV_PREPARE_CONFLICT: conflict with a prepared transaction",
	StatusTrySalvage:      "TIGERKV_TRY_SALVAGE: database corruption detected",
}

// Strerror is the engine's only code-to-message facility. Wrapper layers must
// not fabricate their own text for engine codes.
func Strerror(code int) string {
	if code == StatusOK {
		return "successful operation"
	}
	if msg, ok := statusMsg[code]; ok {
		return msg
	}
	if code > 0 {
		return unix.Errno(code).Error()
	}
	return fmt.Sprintf("unknown error: %d", code)
}
