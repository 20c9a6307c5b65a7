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

package raw

import "github.com/tigerkv/tigerkv/native"

// RawSession wraps the session handle.
type RawSession struct {
	s *native.Session
}

// Close ends the session. A running transaction is rolled back and open
// cursors are closed implicitly.
func (rs *RawSession) Close(config string) error {
	checkNul(config)
	fn := rs.s.Ops.Close
	if fn == nil {
		opPanic("session.close")
	}
	return statusErr(fn(config))
}

// Reconfigure applies session settings such as the default isolation level.
func (rs *RawSession) Reconfigure(config string) error {
	checkNul(config)
	fn := rs.s.Ops.Reconfigure
	if fn == nil {
		opPanic("session.reconfigure")
	}
	return statusErr(fn(config))
}

// Create creates the table named by uri. Creating an existing table succeeds
// unless exclusive was configured.
func (rs *RawSession) Create(uri, config string) error {
	checkNul(uri)
	checkNul(config)
	fn := rs.s.Ops.Create
	if fn == nil {
		opPanic("session.create")
	}
	return statusErr(fn(uri, config))
}

// Drop removes the table named by uri.
func (rs *RawSession) Drop(uri, config string) error {
	checkNul(uri)
	checkNul(config)
	fn := rs.s.Ops.Drop
	if fn == nil {
		opPanic("session.drop")
	}
	return statusErr(fn(uri, config))
}

// Compact reclaims space held by dead versions of the table's keys.
func (rs *RawSession) Compact(uri, config string) error {
	checkNul(uri)
	checkNul(config)
	fn := rs.s.Ops.Compact
	if fn == nil {
		opPanic("session.compact")
	}
	return statusErr(fn(uri, config))
}

// OpenCursor opens a cursor on the table named by uri.
func (rs *RawSession) OpenCursor(uri, config string) (*RawCursor, error) {
	checkNul(uri)
	checkNul(config)
	fn := rs.s.Ops.OpenCursor
	if fn == nil {
		opPanic("session.open_cursor")
	}
	c, code := fn(uri, config)
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return &RawCursor{c: c}, nil
}

// Duplicate opens a second cursor positioned where orig is.
func (rs *RawSession) Duplicate(orig *RawCursor, config string) (*RawCursor, error) {
	checkNul(config)
	fn := rs.s.Ops.Duplicate
	if fn == nil {
		opPanic("session.duplicate")
	}
	if orig == nil {
		return nil, statusErr(native.EINVAL)
	}
	c, code := fn(orig.c, config)
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return &RawCursor{c: c}, nil
}

// BeginTransaction starts a transaction on the session.
func (rs *RawSession) BeginTransaction(config string) error {
	checkNul(config)
	fn := rs.s.Ops.BeginTransaction
	if fn == nil {
		opPanic("session.begin_transaction")
	}
	return statusErr(fn(config))
}

// CommitTransaction publishes the transaction's writes. On a conflict the
// transaction keeps running and the caller must roll it back.
func (rs *RawSession) CommitTransaction(config string) error {
	checkNul(config)
	fn := rs.s.Ops.CommitTransaction
	if fn == nil {
		opPanic("session.commit_transaction")
	}
	return statusErr(fn(config))
}

// RollbackTransaction discards the transaction's writes.
func (rs *RawSession) RollbackTransaction(config string) error {
	checkNul(config)
	fn := rs.s.Ops.RollbackTransaction
	if fn == nil {
		opPanic("session.rollback_transaction")
	}
	return statusErr(fn(config))
}

// PrepareTransaction marks the transaction ready to commit; further data
// operations are refused.
func (rs *RawSession) PrepareTransaction(config string) error {
	checkNul(config)
	fn := rs.s.Ops.PrepareTransaction
	if fn == nil {
		opPanic("session.prepare_transaction")
	}
	return statusErr(fn(config))
}

// InTransaction reports whether the session has a running transaction.
func (rs *RawSession) InTransaction() bool {
	fn := rs.s.Ops.InTransaction
	if fn == nil {
		opPanic("session.in_transaction")
	}
	return fn()
}

// Reset returns every cursor of the session to its unpositioned state.
func (rs *RawSession) Reset() error {
	fn := rs.s.Ops.Reset
	if fn == nil {
		opPanic("session.reset")
	}
	return statusErr(fn())
}

// Checkpoint forces the log durable and compacts it.
func (rs *RawSession) Checkpoint(config string) error {
	checkNul(config)
	fn := rs.s.Ops.Checkpoint
	if fn == nil {
		opPanic("session.checkpoint")
	}
	return statusErr(fn(config))
}
