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
	"sync"

	"github.com/tigerkv/tigerkv/raw"
)

// Session is one unit of work against the database. A session and everything
// opened from it must be used from a single goroutine at a time.
type Session struct {
	conn *Connection
	rs   *raw.RawSession

	mu      sync.Mutex
	txn     *Transaction
	cursors map[*Cursor]struct{}
	closed  bool
}

// Create creates the table named by uri, for example "table:users".
func (s *Session) Create(uri string, cfg *CreateConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Create(uri, confStr)
}

// Drop removes the table named by uri.
func (s *Session) Drop(uri string, cfg *DropConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Drop(uri, confStr)
}

// Compact reclaims space held by dead versions of the table's keys.
func (s *Session) Compact(uri string, cfg *CompactConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Compact(uri, confStr)
}

// OpenCursor opens a cursor on the table named by uri.
func (s *Session) OpenCursor(uri string, cfg *CursorConfig) (*Cursor, error) {
	confStr, err := cfg.build()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosedHandle
	}
	rc, err := s.rs.OpenCursor(uri, confStr)
	if err != nil {
		return nil, err
	}
	cur := &Cursor{sess: s, rc: rc}
	s.cursors[cur] = struct{}{}
	return cur, nil
}

// Duplicate opens a second cursor positioned where orig is.
func (s *Session) Duplicate(orig *Cursor, cfg *CursorConfig) (*Cursor, error) {
	confStr, err := cfg.build()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosedHandle
	}
	if orig == nil || orig.closed {
		return nil, ErrClosedHandle
	}
	rc, err := s.rs.Duplicate(orig.rc, confStr)
	if err != nil {
		return nil, err
	}
	cur := &Cursor{sess: s, rc: rc}
	s.cursors[cur] = struct{}{}
	return cur, nil
}

// Begin starts a transaction. One transaction runs per session at a time.
func (s *Session) Begin(cfg *BeginConfig) (*Transaction, error) {
	confStr, err := cfg.build()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosedHandle
	}
	if s.txn != nil && s.txn.state == TxnActive {
		return nil, ErrTxnActive
	}
	if err := s.rs.BeginTransaction(confStr); err != nil {
		return nil, err
	}
	s.txn = &Transaction{sess: s, state: TxnActive}
	return s.txn, nil
}

// Transaction returns the most recently begun transaction, finalized or not,
// or nil.
func (s *Session) Transaction() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// Reset returns every cursor of the session to its unpositioned state.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Reset()
}

// Checkpoint forces the log durable and compacts it.
func (s *Session) Checkpoint(cfg *CheckpointConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Checkpoint(confStr)
}

// Reconfigure applies session settings such as the default isolation level.
func (s *Session) Reconfigure(cfg *SessionConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedHandle
	}
	return s.rs.Reconfigure(confStr)
}

// Close ends the session and implicitly closes its cursors. A session with a
// running transaction refuses to close; finalize the transaction first.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosedHandle
	}
	if s.txn != nil && s.txn.state == TxnActive {
		s.mu.Unlock()
		return ErrTxnActive
	}
	s.closeCursorsLocked()
	s.closed = true
	s.mu.Unlock()

	s.conn.dropSession(s)
	return s.rs.Close("")
}

// abandon force-closes the session on behalf of a closing connection. A
// running transaction moves to the Abandoned state, which the engine treats
// as a rollback.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.txn != nil && s.txn.state == TxnActive {
		s.txn.state = TxnAbandoned
	}
	s.closeCursorsLocked()
	s.closed = true
}

func (s *Session) closeCursorsLocked() {
	for cur := range s.cursors {
		cur.closed = true
	}
	s.cursors = make(map[*Cursor]struct{})
}

func (s *Session) dropCursor(cur *Cursor) {
	s.mu.Lock()
	delete(s.cursors, cur)
	s.mu.Unlock()
}
