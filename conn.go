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

// Package tigerkv is an embedded, transactional key-value store. A Connection
// owns one database home; Sessions are its units of work; Cursors navigate
// tables; Transactions group writes atomically. Handles close exactly once
// and children before parents, and this layer enforces that so the engine
// below never sees a use-after-close.
package tigerkv

import (
	"sync"

	"github.com/tigerkv/tigerkv/raw"
)

// Connection is an open database home. It is safe for concurrent use; the
// sessions it hands out are not.
type Connection struct {
	rc *raw.RawConnection

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Open opens the database under home, creating it when cfg allows.
func Open(home string, cfg *ConnectionConfig) (*Connection, error) {
	confStr, err := cfg.build()
	if err != nil {
		return nil, err
	}
	rc, err := raw.Open(home, confStr)
	if err != nil {
		return nil, err
	}
	return &Connection{rc: rc, sessions: make(map[*Session]struct{})}, nil
}

// OpenSession starts a new session.
func (c *Connection) OpenSession(cfg *SessionConfig) (*Session, error) {
	confStr, err := cfg.build()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosedHandle
	}
	rs, err := c.rc.OpenSession(confStr)
	if err != nil {
		return nil, err
	}
	s := &Session{conn: c, rs: rs, cursors: make(map[*Cursor]struct{})}
	c.sessions[s] = struct{}{}
	return s, nil
}

// Reconfigure applies runtime-changeable connection settings.
func (c *Connection) Reconfigure(cfg *ConnectionConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Reconfigure(confStr)
}

// Home returns the database home directory.
func (c *Connection) Home() string {
	return c.rc.Home()
}

// IsNew reports whether this open created the database.
func (c *Connection) IsNew() bool {
	return c.rc.IsNew()
}

// Stats returns a point-in-time copy of the connection counters.
func (c *Connection) Stats() map[string]int64 {
	return c.rc.Stats()
}

// Close shuts the database down. Sessions still open are closed implicitly;
// a transaction running in one of them is abandoned, which rolls it back.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosedHandle
	}
	c.closed = true
	open := make([]*Session, 0, len(c.sessions))
	for s := range c.sessions {
		open = append(open, s)
	}
	c.sessions = nil
	c.mu.Unlock()

	for _, s := range open {
		s.abandon()
	}
	return c.rc.Close("")
}

func (c *Connection) dropSession(s *Session) {
	c.mu.Lock()
	if c.sessions != nil {
		delete(c.sessions, s)
	}
	c.mu.Unlock()
}
