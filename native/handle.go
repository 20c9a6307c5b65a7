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

// Package native is the engine's handle-based call surface. Every handle
// carries a table of operation slots; callers check the integer status of
// every call and may not touch a handle after closing it. The raw and safe
// wrapper layers above this package depend only on these tables and on
// Strerror.
package native

// Conn is the top-level handle for one database home.
type Conn struct {
	Ops *ConnOps

	ci *connImpl
}

// ConnOps is the connection's operation table.
type ConnOps struct {
	Close       func(config string) int
	Reconfigure func(config string) int
	GetHome     func() string
	IsNew       func() bool
	OpenSession func(config string) (*Session, int)
	Stats       func() map[string]int64
}

// Session is the handle for one unit of work.
type Session struct {
	Ops *SessionOps

	si *sessionImpl
}

// SessionOps is the session's operation table.
type SessionOps struct {
	Close       func(config string) int
	Reconfigure func(config string) int

	Create  func(uri, config string) int
	Drop    func(uri, config string) int
	Compact func(uri, config string) int

	OpenCursor func(uri, config string) (*Cursor, int)
	Duplicate  func(orig *Cursor, config string) (*Cursor, int)

	BeginTransaction    func(config string) int
	CommitTransaction   func(config string) int
	RollbackTransaction func(config string) int
	PrepareTransaction  func(config string) int
	InTransaction       func() bool

	Reset      func() int
	Checkpoint func(config string) int
}

// Cursor is the handle for navigating one table.
type Cursor struct {
	Ops *CursorOps

	ci *cursorImpl
}

// CursorOps is the cursor's operation table.
type CursorOps struct {
	Close       func() int
	Reconfigure func(config string) int

	SetKey   func(key []byte)
	SetValue func(value []byte)
	GetKey   func() ([]byte, int)
	GetValue func() ([]byte, int)

	Next       func() int
	Prev       func() int
	Reset      func() int
	Search     func() int
	SearchNear func() (int, int)

	Insert     func() int
	Update     func() int
	Remove     func() int
	Reserve    func() int
	LargestKey func() int

	Bound   func(config string) int
	Compare func(other *Cursor) (int, int)
	Equals  func(other *Cursor) (int, int)
}

// Open opens or creates the database under home and hands back the
// connection.
func Open(home, config string) (*Conn, int) {
	ci, code := openConn(home, config)
	if code != StatusOK {
		return nil, code
	}
	return bindConn(ci), StatusOK
}

func bindConn(ci *connImpl) *Conn {
	c := &Conn{ci: ci}
	c.Ops = &ConnOps{
		Close:       ci.close,
		Reconfigure: ci.reconfigure,
		GetHome:     func() string { return ci.home },
		IsNew:       func() bool { return ci.isNew },
		OpenSession: func(config string) (*Session, int) {
			si, code := newSession(ci, config)
			if code != StatusOK {
				return nil, code
			}
			return bindSession(si), StatusOK
		},
		Stats: ci.st.snapshot,
	}
	return c
}

func bindSession(si *sessionImpl) *Session {
	s := &Session{si: si}
	s.Ops = &SessionOps{
		Close:       si.close,
		Reconfigure: si.reconfigure,

		Create:  si.create,
		Drop:    si.drop,
		Compact: si.compact,

		OpenCursor: func(uri, config string) (*Cursor, int) {
			ci, code := si.openCursor(uri, config)
			if code != StatusOK {
				return nil, code
			}
			return bindCursor(ci), StatusOK
		},
		Duplicate: func(orig *Cursor, config string) (*Cursor, int) {
			if orig == nil || orig.ci == nil {
				return nil, EINVAL
			}
			ci, code := si.duplicate(orig.ci, config)
			if code != StatusOK {
				return nil, code
			}
			return bindCursor(ci), StatusOK
		},

		BeginTransaction:    si.beginTxn,
		CommitTransaction:   si.commitTxn,
		RollbackTransaction: si.rollbackTxn,
		PrepareTransaction:  si.prepareTxn,
		InTransaction:       si.inTxn,

		Reset:      si.reset,
		Checkpoint: si.checkpoint,
	}
	return s
}

func bindCursor(ci *cursorImpl) *Cursor {
	c := &Cursor{ci: ci}
	c.Ops = &CursorOps{
		Close:       ci.close,
		Reconfigure: ci.reconfigure,

		SetKey:   ci.setKey,
		SetValue: ci.setValue,
		GetKey:   ci.getKey,
		GetValue: ci.getValue,

		Next:       ci.next,
		Prev:       ci.prev,
		Reset:      ci.reset,
		Search:     ci.search,
		SearchNear: ci.searchNear,

		Insert:     ci.insert,
		Update:     ci.update,
		Remove:     ci.remove,
		Reserve:    ci.reserve,
		LargestKey: ci.largestKey,

		Bound: ci.bound,
		Compare: func(other *Cursor) (int, int) {
			if other == nil {
				return 0, EINVAL
			}
			return ci.compare(other.ci)
		},
		Equals: func(other *Cursor) (int, int) {
			if other == nil {
				return 0, EINVAL
			}
			cmp, code := ci.compare(other.ci)
			if code != StatusOK {
				return 0, code
			}
			if cmp == 0 {
				return 1, StatusOK
			}
			return 0, StatusOK
		},
	}
	return c
}
