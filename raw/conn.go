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

// RawConnection wraps the connection handle. It performs no lifetime
// bookkeeping of its own; that is the safe layer's job.
type RawConnection struct {
	c *native.Conn
}

// Open opens or creates the database under home.
func Open(home, config string) (*RawConnection, error) {
	checkNul(home)
	checkNul(config)
	c, code := native.Open(home, config)
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return &RawConnection{c: c}, nil
}

// Close shuts the connection down. The handle must not be used afterwards.
func (rc *RawConnection) Close(config string) error {
	checkNul(config)
	fn := rc.c.Ops.Close
	if fn == nil {
		opPanic("connection.close")
	}
	return statusErr(fn(config))
}

// Reconfigure applies runtime-changeable connection settings.
func (rc *RawConnection) Reconfigure(config string) error {
	checkNul(config)
	fn := rc.c.Ops.Reconfigure
	if fn == nil {
		opPanic("connection.reconfigure")
	}
	return statusErr(fn(config))
}

// Home returns the database home directory.
func (rc *RawConnection) Home() string {
	fn := rc.c.Ops.GetHome
	if fn == nil {
		opPanic("connection.get_home")
	}
	return fn()
}

// IsNew reports whether this open created the database.
func (rc *RawConnection) IsNew() bool {
	fn := rc.c.Ops.IsNew
	if fn == nil {
		opPanic("connection.is_new")
	}
	return fn()
}

// OpenSession starts a new session on the connection.
func (rc *RawConnection) OpenSession(config string) (*RawSession, error) {
	checkNul(config)
	fn := rc.c.Ops.OpenSession
	if fn == nil {
		opPanic("connection.open_session")
	}
	s, code := fn(config)
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return &RawSession{s: s}, nil
}

// Stats returns a point-in-time copy of the connection counters.
func (rc *RawConnection) Stats() map[string]int64 {
	fn := rc.c.Ops.Stats
	if fn == nil {
		opPanic("connection.stats")
	}
	return fn()
}
