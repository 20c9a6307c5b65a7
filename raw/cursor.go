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

// RawCursor wraps the cursor handle. Key and value buffers handed in are
// copied by the engine, and buffers handed out are copies the caller owns.
type RawCursor struct {
	c *native.Cursor
}

// SetKey stages the key for the next operation.
func (rc *RawCursor) SetKey(key []byte) {
	fn := rc.c.Ops.SetKey
	if fn == nil {
		opPanic("cursor.set_key")
	}
	fn(key)
}

// SetValue stages the value for the next insert or update.
func (rc *RawCursor) SetValue(value []byte) {
	fn := rc.c.Ops.SetValue
	if fn == nil {
		opPanic("cursor.set_value")
	}
	fn(value)
}

// GetKey returns a copy of the cursor's current key.
func (rc *RawCursor) GetKey() ([]byte, error) {
	fn := rc.c.Ops.GetKey
	if fn == nil {
		opPanic("cursor.get_key")
	}
	k, code := fn()
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return k, nil
}

// GetValue returns a copy of the cursor's current value.
func (rc *RawCursor) GetValue() ([]byte, error) {
	fn := rc.c.Ops.GetValue
	if fn == nil {
		opPanic("cursor.get_value")
	}
	v, code := fn()
	if code != native.StatusOK {
		return nil, statusErr(code)
	}
	return v, nil
}

// Next advances to the next record.
func (rc *RawCursor) Next() error {
	fn := rc.c.Ops.Next
	if fn == nil {
		opPanic("cursor.next")
	}
	return statusErr(fn())
}

// Prev moves to the previous record.
func (rc *RawCursor) Prev() error {
	fn := rc.c.Ops.Prev
	if fn == nil {
		opPanic("cursor.prev")
	}
	return statusErr(fn())
}

// Search positions the cursor on the staged key.
func (rc *RawCursor) Search() error {
	fn := rc.c.Ops.Search
	if fn == nil {
		opPanic("cursor.search")
	}
	return statusErr(fn())
}

// SearchNear positions on the staged key or its nearest neighbor. The int is
// negative, zero or positive as the landed key compares to the sought one.
func (rc *RawCursor) SearchNear() (int, error) {
	fn := rc.c.Ops.SearchNear
	if fn == nil {
		opPanic("cursor.search_near")
	}
	exact, code := fn()
	if code != native.StatusOK {
		return 0, statusErr(code)
	}
	return exact, nil
}

// Insert writes the staged key and value.
func (rc *RawCursor) Insert() error {
	fn := rc.c.Ops.Insert
	if fn == nil {
		opPanic("cursor.insert")
	}
	return statusErr(fn())
}

// Update overwrites an existing record.
func (rc *RawCursor) Update() error {
	fn := rc.c.Ops.Update
	if fn == nil {
		opPanic("cursor.update")
	}
	return statusErr(fn())
}

// Remove deletes the record under the staged key.
func (rc *RawCursor) Remove() error {
	fn := rc.c.Ops.Remove
	if fn == nil {
		opPanic("cursor.remove")
	}
	return statusErr(fn())
}

// Reserve locks the staged key against concurrent updates without writing.
func (rc *RawCursor) Reserve() error {
	fn := rc.c.Ops.Reserve
	if fn == nil {
		opPanic("cursor.reserve")
	}
	return statusErr(fn())
}

// LargestKey stages the largest key in the table, visibility ignored.
func (rc *RawCursor) LargestKey() error {
	fn := rc.c.Ops.LargestKey
	if fn == nil {
		opPanic("cursor.largest_key")
	}
	return statusErr(fn())
}

// Reset returns the cursor to its unpositioned state.
func (rc *RawCursor) Reset() error {
	fn := rc.c.Ops.Reset
	if fn == nil {
		opPanic("cursor.reset")
	}
	return statusErr(fn())
}

// Bound sets or clears a scan bound from the staged key.
func (rc *RawCursor) Bound(config string) error {
	checkNul(config)
	fn := rc.c.Ops.Bound
	if fn == nil {
		opPanic("cursor.bound")
	}
	return statusErr(fn(config))
}

// Compare orders this cursor's key against other's.
func (rc *RawCursor) Compare(other *RawCursor) (int, error) {
	fn := rc.c.Ops.Compare
	if fn == nil {
		opPanic("cursor.compare")
	}
	if other == nil {
		return 0, statusErr(native.EINVAL)
	}
	cmp, code := fn(other.c)
	if code != native.StatusOK {
		return 0, statusErr(code)
	}
	return cmp, nil
}

// Equals reports whether both cursors stand on the same key.
func (rc *RawCursor) Equals(other *RawCursor) (bool, error) {
	fn := rc.c.Ops.Equals
	if fn == nil {
		opPanic("cursor.equals")
	}
	if other == nil {
		return false, statusErr(native.EINVAL)
	}
	eq, code := fn(other.c)
	if code != native.StatusOK {
		return false, statusErr(code)
	}
	return eq != 0, nil
}

// Reconfigure changes cursor settings such as overwrite.
func (rc *RawCursor) Reconfigure(config string) error {
	checkNul(config)
	fn := rc.c.Ops.Reconfigure
	if fn == nil {
		opPanic("cursor.reconfigure")
	}
	return statusErr(fn(config))
}

// Close releases the cursor.
func (rc *RawCursor) Close() error {
	fn := rc.c.Ops.Close
	if fn == nil {
		opPanic("cursor.close")
	}
	return statusErr(fn())
}
