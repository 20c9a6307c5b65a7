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

import "github.com/tigerkv/tigerkv/raw"

// Cursor navigates one table. Cursors belong to the session that opened them
// and close with it; buffers handed in are copied and buffers handed out
// belong to the caller.
type Cursor struct {
	sess   *Session
	rc     *raw.RawCursor
	closed bool
}

// SetKey stages the key for the next operation.
func (c *Cursor) SetKey(key []byte) error {
	if c.closed {
		return ErrClosedHandle
	}
	c.rc.SetKey(key)
	return nil
}

// SetValue stages the value for the next insert or update.
func (c *Cursor) SetValue(value []byte) error {
	if c.closed {
		return ErrClosedHandle
	}
	c.rc.SetValue(value)
	return nil
}

// GetRawKeyValue returns copies of the record the cursor stands on.
func (c *Cursor) GetRawKeyValue() ([]byte, []byte, error) {
	if c.closed {
		return nil, nil, ErrClosedHandle
	}
	k, err := c.rc.GetKey()
	if err != nil {
		return nil, nil, err
	}
	v, err := c.rc.GetValue()
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

// GetKey returns a copy of the cursor's current key.
func (c *Cursor) GetKey() ([]byte, error) {
	if c.closed {
		return nil, ErrClosedHandle
	}
	return c.rc.GetKey()
}

// GetValue returns a copy of the cursor's current value.
func (c *Cursor) GetValue() ([]byte, error) {
	if c.closed {
		return nil, ErrClosedHandle
	}
	return c.rc.GetValue()
}

// Next advances to the next record. Past the last record the error satisfies
// IsNotFound until the cursor is repositioned.
func (c *Cursor) Next() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Next()
}

// Prev moves to the previous record.
func (c *Cursor) Prev() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Prev()
}

// Search positions the cursor on the staged key.
func (c *Cursor) Search() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Search()
}

// SearchNear positions on the staged key or its nearest neighbor. The int is
// negative, zero or positive as the landed key compares to the sought one.
func (c *Cursor) SearchNear() (int, error) {
	if c.closed {
		return 0, ErrClosedHandle
	}
	return c.rc.SearchNear()
}

// Insert writes the staged key and value.
func (c *Cursor) Insert() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Insert()
}

// Update overwrites an existing record.
func (c *Cursor) Update() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Update()
}

// Remove deletes the record under the staged key.
func (c *Cursor) Remove() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Remove()
}

// Reserve locks the staged key against concurrent updates without writing.
// Only meaningful inside a transaction.
func (c *Cursor) Reserve() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Reserve()
}

// LargestKey stages the largest key in the table, visibility ignored.
func (c *Cursor) LargestKey() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.LargestKey()
}

// Reset returns the cursor to its unpositioned state.
func (c *Cursor) Reset() error {
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Reset()
}

// Bound sets or clears scan bounds built from the staged key.
func (c *Cursor) Bound(cfg *BoundConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Bound(confStr)
}

// Compare orders this cursor's key against other's. Both cursors must come
// from the same table.
func (c *Cursor) Compare(other *Cursor) (int, error) {
	if c.closed || other == nil || other.closed {
		return 0, ErrClosedHandle
	}
	return c.rc.Compare(other.rc)
}

// Equals reports whether both cursors stand on the same key.
func (c *Cursor) Equals(other *Cursor) (bool, error) {
	if c.closed || other == nil || other.closed {
		return false, ErrClosedHandle
	}
	return c.rc.Equals(other.rc)
}

// Reconfigure changes cursor settings such as overwrite.
func (c *Cursor) Reconfigure(cfg *CursorConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	if c.closed {
		return ErrClosedHandle
	}
	return c.rc.Reconfigure(confStr)
}

// Close releases the cursor. Closing twice is an error; closing after the
// session already closed it is too.
func (c *Cursor) Close() error {
	if c.closed {
		return ErrClosedHandle
	}
	c.closed = true
	c.sess.dropCursor(c)
	return c.rc.Close()
}
