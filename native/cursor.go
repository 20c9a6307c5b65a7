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
	"bytes"
	"math"
	"sort"

	"github.com/tigerkv/tigerkv/utils"
)

// cursorImpl navigates one table. Reads merge the committed store with the
// session's pending transaction writes; the pending side wins on equal keys.
type cursorImpl struct {
	sess *sessionImpl
	tbl  *table
	uri  string

	overwrite bool
	readonly  bool
	appendRec bool
	raw       bool
	bulk      bool

	key    []byte
	val    []byte
	keySet bool
	valSet bool

	pos        []byte
	positioned bool
	atEnd      bool
	atStart    bool

	lower, upper       []byte
	lowerInc, upperInc bool

	closed bool
}

// keyOK reports whether a usable key is staged. The versioned store cannot
// represent a zero-length key.
func (c *cursorImpl) keyOK() bool {
	return c.keySet && len(c.key) > 0
}

func (c *cursorImpl) resetLocked() {
	c.key, c.val = nil, nil
	c.keySet, c.valSet = false, false
	c.pos, c.positioned = nil, false
	c.atEnd, c.atStart = false, false
}

func (c *cursorImpl) setPosition(k, v []byte) {
	c.key, c.val = k, v
	c.keySet, c.valSet = true, true
	c.pos = k
	c.positioned = true
	c.atEnd, c.atStart = false, false
}

func (c *cursorImpl) inBounds(k []byte) bool {
	if c.lower != nil {
		cmp := bytes.Compare(k, c.lower)
		if cmp < 0 || (cmp == 0 && !c.lowerInc) {
			return false
		}
	}
	if c.upper != nil {
		cmp := bytes.Compare(k, c.upper)
		if cmp > 0 || (cmp == 0 && !c.upperInc) {
			return false
		}
	}
	return true
}

func (c *cursorImpl) pendingSorted() ([]string, map[string]*write) {
	if c.sess.txn == nil {
		return nil, nil
	}
	tb := c.sess.txn.pending[c.tbl.name]
	if len(tb) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(tb))
	for k := range tb {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, tb
}

// mergedNext returns the first merged record at or after start (after, when
// incl is false). start nil scans from the front.
func (c *cursorImpl) mergedNext(start []byte, incl bool, readTs uint64) ([]byte, []byte, bool) {
	vi := c.tbl.newVisIter(readTs)
	if start == nil {
		vi.rewind()
	} else {
		vi.seek(start)
		if !incl && vi.valid && bytes.Equal(vi.key, start) {
			vi.next()
		}
	}
	keys, tb := c.pendingSorted()
	i := 0
	if start != nil {
		i = sort.SearchStrings(keys, string(start))
		if !incl && i < len(keys) && keys[i] == string(start) {
			i++
		}
	}
	for {
		havePending := i < len(keys)
		if !vi.valid && !havePending {
			return nil, nil, false
		}
		if havePending && (!vi.valid || keys[i] <= string(vi.key)) {
			// pending 覆盖同名的已提交记录
			w := tb[keys[i]]
			if vi.valid && keys[i] == string(vi.key) {
				vi.next()
			}
			i++
			if w.meta&(utils.BitDelete|bitReserve) != 0 {
				continue
			}
			return utils.Copy(w.key), utils.Copy(w.val), true
		}
		return vi.key, vi.val, true
	}
}

// mergedPrev is the reverse twin of mergedNext. start nil scans from the back.
func (c *cursorImpl) mergedPrev(start []byte, incl bool, readTs uint64) ([]byte, []byte, bool) {
	vi := c.tbl.newVisIter(readTs)
	if start == nil {
		vi.rewindLast()
	} else {
		vi.seekForPrev(start)
		if !incl && vi.valid && bytes.Equal(vi.key, start) {
			vi.prev()
		}
	}
	keys, tb := c.pendingSorted()
	j := len(keys) - 1
	if start != nil {
		i := sort.SearchStrings(keys, string(start))
		if i < len(keys) && keys[i] == string(start) {
			j = i
			if !incl {
				j--
			}
		} else {
			j = i - 1
		}
	}
	for {
		havePending := j >= 0
		if !vi.valid && !havePending {
			return nil, nil, false
		}
		if havePending && (!vi.valid || keys[j] >= string(vi.key)) {
			w := tb[keys[j]]
			if vi.valid && keys[j] == string(vi.key) {
				vi.prev()
			}
			j--
			if w.meta&(utils.BitDelete|bitReserve) != 0 {
				continue
			}
			return utils.Copy(w.key), utils.Copy(w.val), true
		}
		return vi.key, vi.val, true
	}
}

func (c *cursorImpl) next() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	if c.atEnd {
		// 反复越过末尾仍然返回 NotFound
		return StatusNotFound
	}
	readTs, done := s.readView()
	defer done()

	var start []byte
	incl := true
	switch {
	case c.positioned:
		start, incl = c.pos, false
	case c.lower != nil:
		start, incl = c.lower, c.lowerInc
	}
	k, v, ok := c.mergedNext(start, incl, readTs)
	if ok && !c.inBounds(k) {
		ok = false
	}
	if !ok {
		c.resetLocked()
		c.atEnd = true
		return StatusNotFound
	}
	c.setPosition(k, v)
	return StatusOK
}

func (c *cursorImpl) prev() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	if c.atStart {
		return StatusNotFound
	}
	readTs, done := s.readView()
	defer done()

	var start []byte
	incl := true
	switch {
	case c.positioned:
		start, incl = c.pos, false
	case c.upper != nil:
		start, incl = c.upper, c.upperInc
	}
	k, v, ok := c.mergedPrev(start, incl, readTs)
	if ok && !c.inBounds(k) {
		ok = false
	}
	if !ok {
		c.resetLocked()
		c.atStart = true
		return StatusNotFound
	}
	c.setPosition(k, v)
	return StatusOK
}

// lookup resolves one key through the pending overlay, then the committed
// store. Returns the value and whether the key is visible.
func (c *cursorImpl) lookup(key []byte, readTs uint64) ([]byte, bool) {
	if w, ok := c.sess.pendingGet(c.tbl, key); ok && w.meta&bitReserve == 0 {
		if w.meta&utils.BitDelete != 0 {
			return nil, false
		}
		return utils.Copy(w.val), true
	}
	vs, ok := c.tbl.getVisible(key, readTs)
	if !ok {
		return nil, false
	}
	return utils.Copy(vs.Value), true
}

func (c *cursorImpl) search() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() {
		return EINVAL
	}
	s.conn.st.searches.Add(1)
	readTs, done := s.readView()
	defer done()

	if !c.inBounds(c.key) {
		c.positioned = false
		c.valSet = false
		return StatusNotFound
	}
	v, ok := c.lookup(c.key, readTs)
	if !ok {
		c.positioned = false
		c.valSet = false
		return StatusNotFound
	}
	c.setPosition(utils.Copy(c.key), v)
	return StatusOK
}

// searchNear lands on the sought key when visible, otherwise the nearest
// neighbor inside the bounds, preferring the larger side.
func (c *cursorImpl) searchNear() (int, int) {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() {
		return 0, EINVAL
	}
	s.conn.st.searches.Add(1)
	readTs, done := s.readView()
	defer done()

	sought := utils.Copy(c.key)
	if c.inBounds(sought) {
		if v, ok := c.lookup(sought, readTs); ok {
			c.setPosition(sought, v)
			return 0, StatusOK
		}
	}
	if k, v, ok := c.mergedNext(sought, true, readTs); ok && c.inBounds(k) {
		c.setPosition(k, v)
		return 1, StatusOK
	}
	if k, v, ok := c.mergedPrev(sought, true, readTs); ok && c.inBounds(k) {
		c.setPosition(k, v)
		return -1, StatusOK
	}
	c.positioned = false
	c.valSet = false
	return 0, StatusNotFound
}

func (c *cursorImpl) insert() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() || !c.valSet {
		return EINVAL
	}
	if c.readonly {
		return EPERM
	}
	if !c.overwrite {
		readTs, done := s.readView()
		_, exists := c.lookup(c.key, readTs)
		done()
		if exists {
			return StatusDuplicateKey
		}
	}
	code := s.applyWrite(c.tbl, c.key, c.val, 0)
	if code != StatusOK {
		return code
	}
	s.conn.st.inserts.Add(1)
	// 插入后游标回到未定位状态
	c.resetLocked()
	return StatusOK
}

func (c *cursorImpl) update() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() || !c.valSet {
		return EINVAL
	}
	if c.readonly {
		return EPERM
	}
	readTs, done := s.readView()
	_, exists := c.lookup(c.key, readTs)
	done()
	if !exists {
		return StatusNotFound
	}
	code := s.applyWrite(c.tbl, c.key, c.val, 0)
	if code != StatusOK {
		return code
	}
	s.conn.st.updates.Add(1)
	c.setPosition(utils.Copy(c.key), utils.Copy(c.val))
	return StatusOK
}

func (c *cursorImpl) remove() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() {
		return EINVAL
	}
	if c.readonly {
		return EPERM
	}
	readTs, done := s.readView()
	_, exists := c.lookup(c.key, readTs)
	done()
	if !exists {
		return StatusNotFound
	}
	code := s.applyWrite(c.tbl, c.key, nil, utils.BitDelete)
	if code != StatusOK {
		return code
	}
	s.conn.st.removes.Add(1)
	// key 保留, 位置与 value 失效
	c.pos, c.positioned = nil, false
	c.val, c.valSet = nil, false
	c.atEnd, c.atStart = false, false
	return StatusOK
}

// reserve locks the key against concurrent updates without writing it. Only
// meaningful inside a transaction.
func (c *cursorImpl) reserve() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || !c.keyOK() {
		return EINVAL
	}
	if s.txn == nil {
		return EINVAL
	}
	if c.readonly {
		return EPERM
	}
	readTs, done := s.readView()
	v, exists := c.lookup(c.key, readTs)
	done()
	if !exists {
		return StatusNotFound
	}
	return s.applyWrite(c.tbl, c.key, v, bitReserve)
}

func (c *cursorImpl) largestKey() int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return EINVAL
	}

	// all versions count, tombstones and uncommitted writes included
	var best []byte
	it := c.tbl.sl.NewSkipListIterator()
	if c.upper != nil {
		it.SeekForPrev(utils.KeyWithTs(c.upper, 0))
	} else {
		it.RewindLast()
	}
	for it.Valid() {
		k := utils.Copy(utils.ParseKey(it.Key()))
		if c.inBounds(k) {
			best = k
			break
		}
		if c.lower != nil && bytes.Compare(k, c.lower) < 0 {
			break
		}
		// 越过这个 key 的全部版本
		it.SeekForPrev(utils.KeyWithTs(k, math.MaxUint64))
		if it.Valid() && utils.SameKey(it.Key(), utils.KeyWithTs(k, math.MaxUint64)) {
			it.Prev()
		}
	}
	if keys, _ := c.pendingSorted(); len(keys) > 0 {
		for j := len(keys) - 1; j >= 0; j-- {
			k := []byte(keys[j])
			if c.inBounds(k) {
				if best == nil || bytes.Compare(k, best) > 0 {
					best = utils.Copy(k)
				}
				break
			}
		}
	}
	if best == nil {
		return StatusNotFound
	}
	c.key, c.keySet = best, true
	c.val, c.valSet = nil, false
	c.pos, c.positioned = nil, false
	return StatusOK
}

func (c *cursorImpl) bound(confStr string) int {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, boundScope)
	if code != StatusOK {
		return code
	}
	which := conf.str("bound", "")
	if conf.str("action", "set") == "clear" {
		switch which {
		case "lower":
			c.lower = nil
		case "upper":
			c.upper = nil
		default:
			c.lower, c.upper = nil, nil
		}
		return StatusOK
	}
	if !c.keyOK() || which == "" {
		return EINVAL
	}
	inclusive := conf.bool("inclusive", true)
	k := utils.Copy(c.key)
	switch which {
	case "lower":
		if c.upper != nil && bytes.Compare(k, c.upper) > 0 {
			return EINVAL
		}
		c.lower, c.lowerInc = k, inclusive
	case "upper":
		if c.lower != nil && bytes.Compare(k, c.lower) < 0 {
			return EINVAL
		}
		c.upper, c.upperInc = k, inclusive
	}
	return StatusOK
}

func (c *cursorImpl) compare(other *cursorImpl) (int, int) {
	s := c.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || other == nil || other.closed {
		return 0, EINVAL
	}
	if c.tbl != other.tbl {
		return 0, EINVAL
	}
	if !c.keySet || !other.keySet {
		return 0, EINVAL
	}
	return bytes.Compare(c.key, other.key), StatusOK
}

func (c *cursorImpl) setKey(k []byte) {
	c.sess.mu.Lock()
	c.key = utils.Copy(k)
	c.keySet = true
	c.sess.mu.Unlock()
}

func (c *cursorImpl) setValue(v []byte) {
	c.sess.mu.Lock()
	c.val = utils.Copy(v)
	c.valSet = true
	c.sess.mu.Unlock()
}

func (c *cursorImpl) getKey() ([]byte, int) {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	if !c.keySet {
		return nil, EINVAL
	}
	return utils.Copy(c.key), StatusOK
}

func (c *cursorImpl) getValue() ([]byte, int) {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	if !c.valSet {
		return nil, EINVAL
	}
	return utils.Copy(c.val), StatusOK
}

func (c *cursorImpl) reset() int {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	c.resetLocked()
	return StatusOK
}

func (c *cursorImpl) reconfigure(confStr string) int {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, cursorScope)
	if code != StatusOK {
		return code
	}
	c.overwrite = conf.bool("overwrite", c.overwrite)
	c.readonly = conf.bool("readonly", c.readonly)
	c.appendRec = conf.bool("append", c.appendRec)
	c.raw = conf.bool("raw", c.raw)
	return StatusOK
}

func (c *cursorImpl) close() int {
	if c.closed {
		return EINVAL
	}
	c.closed = true
	c.sess.dropCursor(c)
	return StatusOK
}
