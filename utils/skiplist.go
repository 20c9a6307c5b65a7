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

package utils

import (
	"math/rand"
	"sync"
)

const maxHeight = 20

// node keys are internal keys: user key plus the inverted version suffix, so
// versions of one user key sit adjacent, newest first.
type node struct {
	key   []byte
	vs    ValueStruct
	tower []*node
}

// Skiplist is the ordered in-memory store behind a data source. All access
// goes through the embedded lock; a single list may be shared by many
// sessions of one connection.
type Skiplist struct {
	lock   sync.RWMutex
	height int
	head   *node
	length int
	size   int64
}

// NewSkiplist _
func NewSkiplist() *Skiplist {
	return &Skiplist{
		height: 1,
		head:   &node{tower: make([]*node, maxHeight)},
	}
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && rand.Int31n(2) == 0 {
		h++
	}
	return h
}

// findNear finds the node near to key.
// If less=true, it finds rightmost node such that node.key < key (if allowEqual=false) or
// node.key <= key (if allowEqual=true).
// If less=false, it finds leftmost node such that node.key > key (if allowEqual=false) or
// node.key >= key (if allowEqual=true).
// Returns the node found. The bool returned is true if the node has key equal to given key.
func (s *Skiplist) findNear(key []byte, less bool, allowEqual bool) (*node, bool) {
	x := s.head
	level := s.height - 1
	for {
		next := x.tower[level]
		if next == nil {
			if level > 0 {
				level--
				continue
			}
			if !less || x == s.head {
				return nil, false
			}
			return x, false
		}

		cmp := CompareKeys(key, next.key)
		if cmp > 0 {
			x = next
			continue
		}
		if cmp == 0 {
			if allowEqual {
				return next, true
			}
			if !less {
				return next.tower[0], false
			}
			if level > 0 {
				level--
				continue
			}
			if x == s.head {
				return nil, false
			}
			return x, false
		}
		// cmp < 0
		if level > 0 {
			level--
			continue
		}
		if !less {
			return next, false
		}
		if x == s.head {
			return nil, false
		}
		return x, false
	}
}

func (s *Skiplist) findSpliceForLevel(key []byte, before *node, level int) (*node, *node) {
	for {
		next := before.tower[level]
		if next == nil {
			return before, nil
		}
		cmp := CompareKeys(key, next.key)
		if cmp == 0 {
			return next, next
		}
		if cmp < 0 {
			return before, next
		}
		before = next
	}
}

// Add inserts the entry, overwriting the value when the exact internal key is
// already present.
func (s *Skiplist) Add(e *Entry) {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := KeyWithTs(e.Key, e.Version)
	vs := ValueStruct{Meta: e.Meta, Value: e.Value}

	var prev [maxHeight + 1]*node
	var next [maxHeight + 1]*node
	prev[s.height] = s.head
	for i := s.height - 1; i >= 0; i-- {
		prev[i], next[i] = s.findSpliceForLevel(key, prev[i+1], i)
		if prev[i] == next[i] {
			prev[i].vs = vs
			return
		}
	}

	height := s.randomHeight()
	if height > s.height {
		for i := s.height; i < height; i++ {
			prev[i] = s.head
		}
		s.height = height
	}

	nd := &node{key: key, vs: vs, tower: make([]*node, height)}
	for i := 0; i < height; i++ {
		nd.tower[i] = prev[i].tower[i]
		prev[i].tower[i] = nd
	}
	s.length++
	s.size += e.EstimateSize()
}

// Search returns the value stored under the exact internal key.
func (s *Skiplist) Search(key []byte) (ValueStruct, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	nd, found := s.findNear(key, false, true)
	if !found {
		return ValueStruct{}, false
	}
	return nd.vs, true
}

// Length returns the number of internal keys in the list.
func (s *Skiplist) Length() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.length
}

// MemSize returns an estimate of the bytes held by the list.
func (s *Skiplist) MemSize() int64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.size
}

// SkipListIterator is an iterator over the internal keys of the list. The
// iterator holds no lock between calls; it is only coherent while the owning
// session serializes access, which mirrors the engine's session threading
// rule.
type SkipListIterator struct {
	list *Skiplist
	n    *node
}

// NewSkipListIterator _
func (s *Skiplist) NewSkipListIterator() *SkipListIterator {
	return &SkipListIterator{list: s}
}

// Valid _
func (it *SkipListIterator) Valid() bool {
	return it.n != nil
}

// Key returns the internal key at the current position.
func (it *SkipListIterator) Key() []byte {
	AssertTrue(it.Valid())
	return it.n.key
}

// Value returns value.
func (it *SkipListIterator) Value() ValueStruct {
	AssertTrue(it.Valid())
	return it.n.vs
}

// Next advances to the next internal key.
func (it *SkipListIterator) Next() {
	AssertTrue(it.Valid())
	it.list.lock.RLock()
	it.n = it.n.tower[0]
	it.list.lock.RUnlock()
}

// Prev moves to the previous internal key.
func (it *SkipListIterator) Prev() {
	AssertTrue(it.Valid())
	it.list.lock.RLock()
	it.n, _ = it.list.findNear(it.n.key, true, false)
	it.list.lock.RUnlock()
}

// Seek positions at the first internal key >= key.
func (it *SkipListIterator) Seek(key []byte) {
	it.list.lock.RLock()
	it.n, _ = it.list.findNear(key, false, true)
	it.list.lock.RUnlock()
}

// SeekForPrev positions at the last internal key <= key.
func (it *SkipListIterator) SeekForPrev(key []byte) {
	it.list.lock.RLock()
	it.n, _ = it.list.findNear(key, true, true)
	it.list.lock.RUnlock()
}

// Rewind positions at the first internal key.
func (it *SkipListIterator) Rewind() {
	it.list.lock.RLock()
	it.n = it.list.head.tower[0]
	it.list.lock.RUnlock()
}

// RewindLast positions at the last internal key.
func (it *SkipListIterator) RewindLast() {
	it.list.lock.RLock()
	x := it.list.head
	for level := it.list.height - 1; level >= 0; level-- {
		for x.tower[level] != nil {
			x = x.tower[level]
		}
	}
	if x == it.list.head {
		it.n = nil
	} else {
		it.n = x
	}
	it.list.lock.RUnlock()
}
