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
	"math"
	"sync/atomic"

	"github.com/tigerkv/tigerkv/utils"
)

// table 一个命名数据源, 多版本数据都放在同一个跳表里
type table struct {
	name     string
	conf     string // creation config string, replayed on reopen
	createTs uint64
	refs     atomic.Int64 // open cursors, drop refuses while > 0
	sl       *utils.Skiplist
}

func newTable(name, conf string) *table {
	return &table{name: name, conf: conf, sl: utils.NewSkiplist()}
}

func (t *table) put(e *utils.Entry) {
	t.sl.Add(e)
}

// getVisible returns the newest version of key at or below readTs.
func (t *table) getVisible(key []byte, readTs uint64) (utils.ValueStruct, bool) {
	target := utils.KeyWithTs(key, readTs)
	it := t.sl.NewSkipListIterator()
	it.Seek(target)
	if !it.Valid() || !utils.SameKey(it.Key(), target) {
		return utils.ValueStruct{}, false
	}
	vs := it.Value()
	if vs.IsDeleted() {
		return utils.ValueStruct{}, false
	}
	return vs, true
}

// latestTs returns the newest version of key regardless of snapshot, 0 when
// the key has never been written. Used for first-updater-wins checks inside a
// running transaction.
func (t *table) latestTs(key []byte) uint64 {
	target := utils.KeyWithTs(key, math.MaxUint64)
	it := t.sl.NewSkipListIterator()
	it.Seek(target)
	if !it.Valid() || !utils.SameKey(it.Key(), target) {
		return 0
	}
	return utils.ParseTs(it.Key())
}

// visIter walks the live records of one table at a fixed snapshot: one record
// per user key, tombstones elided. Positions are user keys, not internal keys.
type visIter struct {
	it     *utils.SkipListIterator
	readTs uint64
	key    []byte
	val    []byte
	meta   byte
	ver    uint64
	valid  bool
}

func (t *table) newVisIter(readTs uint64) *visIter {
	return &visIter{it: t.sl.NewSkipListIterator(), readTs: readTs}
}

func (v *visIter) setFrom() {
	ik := v.it.Key()
	vs := v.it.Value()
	v.key = utils.Copy(utils.ParseKey(ik))
	v.val = utils.Copy(vs.Value)
	v.meta = vs.Meta
	v.ver = utils.ParseTs(ik)
	v.valid = true
}

// skipUser moves the raw iterator past every remaining version of k.
func (v *visIter) skipUser(k []byte) {
	oldest := utils.KeyWithTs(k, 0)
	v.it.Seek(oldest)
	if v.it.Valid() && utils.SameKey(v.it.Key(), oldest) {
		v.it.Next()
	}
}

// settleFwd advances from the raw position to the next visible record.
func (v *visIter) settleFwd() {
	for v.it.Valid() {
		ik := v.it.Key()
		k := utils.ParseKey(ik)
		if utils.ParseTs(ik) > v.readTs {
			// 对当前快照太新, 跳到这个 key 的可见版本
			v.it.Seek(utils.KeyWithTs(k, v.readTs))
			continue
		}
		vs := v.it.Value()
		if vs.IsDeleted() {
			v.skipUser(k)
			continue
		}
		v.setFrom()
		return
	}
	v.valid = false
}

// settleRev walks backwards to the previous visible record. At each candidate
// user key it probes forward for the version the snapshot sees.
func (v *visIter) settleRev() {
	for v.it.Valid() {
		k := utils.Copy(utils.ParseKey(v.it.Key()))
		target := utils.KeyWithTs(k, v.readTs)
		v.it.Seek(target)
		if v.it.Valid() && utils.SameKey(v.it.Key(), target) {
			vs := v.it.Value()
			if !vs.IsDeleted() {
				v.setFrom()
				return
			}
		}
		// key 在当前快照不可见, 继续向前
		v.prevUser(k)
	}
	v.valid = false
}

// prevUser moves the raw iterator to the last internal key before any version
// of k.
func (v *visIter) prevUser(k []byte) {
	newest := utils.KeyWithTs(k, math.MaxUint64)
	v.it.SeekForPrev(newest)
	if !v.it.Valid() {
		return
	}
	if utils.SameKey(v.it.Key(), newest) {
		v.it.Prev()
	}
}

func (v *visIter) rewind() {
	v.it.Rewind()
	v.settleFwd()
}

func (v *visIter) rewindLast() {
	v.it.RewindLast()
	v.settleRev()
}

// seek positions at the first visible user key >= key.
func (v *visIter) seek(key []byte) {
	v.it.Seek(utils.KeyWithTs(key, math.MaxUint64))
	v.settleFwd()
}

// seekForPrev positions at the last visible user key <= key.
func (v *visIter) seekForPrev(key []byte) {
	v.it.SeekForPrev(utils.KeyWithTs(key, 0))
	v.settleRev()
}

func (v *visIter) next() {
	if !v.valid {
		return
	}
	v.skipUser(v.key)
	v.settleFwd()
}

func (v *visIter) prev() {
	if !v.valid {
		return
	}
	v.prevUser(v.key)
	v.settleRev()
}
