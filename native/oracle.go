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
	"sync"

	"github.com/cespare/xxhash/v2"
)

type committedTxn struct {
	ts uint64
	// fps are fingerprints of the keys the transaction wrote.
	fps map[uint64]struct{}
}

// oracle hands out read and commit timestamps and remembers recently committed
// write sets for conflict detection.
type oracle struct {
	// commitMu serializes the whole commit path: conflict check, log append,
	// memtable apply, timestamp bump.
	commitMu sync.Mutex

	sync.Mutex // guards everything below
	// nextTxnTs is the timestamp the next commit will take. Reads snapshot at
	// nextTxnTs-1.
	nextTxnTs     uint64
	activeReads   map[uint64]int
	committedTxns []committedTxn
}

func newOracle(nextTs uint64) *oracle {
	return &oracle{
		nextTxnTs:   nextTs,
		activeReads: make(map[uint64]int),
	}
}

func fingerprint(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// beginRead registers a snapshot. Every beginRead must be paired with a
// doneRead or committed write sets can never be pruned.
func (o *oracle) beginRead() uint64 {
	o.Lock()
	defer o.Unlock()
	ts := o.nextTxnTs - 1
	o.activeReads[ts]++
	return ts
}

func (o *oracle) doneRead(ts uint64) {
	o.Lock()
	defer o.Unlock()
	o.activeReads[ts]--
	if o.activeReads[ts] <= 0 {
		delete(o.activeReads, ts)
	}
}

// hasConflict reports whether any transaction that committed after readTs
// wrote a key in fps.
func (o *oracle) hasConflict(readTs uint64, fps map[uint64]struct{}) bool {
	if len(fps) == 0 {
		return false
	}
	o.Lock()
	defer o.Unlock()
	for _, ct := range o.committedTxns {
		if ct.ts <= readTs {
			continue
		}
		for fp := range fps {
			if _, ok := ct.fps[fp]; ok {
				return true
			}
		}
	}
	return false
}

// allocCommitTs returns the timestamp the in-flight commit will use. Caller
// holds commitMu.
func (o *oracle) allocCommitTs() uint64 {
	o.Lock()
	defer o.Unlock()
	return o.nextTxnTs
}

// doneCommit publishes the commit: the write set becomes visible to conflict
// checks and the timestamp advances. Caller holds commitMu.
func (o *oracle) doneCommit(ts uint64, fps map[uint64]struct{}) {
	o.Lock()
	defer o.Unlock()
	if len(fps) > 0 {
		o.committedTxns = append(o.committedTxns, committedTxn{ts: ts, fps: fps})
	}
	o.nextTxnTs = ts + 1
	o.pruneCommitted()
}

// pruneCommitted drops write sets no active snapshot can conflict with.
// 必须持有 o.Mutex
func (o *oracle) pruneCommitted() {
	minRead := o.nextTxnTs - 1
	for ts := range o.activeReads {
		if ts < minRead {
			minRead = ts
		}
	}
	keep := o.committedTxns[:0]
	for _, ct := range o.committedTxns {
		if ct.ts > minRead {
			keep = append(keep, ct)
		}
	}
	o.committedTxns = keep
}
