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
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tigerkv/tigerkv/utils"
)

const tableURIPrefix = "table:"

func parseURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, tableURIPrefix) || len(uri) == len(tableURIPrefix) {
		return "", false
	}
	return uri[len(tableURIPrefix):], true
}

var sessionCloseScope = map[string]confSpec{}

// txnState is one running transaction. Pending writes stay session private
// until commit walks them through the connection's commit path.
type txnState struct {
	readTs    uint64
	isolation string
	name      string
	sync      bool
	prepared  bool
	// pending is table name -> user key -> newest pending write.
	pending map[string]map[string]*write
	fps     map[uint64]struct{}
}

func (t *txnState) flatten() []*write {
	var out []*write
	for _, tb := range t.pending {
		for _, w := range tb {
			out = append(out, w)
		}
	}
	return out
}

// sessionImpl is the engine's unit of work. A session is single threaded by
// contract; the mutex only protects against an implicit close racing a
// straggling operation.
type sessionImpl struct {
	conn *connImpl

	mu           sync.Mutex
	isolation    string
	cacheMaxWait int64
	txn          *txnState
	cursors      map[*cursorImpl]struct{}
	closed       bool
}

func newSession(c *connImpl, confStr string) (*sessionImpl, int) {
	conf, code := parseChecked(confStr, sessionScope)
	if code != StatusOK {
		return nil, code
	}
	s := &sessionImpl{
		conn:         c,
		isolation:    conf.str("isolation", "read-committed"),
		cacheMaxWait: conf.int("cache_max_wait_ms", 0),
		cursors:      make(map[*cursorImpl]struct{}),
	}
	if code := c.registerSession(s); code != StatusOK {
		return nil, code
	}
	return s, StatusOK
}

// readView returns the snapshot an operation reads at, with a release func.
// Snapshot isolation pins the transaction's begin timestamp; read-committed
// and autocommit operations take a fresh one every call.
func (s *sessionImpl) readView() (uint64, func()) {
	if s.txn != nil && s.txn.isolation == "snapshot" {
		return s.txn.readTs, func() {}
	}
	ts := s.conn.orc.beginRead()
	return ts, func() { s.conn.orc.doneRead(ts) }
}

func (s *sessionImpl) pendingGet(t *table, key []byte) (*write, bool) {
	if s.txn == nil {
		return nil, false
	}
	tb := s.txn.pending[t.name]
	if tb == nil {
		return nil, false
	}
	w, ok := tb[string(key)]
	return w, ok
}

// applyWrite stages a mutation in the running transaction or commits it on
// its own. An update under a key someone already rewrote past our snapshot
// fails at once instead of waiting for commit.
func (s *sessionImpl) applyWrite(t *table, key, val []byte, meta byte) int {
	if s.txn != nil {
		if s.txn.prepared {
			return EINVAL
		}
		if t.latestTs(key) > s.txn.readTs {
			return StatusRollback
		}
		tb := s.txn.pending[t.name]
		if tb == nil {
			tb = make(map[string]*write)
			s.txn.pending[t.name] = tb
		}
		tb[string(key)] = &write{tbl: t, key: utils.Copy(key), val: utils.Copy(val), meta: meta}
		s.txn.fps[fingerprint(encodeTKey(t.name, key))] = struct{}{}
		return StatusOK
	}
	// Autocommit writes never lose a conflict themselves, but their write set
	// must still be visible to commit-time checks of open transactions.
	w := &write{tbl: t, key: utils.Copy(key), val: utils.Copy(val), meta: meta}
	fps := map[uint64]struct{}{fingerprint(encodeTKey(t.name, key)): {}}
	_, code := s.conn.commitWrites(math.MaxUint64, []*write{w}, fps, s.conn.syncOnCommit)
	return code
}

func (s *sessionImpl) create(uri, confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, createScope)
	if code != StatusOK {
		return code
	}
	name, ok := parseURI(uri)
	if !ok {
		return EINVAL
	}
	if s.txn != nil {
		// schema operations do not participate in transactions
		return EINVAL
	}
	return s.conn.createTable(name, confStr, conf.bool("exclusive", false))
}

func (s *sessionImpl) drop(uri, confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, dropScope)
	if code != StatusOK {
		return code
	}
	name, ok := parseURI(uri)
	if !ok {
		return EINVAL
	}
	if s.txn != nil {
		return EINVAL
	}
	return s.conn.dropTable(name, conf.bool("force", false))
}

func (s *sessionImpl) openCursor(uri, confStr string) (*cursorImpl, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, EINVAL
	}
	conf, code := parseChecked(confStr, cursorScope)
	if code != StatusOK {
		return nil, code
	}
	name, ok := parseURI(uri)
	if !ok {
		return nil, EINVAL
	}
	t := s.conn.getTable(name)
	if t == nil {
		return nil, ENOENT
	}
	cur := &cursorImpl{
		sess:      s,
		tbl:       t,
		uri:       uri,
		overwrite: conf.bool("overwrite", true),
		readonly:  conf.bool("readonly", false),
		appendRec: conf.bool("append", false),
		raw:       conf.bool("raw", false),
		bulk:      conf.bool("bulk", false),
	}
	t.refs.Add(1)
	s.cursors[cur] = struct{}{}
	s.conn.st.cursorsOpen.Add(1)
	return cur, StatusOK
}

// duplicate opens a second cursor on the same table and carries over the
// original's staged key and position.
func (s *sessionImpl) duplicate(orig *cursorImpl, confStr string) (*cursorImpl, int) {
	cur, code := s.openCursor(orig.uri, confStr)
	if code != StatusOK {
		return nil, code
	}
	s.mu.Lock()
	cur.key, cur.keySet = utils.Copy(orig.key), orig.keySet
	cur.val, cur.valSet = utils.Copy(orig.val), orig.valSet
	cur.pos, cur.positioned = utils.Copy(orig.pos), orig.positioned
	cur.atEnd, cur.atStart = orig.atEnd, orig.atStart
	s.mu.Unlock()
	return cur, StatusOK
}

func (s *sessionImpl) dropCursor(cur *cursorImpl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cursors[cur]; ok {
		delete(s.cursors, cur)
		cur.tbl.refs.Add(-1)
		s.conn.st.cursorsOpen.Add(-1)
	}
}

func (s *sessionImpl) beginTxn(confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, beginTxnScope)
	if code != StatusOK {
		return code
	}
	if s.txn != nil {
		return EINVAL
	}
	syncLog := s.conn.syncOnCommit
	if v, ok := conf["sync"]; ok {
		syncLog = v == "" || v == "true" || v == "on"
	}
	s.txn = &txnState{
		readTs:    s.conn.orc.beginRead(),
		isolation: conf.str("isolation", s.isolation),
		name:      conf.str("name", ""),
		sync:      syncLog,
		pending:   make(map[string]map[string]*write),
		fps:       make(map[uint64]struct{}),
	}
	s.conn.ev.msg("transaction", "transaction started",
		zap.Uint64("read_ts", s.txn.readTs), zap.String("isolation", s.txn.isolation))
	return StatusOK
}

// commitTxn publishes the pending writes. A conflict returns Rollback and
// leaves the transaction running so the caller finalizes it explicitly.
func (s *sessionImpl) commitTxn(confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	conf, code := parseChecked(confStr, commitTxnScope)
	if code != StatusOK {
		return code
	}
	if s.txn == nil {
		return EINVAL
	}
	syncLog := s.txn.sync
	if v, ok := conf["sync"]; ok {
		syncLog = v == "" || v == "true" || v == "on"
	}
	ts, code := s.conn.commitWrites(s.txn.readTs, s.txn.flatten(), s.txn.fps, syncLog)
	if code != StatusOK {
		return code
	}
	s.conn.orc.doneRead(s.txn.readTs)
	s.conn.ev.msg("transaction", "transaction committed", zap.Uint64("commit_ts", ts))
	s.txn = nil
	s.conn.st.txnCommits.Add(1)
	return StatusOK
}

func (s *sessionImpl) rollbackTxn(confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, code := parseChecked(confStr, rollbackTxnScope); code != StatusOK {
		return code
	}
	if s.txn == nil {
		return EINVAL
	}
	s.abandonTxnLocked()
	return StatusOK
}

func (s *sessionImpl) abandonTxnLocked() {
	s.conn.orc.doneRead(s.txn.readTs)
	s.txn = nil
	s.conn.st.txnRollbacks.Add(1)
}

func (s *sessionImpl) prepareTxn(confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, code := parseChecked(confStr, prepareTxnScope); code != StatusOK {
		return code
	}
	if s.txn == nil || s.txn.prepared {
		return EINVAL
	}
	s.txn.prepared = true
	return StatusOK
}

func (s *sessionImpl) inTxn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn != nil
}

// reset returns every cursor of the session to its unpositioned state.
func (s *sessionImpl) reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EINVAL
	}
	for cur := range s.cursors {
		cur.resetLocked()
	}
	return StatusOK
}

func (s *sessionImpl) checkpoint(confStr string) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return EINVAL
	}
	if _, code := parseChecked(confStr, sessionCheckpointScope); code != StatusOK {
		s.mu.Unlock()
		return code
	}
	if s.txn != nil {
		s.mu.Unlock()
		return EINVAL
	}
	s.mu.Unlock()
	return s.conn.checkpoint(true)
}

// compact rewrites the log down to live data. Versioned garbage for the named
// table goes with it.
func (s *sessionImpl) compact(uri, confStr string) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return EINVAL
	}
	if _, code := parseChecked(confStr, compactScope); code != StatusOK {
		s.mu.Unlock()
		return code
	}
	name, ok := parseURI(uri)
	if !ok {
		s.mu.Unlock()
		return EINVAL
	}
	if s.conn.getTable(name) == nil {
		s.mu.Unlock()
		return ENOENT
	}
	if s.txn != nil {
		s.mu.Unlock()
		return EINVAL
	}
	s.mu.Unlock()
	return s.conn.checkpoint(true)
}

func (s *sessionImpl) reconfigure(confStr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return EINVAL
	}
	conf, code := parseChecked(confStr, sessionScope)
	if code != StatusOK {
		return code
	}
	if v, ok := conf["isolation"]; ok && v != "" {
		if s.txn != nil {
			return EINVAL
		}
		s.isolation = v
	}
	if _, ok := conf["cache_max_wait_ms"]; ok {
		s.cacheMaxWait = conf.int("cache_max_wait_ms", s.cacheMaxWait)
	}
	return StatusOK
}

// close ends the session. A running transaction is abandoned, which rolls it
// back; open cursors are closed implicitly.
func (s *sessionImpl) close(confStr string) int {
	if _, code := parseChecked(confStr, sessionCloseScope); code != StatusOK {
		return code
	}
	s.forceClose()
	s.conn.unregisterSession(s)
	return StatusOK
}

func (s *sessionImpl) forceClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.txn != nil {
		s.abandonTxnLocked()
	}
	for cur := range s.cursors {
		cur.closed = true
		cur.tbl.refs.Add(-1)
		s.conn.st.cursorsOpen.Add(-1)
	}
	s.cursors = make(map[*cursorImpl]struct{})
	s.closed = true
}
