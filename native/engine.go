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
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerkv/tigerkv/file"
	"github.com/tigerkv/tigerkv/utils"
)

// Files the engine keeps inside a database home.
const (
	lockFileName = "TIGERKV.lock"
	baseCfgName  = "TIGERKV.basecfg"
	walFileName  = "TIGERKV.wal"
)

// bitReserve marks a pending write that only reserves the key for conflict
// detection. Reserve records never reach the log or the memtable.
const bitReserve byte = 1 << 6

// The log stores one keyspace for all tables; records carry a composite key of
// uvarint table-name length, table name, then the user key.
func encodeTKey(tbl string, key []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(tbl)))
	out := make([]byte, 0, n+len(tbl)+len(key))
	out = append(out, tmp[:n]...)
	out = append(out, tbl...)
	out = append(out, key...)
	return out
}

func decodeTKey(tk []byte) (string, []byte, bool) {
	l, n := binary.Uvarint(tk)
	if n <= 0 || uint64(len(tk)-n) < l {
		return "", nil, false
	}
	return string(tk[n : n+int(l)]), tk[n+int(l):], true
}

// write is one pending mutation carried from a transaction into the commit
// path.
type write struct {
	tbl  *table
	key  []byte
	val  []byte
	meta byte
}

// connImpl is the engine behind one open database home.
type connImpl struct {
	home  string
	isNew bool
	cfg   config // effective open config, base merged with supplied

	lock *file.DirLock
	wal  *file.Wal
	orc  *oracle
	ev   *eventLog
	st   *connStats

	syncOnCommit bool

	mu       sync.RWMutex
	tables   map[string]*table
	sessions map[*sessionImpl]struct{}
	closed   bool

	ckptMu   sync.Mutex
	ckpt     *utils.Closer
	ckptWait time.Duration
	ckptSize int64
}

func openConn(home, confStr string) (*connImpl, int) {
	conf, code := parseChecked(confStr, openConnScope)
	if code != StatusOK {
		return nil, code
	}
	if code := checkEvictionRange(conf); code != StatusOK {
		return nil, code
	}

	if fi, err := os.Stat(home); err != nil {
		if !os.IsNotExist(err) {
			return nil, EIO
		}
		if !conf.bool("create", false) {
			return nil, ENOENT
		}
		if err := os.MkdirAll(home, 0755); err != nil {
			return nil, EPERM
		}
	} else if !fi.IsDir() {
		return nil, EINVAL
	}

	lock, err := file.AcquireDirLock(home, lockFileName)
	if err != nil {
		if errors.Is(err, file.ErrDirLocked) {
			return nil, EBUSY
		}
		return nil, EIO
	}

	fail := func(code int) (*connImpl, int) {
		_ = lock.Release()
		return nil, code
	}

	// 合并 basecfg, 当前传入的配置优先
	if conf.bool("config_base", true) {
		if raw, err := os.ReadFile(filepath.Join(home, baseCfgName)); err == nil {
			base, code := parseChecked(string(raw), openConnScope)
			if code != StatusOK {
				return fail(StatusTrySalvage)
			}
			for k, v := range conf {
				base[k] = v
			}
			conf = base
		}
	}

	c := &connImpl{
		home:     home,
		cfg:      conf,
		lock:     lock,
		orc:      newOracle(1),
		ev:       newEventLog(conf.list("verbose")),
		st:       &connStats{},
		tables:   make(map[string]*table),
		sessions: make(map[*sessionImpl]struct{}),
	}

	tsync := conf.sub("transaction_sync")
	c.syncOnCommit = tsync.bool("enabled", false) && tsync.str("method", "fsync") != "none"

	walPath := filepath.Join(home, walFileName)
	_, statErr := os.Stat(walPath)
	walExists := statErr == nil

	switch {
	case walExists && conf.bool("exclusive", false):
		return fail(EEXIST)

	case walExists:
		w, err := file.OpenWal(file.Options{Dir: home, Name: walFileName})
		if err != nil {
			return fail(StatusTrySalvage)
		}
		c.wal = w
		maxTs, err := c.replay()
		if err != nil {
			_ = w.Close()
			return fail(StatusTrySalvage)
		}
		c.orc = newOracle(maxTs + 1)

	case conf.bool("create", false):
		w, err := file.CreateWal(file.Options{
			Dir:        home,
			Name:       walFileName,
			Compressor: logCompressor(conf.sub("log")),
		})
		if err != nil {
			return fail(EIO)
		}
		c.wal = w
		c.isNew = true
		if conf.bool("config_base", true) {
			if err := os.WriteFile(filepath.Join(home, baseCfgName), []byte(confStr), 0644); err != nil {
				_ = w.Close()
				return fail(EIO)
			}
		}

	default:
		// home 存在但没有数据文件
		return fail(StatusTrySalvage)
	}

	c.applyCheckpointCfg(conf.sub("checkpoint"))
	c.ev.msg("recovery", "database opened",
		zap.String("home", home), zap.Bool("created", c.isNew))
	return c, StatusOK
}

func logCompressor(logConf config) file.Compressor {
	switch logConf.str("compressor", "none") {
	case "snappy":
		return file.CompressSnappy
	case "zstd":
		return file.CompressZstd
	}
	return file.CompressNone
}

func checkEvictionRange(conf config) int {
	target := conf.int("eviction_target", 80)
	trigger := conf.int("eviction_trigger", 95)
	if target >= trigger {
		return EINVAL
	}
	return StatusOK
}

// replay rebuilds tables and their contents from the log. Returns the highest
// version seen so the oracle resumes past every durable commit.
func (c *connImpl) replay() (uint64, error) {
	var maxTs uint64
	err := c.wal.Replay(func(e *utils.Entry) error {
		if e.Version > maxTs {
			maxTs = e.Version
		}
		name, key, ok := decodeTKey(e.Key)
		if !ok {
			return utils.ErrTruncate
		}
		if e.Meta&utils.BitSchema != 0 {
			if e.IsDeleted() {
				delete(c.tables, name)
			} else {
				t := newTable(name, string(e.Value))
				t.createTs = e.Version
				c.tables[name] = t
			}
			return nil
		}
		t := c.tables[name]
		if t == nil {
			return utils.ErrTruncate
		}
		t.put(&utils.Entry{Key: key, Value: e.Value, Meta: e.Meta, Version: e.Version})
		return nil
	})
	return maxTs, err
}

func (c *connImpl) getTable(name string) *table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[name]
}

// createTable commits a schema record and registers the table. An existing
// table is a success unless the caller asked for exclusive creation.
func (c *connImpl) createTable(name, conf string, exclusive bool) int {
	c.orc.commitMu.Lock()
	defer c.orc.commitMu.Unlock()

	c.mu.Lock()
	if _, ok := c.tables[name]; ok {
		c.mu.Unlock()
		if exclusive {
			return EEXIST
		}
		return StatusOK
	}
	c.mu.Unlock()

	ts := c.orc.allocCommitTs()
	rec := &utils.Entry{
		Key:     encodeTKey(name, nil),
		Value:   []byte(conf),
		Meta:    utils.BitSchema,
		Version: ts,
	}
	if err := c.wal.Append(rec); err != nil {
		c.ev.err("table create failed", EIO, zap.String("table", name))
		return EIO
	}
	if c.syncOnCommit {
		if err := c.wal.Sync(); err != nil {
			return EIO
		}
	}
	t := newTable(name, conf)
	t.createTs = ts
	c.mu.Lock()
	c.tables[name] = t
	c.mu.Unlock()
	c.orc.doneCommit(ts, nil)
	c.ev.msg("metadata", "table created", zap.String("table", name))
	return StatusOK
}

// dropTable commits a schema tombstone and forgets the table. Open cursors on
// the table make it busy.
func (c *connImpl) dropTable(name string, force bool) int {
	c.orc.commitMu.Lock()
	defer c.orc.commitMu.Unlock()

	c.mu.Lock()
	t, ok := c.tables[name]
	if !ok {
		c.mu.Unlock()
		if force {
			return StatusOK
		}
		return ENOENT
	}
	if t.refs.Load() > 0 {
		c.mu.Unlock()
		return EBUSY
	}
	c.mu.Unlock()

	ts := c.orc.allocCommitTs()
	rec := &utils.Entry{
		Key:     encodeTKey(name, nil),
		Meta:    utils.BitSchema | utils.BitDelete,
		Version: ts,
	}
	if err := c.wal.Append(rec); err != nil {
		return EIO
	}
	if c.syncOnCommit {
		if err := c.wal.Sync(); err != nil {
			return EIO
		}
	}
	c.mu.Lock()
	delete(c.tables, name)
	c.mu.Unlock()
	c.orc.doneCommit(ts, nil)
	c.ev.msg("metadata", "table dropped", zap.String("table", name))
	return StatusOK
}

// commitWrites runs the whole commit: conflict check, log append, memtable
// apply, timestamp publish. A conflict leaves the database untouched.
func (c *connImpl) commitWrites(readTs uint64, writes []*write, fps map[uint64]struct{}, syncLog bool) (uint64, int) {
	c.orc.commitMu.Lock()
	defer c.orc.commitMu.Unlock()

	if c.orc.hasConflict(readTs, fps) {
		c.ev.msg("transaction", "commit conflict", zap.Uint64("read_ts", readTs))
		return 0, StatusRollback
	}
	ts := c.orc.allocCommitTs()

	recs := make([]*utils.Entry, 0, len(writes))
	for _, w := range writes {
		if w.meta&bitReserve != 0 {
			continue
		}
		recs = append(recs, &utils.Entry{
			Key:     encodeTKey(w.tbl.name, w.key),
			Value:   w.val,
			Meta:    w.meta,
			Version: ts,
		})
	}
	if len(recs) > 0 {
		if err := c.wal.Append(recs...); err != nil {
			c.ev.err("commit log append failed", EIO)
			return 0, EIO
		}
		if syncLog {
			if err := c.wal.Sync(); err != nil {
				return 0, EIO
			}
		}
	}
	for _, w := range writes {
		if w.meta&bitReserve != 0 {
			continue
		}
		w.tbl.put(&utils.Entry{Key: w.key, Value: w.val, Meta: w.meta, Version: ts})
	}
	c.orc.doneCommit(ts, fps)
	return ts, StatusOK
}

func (c *connImpl) applyCheckpointCfg(ck config) {
	c.ckptMu.Lock()
	if c.ckpt != nil {
		c.ckpt.SignalAndWait()
		c.ckpt = nil
	}
	c.ckptWait = time.Duration(ck.int("wait", 0)) * time.Second
	c.ckptSize = ck.int("log_size", 0)
	if c.ckptWait > 0 {
		closer := utils.NewCloser(1)
		c.ckpt = closer
		wait := c.ckptWait
		go c.runCheckpointer(closer, wait)
	}
	c.ckptMu.Unlock()
}

func (c *connImpl) runCheckpointer(closer *utils.Closer, wait time.Duration) {
	defer closer.Done()
	tick := time.NewTicker(wait)
	defer tick.Stop()
	for {
		select {
		case <-closer.HasBeenClosed():
			return
		case <-tick.C:
			c.checkpoint(false)
		}
	}
}

// checkpoint forces the log durable and, when it has grown past the
// configured size (always when forced), rewrites it down to the newest live
// version of every key. Snapshots never survive a restart, so dead versions
// can go.
func (c *connImpl) checkpoint(force bool) int {
	c.orc.commitMu.Lock()
	defer c.orc.commitMu.Unlock()

	if err := c.wal.Sync(); err != nil {
		return EIO
	}
	if !force && (c.ckptSize <= 0 || c.wal.Size() < c.ckptSize) {
		c.st.checkpoints.Add(1)
		return StatusOK
	}

	var entries []*utils.Entry
	c.mu.RLock()
	for _, t := range c.tables {
		entries = append(entries, &utils.Entry{
			Key:     encodeTKey(t.name, nil),
			Value:   []byte(t.conf),
			Meta:    utils.BitSchema,
			Version: t.createTs,
		})
		vi := t.newVisIter(math.MaxUint64)
		for vi.rewind(); vi.valid; vi.next() {
			entries = append(entries, &utils.Entry{
				Key:     encodeTKey(t.name, vi.key),
				Value:   vi.val,
				Meta:    vi.meta,
				Version: vi.ver,
			})
		}
	}
	c.mu.RUnlock()

	if err := c.wal.Rewrite(entries); err != nil {
		c.ev.err("checkpoint rewrite failed", EIO)
		return EIO
	}
	c.st.checkpoints.Add(1)
	c.ev.msg("checkpoint", "log rewritten", zap.Int("records", len(entries)))
	return StatusOK
}

func (c *connImpl) reconfigure(confStr string) int {
	conf, code := parseChecked(confStr, reconfigureConnScope)
	if code != StatusOK {
		return code
	}
	merged := make(config, len(c.cfg)+len(conf))
	for k, v := range c.cfg {
		merged[k] = v
	}
	for k, v := range conf {
		merged[k] = v
	}
	if code := checkEvictionRange(merged); code != StatusOK {
		return code
	}
	c.mu.Lock()
	c.cfg = merged
	c.mu.Unlock()
	if _, ok := conf["verbose"]; ok {
		c.ev.setCats(conf.list("verbose"))
	}
	if _, ok := conf["checkpoint"]; ok {
		c.applyCheckpointCfg(conf.sub("checkpoint"))
	}
	return StatusOK
}

func (c *connImpl) registerSession(s *sessionImpl) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return EINVAL
	}
	max := c.cfg.int("session_max", 100)
	if int64(len(c.sessions)) >= max {
		return EBUSY
	}
	c.sessions[s] = struct{}{}
	c.st.sessionsOpen.Add(1)
	return StatusOK
}

func (c *connImpl) unregisterSession(s *sessionImpl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[s]; ok {
		delete(c.sessions, s)
		c.st.sessionsOpen.Add(-1)
	}
}

// close shuts the connection down. Still-open sessions are closed implicitly;
// a running transaction in one of them is abandoned, which rolls it back.
func (c *connImpl) close(confStr string) int {
	if _, code := parseChecked(confStr, closeConnScope); code != StatusOK {
		return code
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return EINVAL
	}
	c.closed = true
	open := make([]*sessionImpl, 0, len(c.sessions))
	for s := range c.sessions {
		open = append(open, s)
	}
	c.sessions = make(map[*sessionImpl]struct{})
	c.mu.Unlock()

	for _, s := range open {
		s.forceClose()
	}

	c.ckptMu.Lock()
	if c.ckpt != nil {
		c.ckpt.SignalAndWait()
		c.ckpt = nil
	}
	c.ckptMu.Unlock()

	code := StatusOK
	if c.cfg.bool("checkpoint_sync", true) {
		if err := c.wal.Sync(); err != nil {
			code = EIO
		}
	}
	if err := c.wal.Close(); err != nil && code == StatusOK {
		code = EIO
	}
	if err := c.lock.Release(); err != nil && code == StatusOK {
		code = EIO
	}
	c.ev.msg("fileops", "database closed", zap.String("home", c.home))
	c.ev.sync()
	return code
}
