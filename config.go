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

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Configuration builders serialize to the engine's flat configuration
// grammar. Ranges are checked when the builder serializes, so an impossible
// value fails before it ever reaches a handle. A nil builder serializes to
// the empty string.

// Isolation is a transaction isolation level.
type Isolation string

// Isolation levels understood by sessions and transactions.
const (
	IsolationReadUncommitted Isolation = "read-uncommitted"
	IsolationReadCommitted   Isolation = "read-committed"
	IsolationSnapshot        Isolation = "snapshot"
)

// Compressor selects a log compression codec.
type Compressor string

// Log compressors.
const (
	CompressorNone   Compressor = "none"
	CompressorSnappy Compressor = "snappy"
	CompressorZstd   Compressor = "zstd"
)

// SyncMethod selects how transaction_sync flushes the log.
type SyncMethod string

// Sync methods.
const (
	SyncDsync SyncMethod = "dsync"
	SyncFsync SyncMethod = "fsync"
	SyncNone  SyncMethod = "none"
)

type builder struct {
	items []string
	err   error
}

func (b *builder) add(item string) {
	b.items = append(b.items, item)
}

func (b *builder) addf(format string, args ...interface{}) {
	b.items = append(b.items, fmt.Sprintf(format, args...))
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) failf(format string, args ...interface{}) {
	b.fail(errors.Errorf(format, args...))
}

func (b *builder) rangeInt(name string, v, lo, hi int64) bool {
	if v < lo || v > hi {
		b.failf("config: %s=%d out of range [%d,%d]", name, v, lo, hi)
		return false
	}
	return true
}

func (b *builder) serialize() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return strings.Join(b.items, ","), nil
}

// ConnectionConfig configures Open and Connection.Reconfigure.
type ConnectionConfig struct {
	b         builder
	evTarget  int64
	evTrigger int64
}

// NewConnectionConfig _
func NewConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{evTarget: 80, evTrigger: 95}
}

// Create allows creating the database when the home is empty.
func (c *ConnectionConfig) Create(on bool) *ConnectionConfig {
	c.b.addf("create=%t", on)
	return c
}

// Exclusive fails the open when the database already exists.
func (c *ConnectionConfig) Exclusive(on bool) *ConnectionConfig {
	c.b.addf("exclusive=%t", on)
	return c
}

// ConfigBase controls whether the base configuration file is written and
// merged.
func (c *ConnectionConfig) ConfigBase(on bool) *ConnectionConfig {
	c.b.addf("config_base=%t", on)
	return c
}

// CacheSize sets the cache budget in bytes, between 1MB and 10TB.
func (c *ConnectionConfig) CacheSize(bytes int64) *ConnectionConfig {
	if c.b.rangeInt("cache_size", bytes, 1<<20, 10<<40) {
		c.b.addf("cache_size=%d", bytes)
	}
	return c
}

// CacheOverhead sets the assumed allocator overhead percentage, 0 to 30.
func (c *ConnectionConfig) CacheOverhead(pct int64) *ConnectionConfig {
	if c.b.rangeInt("cache_overhead", pct, 0, 30) {
		c.b.addf("cache_overhead=%d", pct)
	}
	return c
}

// EvictionTarget sets the cache fill level eviction works toward, 10 to 99.
func (c *ConnectionConfig) EvictionTarget(pct int64) *ConnectionConfig {
	if c.b.rangeInt("eviction_target", pct, 10, 99) {
		c.evTarget = pct
		c.b.addf("eviction_target=%d", pct)
	}
	return c
}

// EvictionTrigger sets the cache fill level that starts eviction, 10 to 99
// and above the target.
func (c *ConnectionConfig) EvictionTrigger(pct int64) *ConnectionConfig {
	if c.b.rangeInt("eviction_trigger", pct, 10, 99) {
		c.evTrigger = pct
		c.b.addf("eviction_trigger=%d", pct)
	}
	return c
}

// EvictionDirtyTarget sets the dirty cache fill level eviction works toward.
func (c *ConnectionConfig) EvictionDirtyTarget(pct int64) *ConnectionConfig {
	if c.b.rangeInt("eviction_dirty_target", pct, 10, 99) {
		c.b.addf("eviction_dirty_target=%d", pct)
	}
	return c
}

// SessionMax caps the number of concurrently open sessions.
func (c *ConnectionConfig) SessionMax(n int64) *ConnectionConfig {
	if c.b.rangeInt("session_max", n, 1, 1<<20) {
		c.b.addf("session_max=%d", n)
	}
	return c
}

// Checkpoint enables periodic checkpoints. wait is in seconds, 0 to 100000;
// logSize of 0 syncs without compacting, otherwise the log is rewritten once
// it outgrows logSize bytes.
func (c *ConnectionConfig) Checkpoint(waitSec, logSize int64) *ConnectionConfig {
	if c.b.rangeInt("checkpoint.wait", waitSec, 0, 100000) &&
		c.b.rangeInt("checkpoint.log_size", logSize, 0, 2<<30) {
		c.b.addf("checkpoint=(wait=%d,log_size=%d)", waitSec, logSize)
	}
	return c
}

// CheckpointSync controls the final log sync on close.
func (c *ConnectionConfig) CheckpointSync(on bool) *ConnectionConfig {
	c.b.addf("checkpoint_sync=%t", on)
	return c
}

// Log configures the write-ahead log.
func (c *ConnectionConfig) Log(compressor Compressor, fileMax int64) *ConnectionConfig {
	switch compressor {
	case CompressorNone, CompressorSnappy, CompressorZstd:
	default:
		c.b.failf("config: unknown log compressor %q", compressor)
		return c
	}
	if c.b.rangeInt("log.file_max", fileMax, 100<<10, 2<<30) {
		c.b.addf("log=(compressor=%s,file_max=%d)", compressor, fileMax)
	}
	return c
}

// TransactionSync makes every commit flush the log with the given method.
func (c *ConnectionConfig) TransactionSync(enabled bool, method SyncMethod) *ConnectionConfig {
	switch method {
	case SyncDsync, SyncFsync, SyncNone:
	default:
		c.b.failf("config: unknown sync method %q", method)
		return c
	}
	c.b.addf("transaction_sync=(enabled=%t,method=%s)", enabled, method)
	return c
}

// Verbose enables event messages for the given categories.
func (c *ConnectionConfig) Verbose(categories ...string) *ConnectionConfig {
	c.b.addf("verbose=[%s]", strings.Join(categories, ","))
	return c
}

// ErrorPrefix sets the prefix the message handler puts on errors.
func (c *ConnectionConfig) ErrorPrefix(p string) *ConnectionConfig {
	c.b.addf("error_prefix=%s", p)
	return c
}

// Statistics selects the statistics collection level.
func (c *ConnectionConfig) Statistics(level string) *ConnectionConfig {
	c.b.addf("statistics=[%s]", level)
	return c
}

func (c *ConnectionConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	if c.b.err == nil && c.evTarget >= c.evTrigger {
		return "", errors.Errorf("config: eviction_target=%d must stay below eviction_trigger=%d",
			c.evTarget, c.evTrigger)
	}
	return c.b.serialize()
}

// SessionConfig configures OpenSession and Session.Reconfigure.
type SessionConfig struct {
	b builder
}

// NewSessionConfig _
func NewSessionConfig() *SessionConfig {
	return &SessionConfig{}
}

// Isolation sets the session's default isolation level.
func (c *SessionConfig) Isolation(iso Isolation) *SessionConfig {
	switch iso {
	case IsolationReadUncommitted, IsolationReadCommitted, IsolationSnapshot:
		c.b.addf("isolation=%s", iso)
	default:
		c.b.failf("config: unknown isolation %q", iso)
	}
	return c
}

// CacheMaxWaitMs bounds how long an operation waits on cache pressure.
func (c *SessionConfig) CacheMaxWaitMs(ms int64) *SessionConfig {
	if c.b.rangeInt("cache_max_wait_ms", ms, 0, 1<<30) {
		c.b.addf("cache_max_wait_ms=%d", ms)
	}
	return c
}

func (c *SessionConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// CreateConfig configures Session.Create.
type CreateConfig struct {
	b builder
}

// NewCreateConfig _
func NewCreateConfig() *CreateConfig {
	return &CreateConfig{}
}

// Exclusive fails the create when the table already exists.
func (c *CreateConfig) Exclusive(on bool) *CreateConfig {
	c.b.addf("exclusive=%t", on)
	return c
}

// BlockCompressor names the on-disk block codec.
func (c *CreateConfig) BlockCompressor(comp Compressor) *CreateConfig {
	switch comp {
	case CompressorNone, CompressorSnappy, CompressorZstd:
		c.b.addf("block_compressor=%s", comp)
	default:
		c.b.failf("config: unknown block compressor %q", comp)
	}
	return c
}

// AllocationSize sets the unit of file allocation, 512B to 128MB.
func (c *CreateConfig) AllocationSize(bytes int64) *CreateConfig {
	if c.b.rangeInt("allocation_size", bytes, 512, 128<<20) {
		c.b.addf("allocation_size=%d", bytes)
	}
	return c
}

// LeafPageMax caps the size of an on-disk leaf page, 512B to 512MB.
func (c *CreateConfig) LeafPageMax(bytes int64) *CreateConfig {
	if c.b.rangeInt("leaf_page_max", bytes, 512, 512<<20) {
		c.b.addf("leaf_page_max=%d", bytes)
	}
	return c
}

// InternalPageMax caps the size of an on-disk internal page.
func (c *CreateConfig) InternalPageMax(bytes int64) *CreateConfig {
	if c.b.rangeInt("internal_page_max", bytes, 512, 512<<20) {
		c.b.addf("internal_page_max=%d", bytes)
	}
	return c
}

// MemoryPageMax caps the size of an in-memory page before it splits.
func (c *CreateConfig) MemoryPageMax(bytes int64) *CreateConfig {
	if c.b.rangeInt("memory_page_max", bytes, 512, 10<<40) {
		c.b.addf("memory_page_max=%d", bytes)
	}
	return c
}

// SplitPct sets the page split fill percentage, 25 to 100.
func (c *CreateConfig) SplitPct(pct int64) *CreateConfig {
	if c.b.rangeInt("split_pct", pct, 25, 100) {
		c.b.addf("split_pct=%d", pct)
	}
	return c
}

// PrefixCompression enables key prefix compression.
func (c *CreateConfig) PrefixCompression(on bool) *CreateConfig {
	c.b.addf("prefix_compression=%t", on)
	return c
}

// AppMetadata attaches opaque application metadata to the table.
func (c *CreateConfig) AppMetadata(meta string) *CreateConfig {
	c.b.addf("app_metadata=%s", meta)
	return c
}

func (c *CreateConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// DropConfig configures Session.Drop.
type DropConfig struct {
	b builder
}

// NewDropConfig _
func NewDropConfig() *DropConfig {
	return &DropConfig{}
}

// Force makes dropping a missing table a success.
func (c *DropConfig) Force(on bool) *DropConfig {
	c.b.addf("force=%t", on)
	return c
}

// RemoveFiles controls whether backing files go with the table.
func (c *DropConfig) RemoveFiles(on bool) *DropConfig {
	c.b.addf("remove_files=%t", on)
	return c
}

func (c *DropConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// CursorConfig configures OpenCursor, Duplicate and Cursor.Reconfigure.
type CursorConfig struct {
	b builder
}

// NewCursorConfig _
func NewCursorConfig() *CursorConfig {
	return &CursorConfig{}
}

// Overwrite controls whether insert replaces existing records. On by default.
func (c *CursorConfig) Overwrite(on bool) *CursorConfig {
	c.b.addf("overwrite=%t", on)
	return c
}

// Readonly refuses write operations through this cursor.
func (c *CursorConfig) Readonly(on bool) *CursorConfig {
	c.b.addf("readonly=%t", on)
	return c
}

// Append is accepted for compatibility; byte-keyed tables ignore it.
func (c *CursorConfig) Append(on bool) *CursorConfig {
	c.b.addf("append=%t", on)
	return c
}

// Raw disables any key and value formatting.
func (c *CursorConfig) Raw(on bool) *CursorConfig {
	c.b.addf("raw=%t", on)
	return c
}

// Bulk hints that the cursor loads data in key order.
func (c *CursorConfig) Bulk(on bool) *CursorConfig {
	c.b.addf("bulk=%t", on)
	return c
}

func (c *CursorConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// BeginConfig configures Session.Begin.
type BeginConfig struct {
	b builder
}

// NewBeginConfig _
func NewBeginConfig() *BeginConfig {
	return &BeginConfig{}
}

// Isolation overrides the session's isolation for this transaction.
func (c *BeginConfig) Isolation(iso Isolation) *BeginConfig {
	switch iso {
	case IsolationReadUncommitted, IsolationReadCommitted, IsolationSnapshot:
		c.b.addf("isolation=%s", iso)
	default:
		c.b.failf("config: unknown isolation %q", iso)
	}
	return c
}

// Name labels the transaction in event messages.
func (c *BeginConfig) Name(name string) *BeginConfig {
	c.b.addf("name=%s", name)
	return c
}

// Sync overrides the connection's commit durability for this transaction.
func (c *BeginConfig) Sync(on bool) *BeginConfig {
	c.b.addf("sync=%t", on)
	return c
}

func (c *BeginConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// CommitConfig configures Transaction.Commit.
type CommitConfig struct {
	b builder
}

// NewCommitConfig _
func NewCommitConfig() *CommitConfig {
	return &CommitConfig{}
}

// Sync overrides log durability for this commit alone.
func (c *CommitConfig) Sync(on bool) *CommitConfig {
	c.b.addf("sync=%t", on)
	return c
}

func (c *CommitConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// CompactConfig configures Session.Compact.
type CompactConfig struct {
	b builder
}

// NewCompactConfig _
func NewCompactConfig() *CompactConfig {
	return &CompactConfig{}
}

// Timeout bounds the compaction in seconds.
func (c *CompactConfig) Timeout(sec int64) *CompactConfig {
	if c.b.rangeInt("timeout", sec, 0, 1<<30) {
		c.b.addf("timeout=%d", sec)
	}
	return c
}

func (c *CompactConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// CheckpointConfig configures Session.Checkpoint.
type CheckpointConfig struct {
	b builder
}

// NewCheckpointConfig _
func NewCheckpointConfig() *CheckpointConfig {
	return &CheckpointConfig{}
}

// Force checkpoints even when nothing changed.
func (c *CheckpointConfig) Force(on bool) *CheckpointConfig {
	c.b.addf("force=%t", on)
	return c
}

// Name labels the checkpoint.
func (c *CheckpointConfig) Name(name string) *CheckpointConfig {
	c.b.addf("name=%s", name)
	return c
}

func (c *CheckpointConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}

// BoundSide names which scan bound a BoundConfig addresses.
type BoundSide string

// Bound sides.
const (
	BoundLower BoundSide = "lower"
	BoundUpper BoundSide = "upper"
)

// BoundConfig configures Cursor.Bound.
type BoundConfig struct {
	b builder
}

// NewBoundConfig _
func NewBoundConfig() *BoundConfig {
	return &BoundConfig{}
}

// Set arms the given bound from the cursor's staged key.
func (c *BoundConfig) Set(side BoundSide, inclusive bool) *BoundConfig {
	switch side {
	case BoundLower, BoundUpper:
		c.b.addf("action=set,bound=%s,inclusive=%t", side, inclusive)
	default:
		c.b.failf("config: unknown bound side %q", side)
	}
	return c
}

// Clear drops both bounds.
func (c *BoundConfig) Clear() *BoundConfig {
	c.b.add("action=clear")
	return c
}

func (c *BoundConfig) build() (string, error) {
	if c == nil {
		return "", nil
	}
	return c.b.serialize()
}
