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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerkv/tigerkv/raw"
)

func openTestDB(t *testing.T) (*Connection, *Session) {
	t.Helper()
	conn, err := Open(t.TempDir(), NewConnectionConfig().Create(true))
	require.NoError(t, err)
	s, err := conn.OpenSession(nil)
	require.NoError(t, err)
	require.NoError(t, s.Create("table:main", nil))
	return conn, s
}

func put(t *testing.T, s *Session, k, v string) {
	t.Helper()
	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cur.SetKey([]byte(k)))
	require.NoError(t, cur.SetValue([]byte(v)))
	require.NoError(t, cur.Insert())
	require.NoError(t, cur.Close())
}

func TestOpenWithoutCreate(t *testing.T) {
	_, err := Open(t.TempDir(), nil)
	require.Error(t, err)
	require.Equal(t, "TIGERKV_TRY_SALVAGE: database corruption detected", err.Error())
	var re *raw.Error
	require.ErrorAs(t, err, &re)
}

func TestBasicAndReopen(t *testing.T) {
	home := t.TempDir()
	conn, err := Open(home, NewConnectionConfig().Create(true))
	require.NoError(t, err)
	require.True(t, conn.IsNew())
	s, err := conn.OpenSession(nil)
	require.NoError(t, err)
	require.NoError(t, s.Create("table:main", nil))
	for i := 0; i < 10; i++ {
		put(t, s, fmt.Sprintf("key%02d", i), fmt.Sprintf("val%02d", i))
	}
	require.NoError(t, s.Close())
	require.NoError(t, conn.Close())

	conn, err = Open(home, nil)
	require.NoError(t, err)
	require.False(t, conn.IsNew())
	require.Equal(t, home, conn.Home())
	s, err = conn.OpenSession(nil)
	require.NoError(t, err)

	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	var prev string
	n := 0
	for {
		err := cur.Next()
		if IsNotFound(err) {
			break
		}
		require.NoError(t, err)
		k, v, err := cur.GetRawKeyValue()
		require.NoError(t, err)
		require.Greater(t, string(k), prev)
		require.Equal(t, "val"+string(k)[3:], string(v))
		prev = string(k)
		n++
	}
	require.Equal(t, 10, n)
	require.True(t, IsNotFound(cur.Next()))

	require.NoError(t, cur.Close())
	require.NoError(t, s.Close())
	require.NoError(t, conn.Close())
}

func TestTransactionCommitVisibility(t *testing.T) {
	conn, sa := openTestDB(t)
	defer conn.Close()
	sb, err := conn.OpenSession(nil)
	require.NoError(t, err)

	txn, err := sa.Begin(nil)
	require.NoError(t, err)
	require.Equal(t, TxnActive, txn.State())
	put(t, sa, "k", "v")

	// B 在 A 提交前看不到
	cb, err := sb.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cb.SetKey([]byte("k")))
	require.True(t, IsNotFound(cb.Search()))

	require.NoError(t, txn.Commit(nil))
	require.Equal(t, TxnCommitted, txn.State())

	require.NoError(t, cb.SetKey([]byte("k")))
	require.NoError(t, cb.Search())
	v, err := cb.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestTransactionRollback(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()

	txn, err := s.Begin(nil)
	require.NoError(t, err)
	put(t, s, "gone", "1")
	require.NoError(t, txn.Rollback())
	require.Equal(t, TxnRolledBack, txn.State())

	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cur.SetKey([]byte("gone")))
	require.True(t, IsNotFound(cur.Search()))
}

func TestTransactionFinalizeOnce(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()

	txn, err := s.Begin(nil)
	require.NoError(t, err)
	require.NoError(t, txn.Commit(nil))
	require.ErrorIs(t, txn.Commit(nil), ErrTxnFinished)
	require.ErrorIs(t, txn.Rollback(), ErrTxnFinished)
	require.ErrorIs(t, txn.Prepare(), ErrTxnFinished)

	// 结束之后可以开下一个
	txn2, err := s.Begin(nil)
	require.NoError(t, err)
	require.NoError(t, txn2.Rollback())
}

func TestTransactionConflict(t *testing.T) {
	conn, sa := openTestDB(t)
	defer conn.Close()
	sb, err := conn.OpenSession(nil)
	require.NoError(t, err)
	put(t, sa, "shared", "0")

	ta, err := sa.Begin(nil)
	require.NoError(t, err)
	tb, err := sb.Begin(nil)
	require.NoError(t, err)

	ca, err := sa.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, ca.SetKey([]byte("shared")))
	require.NoError(t, ca.SetValue([]byte("a")))
	require.NoError(t, ca.Update())

	cb, err := sb.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cb.SetKey([]byte("shared")))
	require.NoError(t, cb.SetValue([]byte("b")))
	require.NoError(t, cb.Update())

	require.NoError(t, ta.Commit(nil))

	// 后提交者输, 事务保持 Active 直到显式回滚
	err = tb.Commit(nil)
	require.True(t, IsRollback(err))
	require.Equal(t, TxnActive, tb.State())
	require.NoError(t, tb.Rollback())

	require.NoError(t, cb.SetKey([]byte("shared")))
	require.NoError(t, cb.Search())
	v, err := cb.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)
}

func TestReserveConflict(t *testing.T) {
	conn, sa := openTestDB(t)
	defer conn.Close()
	sb, err := conn.OpenSession(nil)
	require.NoError(t, err)
	put(t, sa, "locked", "0")

	ta, err := sa.Begin(nil)
	require.NoError(t, err)
	ca, err := sa.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, ca.SetKey([]byte("locked")))
	require.NoError(t, ca.Reserve())

	tb, err := sb.Begin(nil)
	require.NoError(t, err)
	cb, err := sb.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cb.SetKey([]byte("locked")))
	require.NoError(t, cb.SetValue([]byte("b")))
	require.NoError(t, cb.Update())

	// 预留的 key 不写入任何数据
	require.NoError(t, ta.Commit(nil))
	ka, err := sa.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, ka.SetKey([]byte("locked")))
	require.NoError(t, ka.Search())
	v, err := ka.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("0"), v)

	// 但它参与冲突检测
	err = tb.Commit(nil)
	require.True(t, IsRollback(err))
	require.NoError(t, tb.Rollback())
}

func TestSessionCloseWithTxnRefused(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()

	txn, err := s.Begin(nil)
	require.NoError(t, err)
	require.ErrorIs(t, s.Close(), ErrTxnActive)
	require.NoError(t, txn.Rollback())
	require.NoError(t, s.Close())
}

func TestAbandonedTransaction(t *testing.T) {
	home := t.TempDir()
	conn, err := Open(home, NewConnectionConfig().Create(true))
	require.NoError(t, err)
	s, err := conn.OpenSession(nil)
	require.NoError(t, err)
	require.NoError(t, s.Create("table:main", nil))

	txn, err := s.Begin(nil)
	require.NoError(t, err)
	put(t, s, "ghost", "1")

	// 连接关闭会丢弃运行中的事务
	require.NoError(t, conn.Close())
	require.Equal(t, TxnAbandoned, txn.State())

	conn, err = Open(home, nil)
	require.NoError(t, err)
	s, err = conn.OpenSession(nil)
	require.NoError(t, err)
	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, cur.SetKey([]byte("ghost")))
	require.True(t, IsNotFound(cur.Search()))
	require.NoError(t, conn.Close())
}

func TestCloseOrdering(t *testing.T) {
	conn, s := openTestDB(t)
	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)

	require.NoError(t, cur.Close())
	require.NoError(t, s.Close())
	require.NoError(t, conn.Close())

	require.ErrorIs(t, cur.Close(), ErrClosedHandle)
	require.ErrorIs(t, s.Close(), ErrClosedHandle)
	require.ErrorIs(t, conn.Close(), ErrClosedHandle)
}

func TestCursorClosedWithSession(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()
	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.ErrorIs(t, cur.Next(), ErrClosedHandle)
	require.ErrorIs(t, cur.SetKey([]byte("k")), ErrClosedHandle)
	_, _, err = cur.GetRawKeyValue()
	require.ErrorIs(t, err, ErrClosedHandle)
}

func TestCursorBounds(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()
	for _, k := range []string{"b", "d", "f"} {
		put(t, s, k, "v")
	}
	cur, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)

	require.NoError(t, cur.SetKey([]byte("c")))
	require.NoError(t, cur.Bound(NewBoundConfig().Set(BoundLower, true)))
	require.NoError(t, cur.SetKey([]byte("e")))
	require.NoError(t, cur.Bound(NewBoundConfig().Set(BoundUpper, true)))

	require.NoError(t, cur.Next())
	k, err := cur.GetKey()
	require.NoError(t, err)
	require.Equal(t, []byte("d"), k)
	require.True(t, IsNotFound(cur.Next()))

	require.NoError(t, cur.Bound(NewBoundConfig().Clear()))
	require.NoError(t, cur.Reset())
	require.NoError(t, cur.Next())
	k, err = cur.GetKey()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), k)
}

func TestDuplicateCursor(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()
	put(t, s, "a", "1")
	put(t, s, "b", "2")

	c1, err := s.OpenCursor("table:main", nil)
	require.NoError(t, err)
	require.NoError(t, c1.SetKey([]byte("a")))
	require.NoError(t, c1.Search())

	c2, err := s.Duplicate(c1, nil)
	require.NoError(t, err)
	eq, err := c1.Equals(c2)
	require.NoError(t, err)
	require.True(t, eq)

	require.NoError(t, c2.Next())
	k, err := c2.GetKey()
	require.NoError(t, err)
	require.Equal(t, []byte("b"), k)
}

func TestBuilderValidation(t *testing.T) {
	// 越界的值在 build 时报错, 不会触达引擎
	_, err := Open(t.TempDir(), NewConnectionConfig().Create(true).CacheSize(10))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache_size")

	_, err = Open(t.TempDir(), NewConnectionConfig().Create(true).EvictionTarget(96))
	require.Error(t, err)
	require.Contains(t, err.Error(), "eviction_target")

	conn, s := openTestDB(t)
	defer conn.Close()
	require.Error(t, s.Reconfigure(NewSessionConfig().Isolation("bogus")))
	require.NoError(t, s.Reconfigure(NewSessionConfig().Isolation(IsolationSnapshot)))
	require.NoError(t, conn.Reconfigure(NewConnectionConfig().EvictionTarget(75)))
}

func TestBuilderSerialization(t *testing.T) {
	got, err := NewConnectionConfig().
		Create(true).
		CacheSize(1 << 20).
		Log(CompressorSnappy, 200<<10).
		TransactionSync(true, SyncFsync).
		Verbose("api", "checkpoint").
		build()
	require.NoError(t, err)
	require.Equal(t,
		"create=true,cache_size=1048576,log=(compressor=snappy,file_max=204800),"+
			"transaction_sync=(enabled=true,method=fsync),verbose=[api,checkpoint]",
		got)

	got, err = NewCreateConfig().Exclusive(true).SplitPct(80).build()
	require.NoError(t, err)
	require.Equal(t, "exclusive=true,split_pct=80", got)

	_, err = NewCreateConfig().SplitPct(10).build()
	require.Error(t, err)
}

func TestStatsSnapshot(t *testing.T) {
	conn, s := openTestDB(t)
	defer conn.Close()
	put(t, s, "k", "v")
	stats := conn.Stats()
	require.Equal(t, int64(1), stats["cursor_insert"])
}
