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

package file

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerkv/tigerkv/utils"
)

func walEntries(n int) []*utils.Entry {
	out := make([]*utils.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &utils.Entry{
			Key:     []byte(fmt.Sprintf("key%03d", i)),
			Value:   []byte(fmt.Sprintf("val%03d", i)),
			Version: uint64(i + 1),
		})
	}
	return out
}

func TestWalAppendReplay(t *testing.T) {
	for _, comp := range []Compressor{CompressNone, CompressSnappy, CompressZstd} {
		comp := comp
		t.Run(fmt.Sprintf("compressor=%d", comp), func(t *testing.T) {
			dir := t.TempDir()
			w, err := CreateWal(Options{Dir: dir, Name: "test.wal", Compressor: comp})
			require.NoError(t, err)

			want := walEntries(50)
			require.NoError(t, w.Append(want...))
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			// 重新打开并回放
			w, err = OpenWal(Options{Dir: dir, Name: "test.wal"})
			require.NoError(t, err)
			require.Equal(t, comp, w.Compressor())

			var got []*utils.Entry
			require.NoError(t, w.Replay(func(e *utils.Entry) error {
				got = append(got, e)
				return nil
			}))
			require.Len(t, got, len(want))
			for i := range want {
				require.Equal(t, want[i].Key, got[i].Key)
				require.Equal(t, want[i].Value, got[i].Value)
				require.Equal(t, want[i].Version, got[i].Version)
			}
			require.NoError(t, w.Close())
		})
	}
}

func TestWalAppendAfterReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWal(Options{Dir: dir, Name: "test.wal"})
	require.NoError(t, err)
	require.NoError(t, w.Append(walEntries(10)...))
	require.NoError(t, w.Close())

	w, err = OpenWal(Options{Dir: dir, Name: "test.wal"})
	require.NoError(t, err)
	require.NoError(t, w.Append(&utils.Entry{Key: []byte("tail"), Value: []byte("rec"), Version: 99}))

	count := 0
	var last *utils.Entry
	require.NoError(t, w.Replay(func(e *utils.Entry) error {
		count++
		last = e
		return nil
	}))
	require.Equal(t, 11, count)
	require.Equal(t, []byte("tail"), last.Key)
	require.NoError(t, w.Close())
}

func TestWalRewrite(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWal(Options{Dir: dir, Name: "test.wal"})
	require.NoError(t, err)
	require.NoError(t, w.Append(walEntries(100)...))
	before := w.Size()

	// 只保留一条记录
	keep := []*utils.Entry{{Key: []byte("live"), Value: []byte("v"), Version: 7}}
	require.NoError(t, w.Rewrite(keep))
	require.Less(t, w.Size(), before)

	var got []*utils.Entry
	require.NoError(t, w.Replay(func(e *utils.Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, []byte("live"), got[0].Key)
	require.Equal(t, uint64(7), got[0].Version)
	require.NoError(t, w.Close())
}

func TestWalBadMagic(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateWal(Options{Dir: dir, Name: "test.wal"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// 破坏 magic
	require.NoError(t, writeAt(t, dir+"/test.wal", 0, []byte("XXXX")))
	_, err = OpenWal(Options{Dir: dir, Name: "test.wal"})
	require.ErrorIs(t, err, utils.ErrBadMagic)
}

func writeAt(t *testing.T, path string, off int64, b []byte) error {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(b, off)
	return err
}

func TestDirLock(t *testing.T) {
	dir := t.TempDir()
	l1, err := AcquireDirLock(dir, "LOCK")
	require.NoError(t, err)

	_, err = AcquireDirLock(dir, "LOCK")
	require.ErrorIs(t, err, ErrDirLocked)

	require.NoError(t, l1.Release())
	l2, err := AcquireDirLock(dir, "LOCK")
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
