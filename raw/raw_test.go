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

package raw

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerkv/tigerkv/native"
)

func openRaw(t *testing.T) (*RawConnection, *RawSession) {
	t.Helper()
	conn, err := Open(t.TempDir(), "create")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close("") })
	s, err := conn.OpenSession("")
	require.NoError(t, err)
	return conn, s
}

func TestRawRoundTrip(t *testing.T) {
	_, s := openRaw(t)
	require.NoError(t, s.Create("table:main", ""))

	cur, err := s.OpenCursor("table:main", "")
	require.NoError(t, err)
	cur.SetKey([]byte("k"))
	cur.SetValue([]byte("v"))
	require.NoError(t, cur.Insert())

	cur.SetKey([]byte("k"))
	require.NoError(t, cur.Search())
	v, err := cur.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.NoError(t, cur.Close())
}

func TestRawErrorTranslation(t *testing.T) {
	_, err := Open(t.TempDir(), "bogus")
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, native.EINVAL, re.Code)
	require.Equal(t, "invalid argument", re.Error())

	_, s := openRaw(t)
	require.NoError(t, s.Create("table:main", ""))
	cur, err := s.OpenCursor("table:main", "")
	require.NoError(t, err)

	cur.SetKey([]byte("missing"))
	err = cur.Search()
	require.True(t, IsNotFound(err))
	require.Equal(t, "TIGERKV_NOTFOUND: item not found", err.Error())
	require.ErrorAs(t, err, &re)
	require.Equal(t, native.StatusNotFound, re.Code)
}

func TestRawCopyOut(t *testing.T) {
	_, s := openRaw(t)
	require.NoError(t, s.Create("table:main", ""))
	cur, err := s.OpenCursor("table:main", "")
	require.NoError(t, err)

	key := []byte("k")
	val := []byte("value")
	cur.SetKey(key)
	cur.SetValue(val)
	// 写入后修改调用方缓冲区不影响引擎
	key[0] = 'X'
	val[0] = 'X'
	require.NoError(t, cur.Insert())

	cur.SetKey([]byte("k"))
	require.NoError(t, cur.Search())
	got, err := cur.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	// 取出的缓冲区归调用方所有
	got[0] = 'Z'
	require.NoError(t, cur.Search())
	again, err := cur.GetValue()
	require.NoError(t, err)
	require.Equal(t, []byte("value"), again)
}

func TestRawNulByteValidation(t *testing.T) {
	require.PanicsWithError(t, "string argument contains an embedded NUL byte", func() {
		_, _ = Open("home\x00dir", "")
	})

	_, s := openRaw(t)
	require.Panics(t, func() {
		_ = s.Create("table:\x00bad", "")
	})
	require.Panics(t, func() {
		_, _ = s.OpenCursor("table:main", "over\x00write=true")
	})
}

func TestRawOpPanicOnNilSlot(t *testing.T) {
	_, s := openRaw(t)
	require.NoError(t, s.Create("table:main", ""))
	cur, err := s.OpenCursor("table:main", "")
	require.NoError(t, err)

	// 能力表里的空槽位是编程错误, 直接 panic
	rc := cur.c
	saved := rc.Ops.Search
	rc.Ops.Search = nil
	require.Panics(t, func() { _ = cur.Search() })
	rc.Ops.Search = saved
}

func TestRawTransactionFlow(t *testing.T) {
	_, s := openRaw(t)
	require.NoError(t, s.Create("table:main", ""))

	require.NoError(t, s.BeginTransaction(""))
	require.True(t, s.InTransaction())
	cur, err := s.OpenCursor("table:main", "")
	require.NoError(t, err)
	cur.SetKey([]byte("t"))
	cur.SetValue([]byte("1"))
	require.NoError(t, cur.Insert())
	require.NoError(t, s.CommitTransaction(""))
	require.False(t, s.InTransaction())

	cur.SetKey([]byte("t"))
	require.NoError(t, cur.Search())
}
