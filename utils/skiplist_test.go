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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkiplistBasicCRUD(t *testing.T) {
	list := NewSkiplist()

	entry1 := &Entry{Key: []byte("key1"), Value: []byte("val1"), Version: 1}
	list.Add(entry1)
	vs, ok := list.Search(KeyWithTs(entry1.Key, 1))
	require.True(t, ok)
	require.Equal(t, entry1.Value, vs.Value)

	entry2 := &Entry{Key: []byte("key2"), Value: []byte("val2"), Version: 2}
	list.Add(entry2)
	vs, ok = list.Search(KeyWithTs(entry2.Key, 2))
	require.True(t, ok)
	require.Equal(t, entry2.Value, vs.Value)

	// 查询一个不存在的 key
	_, ok = list.Search(KeyWithTs([]byte("noexist"), 1))
	require.False(t, ok)

	// 同一个内部 key 更新值
	entry2v := &Entry{Key: []byte("key2"), Value: []byte("val2-fresh"), Version: 2}
	list.Add(entry2v)
	vs, ok = list.Search(KeyWithTs([]byte("key2"), 2))
	require.True(t, ok)
	require.Equal(t, []byte("val2-fresh"), vs.Value)
}

func TestSkiplistVersionOrder(t *testing.T) {
	list := NewSkiplist()
	for v := uint64(1); v <= 3; v++ {
		list.Add(&Entry{Key: []byte("k"), Value: []byte(fmt.Sprintf("v%d", v)), Version: v})
	}

	// 同一个 user key 的版本按新到旧排列
	it := list.NewSkipListIterator()
	it.Seek(KeyWithTs([]byte("k"), maxVersion))
	var got []uint64
	for ; it.Valid(); it.Next() {
		got = append(got, ParseTs(it.Key()))
	}
	require.Equal(t, []uint64{3, 2, 1}, got)
}

const maxVersion = ^uint64(0)

func TestSkiplistIterator(t *testing.T) {
	list := NewSkiplist()
	keys := []string{"m", "a", "z", "q", "b"}
	for i, k := range keys {
		list.Add(&Entry{Key: []byte(k), Value: []byte(k), Version: uint64(i + 1)})
	}

	it := list.NewSkipListIterator()
	var forward []string
	for it.Rewind(); it.Valid(); it.Next() {
		forward = append(forward, string(ParseKey(it.Key())))
	}
	require.Equal(t, []string{"a", "b", "m", "q", "z"}, forward)

	var backward []string
	for it.RewindLast(); it.Valid(); it.Prev() {
		backward = append(backward, string(ParseKey(it.Key())))
	}
	require.Equal(t, []string{"z", "q", "m", "b", "a"}, backward)

	it.Seek(KeyWithTs([]byte("n"), maxVersion))
	require.True(t, it.Valid())
	require.Equal(t, "q", string(ParseKey(it.Key())))

	it.SeekForPrev(KeyWithTs([]byte("n"), 0))
	require.True(t, it.Valid())
	require.Equal(t, "m", string(ParseKey(it.Key())))
}

func TestCompareKeys(t *testing.T) {
	require.Equal(t, 0, CompareKeys(KeyWithTs([]byte("a"), 1), KeyWithTs([]byte("a"), 1)))
	require.Equal(t, -1, CompareKeys(KeyWithTs([]byte("a"), 1), KeyWithTs([]byte("aa"), 1)))
	// 新版本排在旧版本前面
	require.Equal(t, -1, CompareKeys(KeyWithTs([]byte("a"), 9), KeyWithTs([]byte("a"), 1)))
}
