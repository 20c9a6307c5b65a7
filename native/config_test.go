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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigBasic(t *testing.T) {
	conf, err := parseConfig("create,cache_size=100MB,verbose=[api,read],log=(compressor=snappy,enabled)")
	require.NoError(t, err)

	require.True(t, conf.bool("create", false))
	require.Equal(t, int64(100<<20), conf.int("cache_size", 0))
	require.Equal(t, []string{"api", "read"}, conf.list("verbose"))

	sub := conf.sub("log")
	require.Equal(t, "snappy", sub.str("compressor", "none"))
	require.True(t, sub.bool("enabled", false))
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig("log=(compressor=snappy")
	require.Error(t, err)
	_, err = parseConfig("Bad Key=1")
	require.Error(t, err)

	// 合法语法, 但 key 不在当前作用域
	_, code := parseChecked("bogus", openConnScope)
	require.Equal(t, EINVAL, code)
	_, code = parseChecked("create", openConnScope)
	require.Equal(t, StatusOK, code)
}

func TestParseSizeSuffix(t *testing.T) {
	for in, want := range map[string]int64{
		"512":   512,
		"4K":    4 << 10,
		"100MB": 100 << 20,
		"2GB":   2 << 30,
		"1TB":   1 << 40,
	} {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := parseSize("12Q")
	require.Error(t, err)
	_, err = parseSize("")
	require.Error(t, err)
}

func TestScopeValidation(t *testing.T) {
	// 范围检查
	_, code := parseChecked("eviction_target=5", openConnScope)
	require.Equal(t, EINVAL, code)
	_, code = parseChecked("eviction_target=75", openConnScope)
	require.Equal(t, StatusOK, code)

	// 枚举检查
	_, code = parseChecked("isolation=bogus", sessionScope)
	require.Equal(t, EINVAL, code)
	_, code = parseChecked("isolation=snapshot", sessionScope)
	require.Equal(t, StatusOK, code)

	// 嵌套作用域
	_, code = parseChecked("log=(compressor=lz77)", openConnScope)
	require.Equal(t, EINVAL, code)
	_, code = parseChecked("log=(compressor=zstd,file_max=200K)", openConnScope)
	require.Equal(t, StatusOK, code)

	// 列表元素检查
	_, code = parseChecked("verbose=[api,nonsense]", openConnScope)
	require.Equal(t, EINVAL, code)

	// session 作用域不认识连接级 key
	_, code = parseChecked("cache_size=1GB", sessionScope)
	require.Equal(t, EINVAL, code)
}
