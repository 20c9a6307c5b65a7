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

import "sync/atomic"

// connStats 连接级统计, 全部原子计数
type connStats struct {
	searches     atomic.Int64
	inserts      atomic.Int64
	updates      atomic.Int64
	removes      atomic.Int64
	txnCommits   atomic.Int64
	txnRollbacks atomic.Int64
	checkpoints  atomic.Int64
	sessionsOpen atomic.Int64
	cursorsOpen  atomic.Int64
}

// snapshot returns a point-in-time copy keyed by stat name.
func (s *connStats) snapshot() map[string]int64 {
	return map[string]int64{
		"cursor_search": s.searches.Load(),
		"cursor_insert": s.inserts.Load(),
		"cursor_update": s.updates.Load(),
		"cursor_remove": s.removes.Load(),
		"txn_commit":    s.txnCommits.Load(),
		"txn_rollback":  s.txnRollbacks.Load(),
		"checkpoints":   s.checkpoints.Load(),
		"sessions_open": s.sessionsOpen.Load(),
		"cursors_open":  s.cursorsOpen.Load(),
	}
}
