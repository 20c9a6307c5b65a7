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

	"go.uber.org/zap"
)

// eventLog is the connection's message handler. It stays silent unless the
// connection was opened (or reconfigured) with verbose categories; an embedded
// engine must not write to the process's streams uninvited.
type eventLog struct {
	mu   sync.RWMutex
	z    *zap.Logger
	cats map[string]struct{}
}

func newEventLog(cats []string) *eventLog {
	ev := &eventLog{z: zap.NewNop()}
	ev.setCats(cats)
	return ev
}

func (ev *eventLog) setCats(cats []string) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(cats) == 0 {
		ev.cats = nil
		ev.z = zap.NewNop()
		return
	}
	m := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		m[c] = struct{}{}
	}
	ev.cats = m
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	ev.z = z
}

func (ev *eventLog) enabled(cat string) bool {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	_, ok := ev.cats[cat]
	return ok
}

func (ev *eventLog) msg(cat, msg string, fields ...zap.Field) {
	ev.mu.RLock()
	z, cats := ev.z, ev.cats
	ev.mu.RUnlock()
	if _, ok := cats[cat]; !ok {
		return
	}
	z.Info(msg, append(fields, zap.String("category", cat))...)
}

func (ev *eventLog) err(msg string, code int, fields ...zap.Field) {
	ev.mu.RLock()
	z, cats := ev.z, ev.cats
	ev.mu.RUnlock()
	if cats == nil {
		return
	}
	z.Error(msg, append(fields, zap.Int("code", code), zap.String("detail", Strerror(code)))...)
}

func (ev *eventLog) sync() {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	_ = ev.z.Sync()
}
