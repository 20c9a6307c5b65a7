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

// meta bits carried on every record.
const (
	// BitDelete marks a tombstone version of the key.
	BitDelete byte = 1 << 0
	// BitSchema marks a record describing a data source, not user data.
	BitSchema byte = 1 << 1
)

// ValueStruct is the value payload stored in the ordered store. Version lives
// in the internal key suffix, not here.
type ValueStruct struct {
	Meta  byte
	Value []byte
}

// IsDeleted reports whether the version is a tombstone.
func (vs *ValueStruct) IsDeleted() bool {
	return vs.Meta&BitDelete != 0
}

// Entry 最外层写入的结构体
type Entry struct {
	Key     []byte
	Value   []byte
	Meta    byte
	Version uint64
}

// NewEntry _
func NewEntry(key, value []byte) *Entry {
	return &Entry{
		Key:   key,
		Value: value,
	}
}

// Entry _
func (e *Entry) Entry() *Entry {
	return e
}

// IsDeleted reports whether the entry is a tombstone.
func (e *Entry) IsDeleted() bool {
	return e.Meta&BitDelete != 0
}

// EstimateSize returns the bytes the entry occupies in memory.
func (e *Entry) EstimateSize() int64 {
	return int64(len(e.Key) + len(e.Value) + 2) // Meta, and one byte of overhead.
}
