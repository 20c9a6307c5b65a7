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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The engine consumes flat configuration strings:
//
//	key=value,flag,list=[a,b],nested=(sub=val,other=2)
//
// A bare key is a boolean true. Unknown keys, unbalanced brackets and values
// that fail a scope's validation all surface as EINVAL at the call site.

type config map[string]string

func parseConfig(s string) (config, error) {
	conf := make(config)
	for _, item := range splitTop(s, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		eq := topIndex(item, '=')
		if eq < 0 {
			if !validKey(item) {
				return nil, errors.Errorf("config: bad key %q", item)
			}
			conf[item] = ""
			continue
		}
		key := strings.TrimSpace(item[:eq])
		val := strings.TrimSpace(item[eq+1:])
		if !validKey(key) {
			return nil, errors.Errorf("config: bad key %q", key)
		}
		if err := checkBalanced(val); err != nil {
			return nil, err
		}
		conf[key] = val
	}
	return conf, nil
}

// splitTop splits on sep outside any bracket nesting.
func splitTop(s string, sep byte) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

func topIndex(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case c:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func checkBalanced(v string) error {
	depth := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		}
		if depth < 0 {
			return errors.Errorf("config: unbalanced value %q", v)
		}
	}
	if depth != 0 {
		return errors.Errorf("config: unbalanced value %q", v)
	}
	return nil
}

// value kinds understood by scope validation.
const (
	kBool = iota
	kInt
	kString
	kEnum
	kList
	kNested
)

type confSpec struct {
	kind     int
	enum     []string
	min, max int64
	nested   map[string]confSpec
}

func (cs confSpec) checkValue(v string) error {
	switch cs.kind {
	case kBool:
		switch v {
		case "", "true", "false", "1", "0":
			return nil
		}
		return errors.Errorf("config: bad boolean %q", v)
	case kInt:
		n, err := parseSize(v)
		if err != nil {
			return err
		}
		if cs.min != 0 || cs.max != 0 {
			if n < cs.min || n > cs.max {
				return errors.Errorf("config: value %d out of range [%d,%d]", n, cs.min, cs.max)
			}
		}
		return nil
	case kString:
		return nil
	case kEnum:
		for _, e := range cs.enum {
			if v == e {
				return nil
			}
		}
		return errors.Errorf("config: bad choice %q", v)
	case kList:
		if v == "" {
			return nil
		}
		if strings.HasPrefix(v, "[") {
			if !strings.HasSuffix(v, "]") {
				return errors.Errorf("config: bad list %q", v)
			}
			v = v[1 : len(v)-1]
		}
		if cs.enum == nil {
			return nil
		}
		for _, item := range splitTop(v, ',') {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			ok := false
			for _, e := range cs.enum {
				if item == e {
					ok = true
					break
				}
			}
			if !ok {
				return errors.Errorf("config: bad list item %q", item)
			}
		}
		return nil
	case kNested:
		if v == "" {
			return nil
		}
		if strings.HasPrefix(v, "(") {
			if !strings.HasSuffix(v, ")") {
				return errors.Errorf("config: bad nested value %q", v)
			}
			v = v[1 : len(v)-1]
		}
		sub, err := parseConfig(v)
		if err != nil {
			return err
		}
		return sub.check(cs.nested)
	}
	return nil
}

// check validates every key against the scope. Unknown keys fail: the caller
// turns the error into EINVAL, exactly what a native layer reports for a
// malformed configuration string.
func (c config) check(scope map[string]confSpec) error {
	for k, v := range c {
		spec, ok := scope[k]
		if !ok {
			return errors.Errorf("config: unknown key %q", k)
		}
		if err := spec.checkValue(v); err != nil {
			return err
		}
	}
	return nil
}

// parseSize handles plain integers and the K/M/G/T byte suffixes.
func parseSize(v string) (int64, error) {
	s := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(v)), "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, s[:len(s)-1]
	case strings.HasSuffix(s, "T"):
		mult, s = 1<<40, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("config: bad integer %q", v)
	}
	return n * mult, nil
}

// Getters assume the config already passed scope validation.

func (c config) bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	return v == "" || v == "true" || v == "1"
}

func (c config) int(key string, def int64) int64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := parseSize(v)
	if err != nil {
		return def
	}
	return n
}

func (c config) str(key, def string) string {
	v, ok := c[key]
	if !ok || v == "" {
		return def
	}
	return v
}

func (c config) list(key string) []string {
	v, ok := c[key]
	if !ok || v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		v = v[1 : len(v)-1]
	}
	var out []string
	for _, item := range splitTop(v, ',') {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c config) sub(key string) config {
	v, ok := c[key]
	if !ok || v == "" {
		return config{}
	}
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		v = v[1 : len(v)-1]
	}
	sub, err := parseConfig(v)
	if err != nil {
		return config{}
	}
	return sub
}

// Scopes. One entry per engine call site that accepts a configuration string.

var verboseCategories = []string{
	"api", "block", "checkpoint", "compact", "evict", "evictserver", "fileops",
	"log", "metadata", "mutex", "overflow", "read", "reconcile", "recovery",
	"salvage", "shared_cache", "split", "temporary", "transaction", "verify",
	"version", "write",
}

var checkpointScope = map[string]confSpec{
	"log_size": {kind: kInt, min: 0, max: 2 << 30},
	"name":     {kind: kString},
	"wait":     {kind: kInt, min: 0, max: 100000},
}

var evictionScope = map[string]confSpec{
	"threads_max": {kind: kInt, min: 1, max: 20},
	"threads_min": {kind: kInt, min: 1, max: 20},
}

var logScope = map[string]confSpec{
	"archive":    {kind: kBool},
	"compressor": {kind: kEnum, enum: []string{"", "none", "snappy", "zstd"}},
	"enabled":    {kind: kBool},
	"file_max":   {kind: kInt, min: 100 << 10, max: 2 << 30},
	"path":       {kind: kString},
	"prealloc":   {kind: kBool},
	"recover":    {kind: kEnum, enum: []string{"error", "on"}},
}

var sharedCacheScope = map[string]confSpec{
	"chunk":   {kind: kInt, min: 1 << 20, max: 10 << 40},
	"name":    {kind: kString},
	"reserve": {kind: kInt},
	"size":    {kind: kInt, min: 1 << 20, max: 10 << 40},
}

var statisticsLogScope = map[string]confSpec{
	"on_close":  {kind: kBool},
	"path":      {kind: kString},
	"sources":   {kind: kList},
	"timestamp": {kind: kString},
	"wait":      {kind: kInt, min: 0, max: 100000},
}

var transactionSyncScope = map[string]confSpec{
	"enabled": {kind: kBool},
	"method":  {kind: kEnum, enum: []string{"dsync", "fsync", "none"}},
}

var openConnScope = map[string]confSpec{
	"buffer_alignment":      {kind: kInt},
	"cache_overhead":        {kind: kInt, min: 0, max: 30},
	"cache_size":            {kind: kInt, min: 1 << 20, max: 10 << 40},
	"checkpoint":            {kind: kNested, nested: checkpointScope},
	"checkpoint_sync":       {kind: kBool},
	"config_base":           {kind: kBool},
	"create":                {kind: kBool},
	"direct_io":             {kind: kList, enum: []string{"checkpoint", "data", "log"}},
	"error_prefix":          {kind: kString},
	"eviction":              {kind: kNested, nested: evictionScope},
	"eviction_dirty_target": {kind: kInt, min: 10, max: 99},
	"eviction_target":       {kind: kInt, min: 10, max: 99},
	"eviction_trigger":      {kind: kInt, min: 10, max: 99},
	"exclusive":             {kind: kBool},
	"file_extend":           {kind: kList, enum: []string{"data", "log"}},
	"hazard_max":            {kind: kInt, min: 15, max: 1 << 30},
	"log":                   {kind: kNested, nested: logScope},
	"session_max":           {kind: kInt, min: 1, max: 1 << 20},
	"shared_cache":          {kind: kNested, nested: sharedCacheScope},
	"statistics":            {kind: kList, enum: []string{"all", "fast", "none", "clear"}},
	"statistics_log":        {kind: kNested, nested: statisticsLogScope},
	"transaction_sync":      {kind: kNested, nested: transactionSyncScope},
	"use_environment_priv":  {kind: kBool},
	"verbose":               {kind: kList, enum: verboseCategories},
}

var reconfigureConnScope = map[string]confSpec{
	"cache_overhead":        openConnScope["cache_overhead"],
	"cache_size":            openConnScope["cache_size"],
	"checkpoint":            openConnScope["checkpoint"],
	"error_prefix":          openConnScope["error_prefix"],
	"eviction":              openConnScope["eviction"],
	"eviction_dirty_target": openConnScope["eviction_dirty_target"],
	"eviction_target":       openConnScope["eviction_target"],
	"eviction_trigger":      openConnScope["eviction_trigger"],
	"shared_cache":          openConnScope["shared_cache"],
	"statistics":            openConnScope["statistics"],
	"statistics_log":        openConnScope["statistics_log"],
	"verbose":               openConnScope["verbose"],
}

var sessionScope = map[string]confSpec{
	"cache_max_wait_ms": {kind: kInt, min: 0, max: 1 << 30},
	"isolation":         {kind: kEnum, enum: []string{"read-uncommitted", "read-committed", "snapshot"}},
}

var createScope = map[string]confSpec{
	"allocation_size":        {kind: kInt, min: 512, max: 128 << 20},
	"app_metadata":           {kind: kString},
	"block_allocation":       {kind: kEnum, enum: []string{"first", "best"}},
	"block_compressor":       {kind: kEnum, enum: []string{"", "none", "snappy", "zstd"}},
	"cache_resident":         {kind: kBool},
	"checksum":               {kind: kEnum, enum: []string{"on", "off", "uncompressed"}},
	"collator":               {kind: kString},
	"columns":                {kind: kList},
	"dictionary":             {kind: kInt},
	"exclusive":              {kind: kBool},
	"format":                 {kind: kEnum, enum: []string{"btree"}},
	"huffman_key":            {kind: kString},
	"huffman_value":          {kind: kString},
	"immutable":              {kind: kBool},
	"internal_key_max":       {kind: kInt},
	"internal_key_truncate":  {kind: kBool},
	"internal_page_max":      {kind: kInt, min: 512, max: 512 << 20},
	"key_format":             {kind: kEnum, enum: []string{"S", "u"}},
	"leaf_key_max":           {kind: kInt},
	"leaf_page_max":          {kind: kInt, min: 512, max: 512 << 20},
	"leaf_value_max":         {kind: kInt},
	"memory_page_max":        {kind: kInt, min: 512, max: 10 << 40},
	"os_cache_dirty_max":     {kind: kInt},
	"os_cache_max":           {kind: kInt},
	"prefix_compression":     {kind: kBool},
	"prefix_compression_min": {kind: kInt},
	"split_pct":              {kind: kInt, min: 25, max: 100},
	"type":                   {kind: kString},
	"value_format":           {kind: kEnum, enum: []string{"S", "u"}},
}

var dropScope = map[string]confSpec{
	"force":        {kind: kBool},
	"remove_files": {kind: kBool},
}

var cursorScope = map[string]confSpec{
	"append":    {kind: kBool},
	"bulk":      {kind: kBool},
	"overwrite": {kind: kBool},
	"raw":       {kind: kBool},
	"readonly":  {kind: kBool},
}

var beginTxnScope = map[string]confSpec{
	"isolation": sessionScope["isolation"],
	"name":      {kind: kString},
	"sync":      {kind: kEnum, enum: []string{"true", "false", "background", "off", "on"}},
}

var commitTxnScope = map[string]confSpec{
	"sync": {kind: kEnum, enum: []string{"true", "false", "background", "off", "on"}},
}

var rollbackTxnScope = map[string]confSpec{}

var prepareTxnScope = map[string]confSpec{
	"prepare_timestamp": {kind: kString},
}

var sessionCheckpointScope = map[string]confSpec{
	"force": {kind: kBool},
	"name":  {kind: kString},
}

var compactScope = map[string]confSpec{
	"timeout": {kind: kInt},
}

var boundScope = map[string]confSpec{
	"action":    {kind: kEnum, enum: []string{"set", "clear"}},
	"bound":     {kind: kEnum, enum: []string{"lower", "upper"}},
	"inclusive": {kind: kBool},
}

var closeConnScope = map[string]confSpec{
	"leak_memory": {kind: kBool},
}

// parseChecked parses and scope-checks a config string in one go.
func parseChecked(s string, scope map[string]confSpec) (config, int) {
	conf, err := parseConfig(s)
	if err != nil {
		return nil, EINVAL
	}
	if err := conf.check(scope); err != nil {
		return nil, EINVAL
	}
	return conf, StatusOK
}
