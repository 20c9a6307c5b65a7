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
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tigerkv/tigerkv/utils"
)

// Compressor selects the per-record codec for the write-ahead log.
type Compressor byte

const (
	// CompressNone stores records verbatim.
	CompressNone Compressor = iota
	// CompressSnappy stores snappy-encoded record bodies.
	CompressSnappy
	// CompressZstd stores zstd-encoded record bodies.
	CompressZstd
)

var (
	walMagic   = [4]byte{'T', 'G', 'K', 'V'}
	walVersion = uint32(1)

	// CastagnoliCrcTable is a CRC32 polynomial table
	CastagnoliCrcTable = crc32.MakeTable(crc32.Castagnoli)
)

const walHeaderSize = 4 + 4 + 1 // magic + version + compressor

// Options _
type Options struct {
	Dir        string
	Name       string
	Compressor Compressor
	// SyncOnWrite issues a datasync after every append.
	SyncOnWrite bool
}

// Wal 预写日志, 连接级别的唯一持久化结构
type Wal struct {
	opt  Options
	f    *os.File
	w    *bufio.Writer
	size int64

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// CreateWal truncates and initializes a fresh log file.
func CreateWal(opt Options) (*Wal, error) {
	f, err := os.OpenFile(filepath.Join(opt.Dir, opt.Name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "wal create")
	}
	w := &Wal{opt: opt, f: f, w: bufio.NewWriter(f)}
	if err := w.initCodec(); err != nil {
		_ = f.Close()
		return nil, err
	}
	hdr := make([]byte, walHeaderSize)
	copy(hdr, walMagic[:])
	binary.BigEndian.PutUint32(hdr[4:], walVersion)
	hdr[8] = byte(opt.Compressor)
	if _, err := w.w.Write(hdr); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "wal header")
	}
	if err := w.w.Flush(); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "wal header")
	}
	w.size = walHeaderSize
	return w, nil
}

// OpenWal opens an existing log file and validates its header. The recorded
// compressor wins over the one in opt so a database reopened with a different
// log config still replays.
func OpenWal(opt Options) (*Wal, error) {
	f, err := os.OpenFile(filepath.Join(opt.Dir, opt.Name), os.O_RDWR, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "wal open")
	}
	hdr := make([]byte, walHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		_ = f.Close()
		return nil, utils.ErrBadMagic
	}
	if string(hdr[:4]) != string(walMagic[:]) {
		_ = f.Close()
		return nil, utils.ErrBadMagic
	}
	opt.Compressor = Compressor(hdr[8])
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "wal stat")
	}
	w := &Wal{opt: opt, f: f, size: fi.Size()}
	if err := w.initCodec(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "wal seek")
	}
	w.w = bufio.NewWriter(f)
	return w, nil
}

func (w *Wal) initCodec() error {
	if w.opt.Compressor != CompressZstd {
		return nil
	}
	var err error
	if w.zenc, err = zstd.NewWriter(nil); err != nil {
		return errors.Wrap(err, "zstd encoder")
	}
	if w.zdec, err = zstd.NewReader(nil); err != nil {
		return errors.Wrap(err, "zstd decoder")
	}
	return nil
}

// Size returns the current file size including buffered bytes.
func (w *Wal) Size() int64 {
	return w.size
}

// Compressor returns the codec the log was created with.
func (w *Wal) Compressor() Compressor {
	return w.opt.Compressor
}

// encodeBody lays out an entry as
// klen | vlen | meta | version | key | value, all lengths varint.
func encodeBody(e *utils.Entry) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(e.Key)+len(e.Value)+binary.MaxVarintLen64+1)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(e.Key)))
	buf = append(buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(len(e.Value)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, e.Meta)
	n = binary.PutUvarint(tmp[:], e.Version)
	buf = append(buf, tmp[:n]...)
	buf = append(buf, e.Key...)
	buf = append(buf, e.Value...)
	return buf
}

func decodeBody(body []byte) (*utils.Entry, error) {
	klen, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, utils.ErrTruncate
	}
	body = body[n:]
	vlen, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, utils.ErrTruncate
	}
	body = body[n:]
	if len(body) < 1 {
		return nil, utils.ErrTruncate
	}
	meta := body[0]
	body = body[1:]
	version, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, utils.ErrTruncate
	}
	body = body[n:]
	if uint64(len(body)) != klen+vlen {
		return nil, utils.ErrTruncate
	}
	return &utils.Entry{
		Key:     utils.Copy(body[:klen]),
		Value:   utils.Copy(body[klen:]),
		Meta:    meta,
		Version: version,
	}, nil
}

func (w *Wal) compress(body []byte) ([]byte, error) {
	switch w.opt.Compressor {
	case CompressNone:
		return body, nil
	case CompressSnappy:
		return snappy.Encode(nil, body), nil
	case CompressZstd:
		return w.zenc.EncodeAll(body, nil), nil
	}
	return nil, errors.Errorf("unknown wal compressor %d", w.opt.Compressor)
}

func (w *Wal) decompress(stored []byte) ([]byte, error) {
	switch w.opt.Compressor {
	case CompressNone:
		return stored, nil
	case CompressSnappy:
		return snappy.Decode(nil, stored)
	case CompressZstd:
		return w.zdec.DecodeAll(stored, nil)
	}
	return nil, errors.Errorf("unknown wal compressor %d", w.opt.Compressor)
}

// Append writes the entries as one batch. Records from a single commit reach
// the disk in order, so replay never observes half a transaction ahead of an
// earlier one.
func (w *Wal) Append(entries ...*utils.Entry) error {
	var tmp [binary.MaxVarintLen64]byte
	for _, e := range entries {
		stored, err := w.compress(encodeBody(e))
		if err != nil {
			return err
		}
		n := binary.PutUvarint(tmp[:], uint64(len(stored)))
		if _, err := w.w.Write(tmp[:n]); err != nil {
			return errors.Wrap(err, "wal append")
		}
		if _, err := w.w.Write(stored); err != nil {
			return errors.Wrap(err, "wal append")
		}
		var crcBuf [crc32.Size]byte
		binary.BigEndian.PutUint32(crcBuf[:], crc32.Checksum(stored, CastagnoliCrcTable))
		if _, err := w.w.Write(crcBuf[:]); err != nil {
			return errors.Wrap(err, "wal append")
		}
		w.size += int64(n + len(stored) + crc32.Size)
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "wal flush")
	}
	if w.opt.SyncOnWrite {
		return w.Sync()
	}
	return nil
}

// Sync flushes buffered records and forces them to stable storage.
func (w *Wal) Sync() error {
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "wal flush")
	}
	return errors.Wrap(unix.Fdatasync(int(w.f.Fd())), "wal fdatasync")
}

// Replay streams every intact record to fn in write order. A torn tail record
// ends replay silently; a checksum mismatch in the middle of the log is
// reported as corruption.
func (w *Wal) Replay(fn func(*utils.Entry) error) error {
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "wal flush")
	}
	if _, err := w.f.Seek(walHeaderSize, io.SeekStart); err != nil {
		return errors.Wrap(err, "wal seek")
	}
	defer func() {
		_, _ = w.f.Seek(0, io.SeekEnd)
	}()

	r := bufio.NewReader(w.f)
	for {
		storedLen, err := binary.ReadUvarint(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nil // torn length prefix
		}
		stored := make([]byte, storedLen)
		if _, err := io.ReadFull(r, stored); err != nil {
			return nil // torn record
		}
		var crcBuf [crc32.Size]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			return nil // torn checksum
		}
		if binary.BigEndian.Uint32(crcBuf[:]) != crc32.Checksum(stored, CastagnoliCrcTable) {
			return utils.ErrBadChecksum
		}
		body, err := w.decompress(stored)
		if err != nil {
			return utils.Wrap(err, "wal decompress")
		}
		e, err := decodeBody(body)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// Rewrite atomically replaces the log with the given snapshot of entries.
// Used by checkpointing to drop dead versions.
func (w *Wal) Rewrite(entries []*utils.Entry) error {
	tmpName := w.opt.Name + ".rewrite"
	nw, err := CreateWal(Options{Dir: w.opt.Dir, Name: tmpName, Compressor: w.opt.Compressor})
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := nw.Append(entries...); err != nil {
			_ = nw.Close()
			return err
		}
	}
	if err := nw.Sync(); err != nil {
		_ = nw.Close()
		return err
	}
	if err := nw.f.Close(); err != nil {
		return errors.Wrap(err, "wal rewrite close")
	}
	if err := os.Rename(filepath.Join(w.opt.Dir, tmpName), filepath.Join(w.opt.Dir, w.opt.Name)); err != nil {
		return errors.Wrap(err, "wal rewrite rename")
	}
	if err := syncDir(w.opt.Dir); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return errors.Wrap(err, "wal rewrite swap")
	}
	reopened, err := OpenWal(w.opt)
	if err != nil {
		return err
	}
	*w = *reopened
	return nil
}

// Close flushes and closes the underlying file.
func (w *Wal) Close() error {
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "wal flush")
	}
	return errors.Wrap(w.f.Close(), "wal close")
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "sync dir open")
	}
	err = unix.Fsync(int(d.Fd()))
	_ = d.Close()
	return errors.Wrap(err, "sync dir")
}
