// Package blockstore keeps block bodies in append-only flat files and indexes
// them in a key-value database.
//
// Every record in a blkNNNNN.dat file is framed as
//
//	magic (LE uint32) | size (LE uint32) | serialized wire.MsgBlock
//
// and addressed by (file number, payload offset), the position stored on the
// block's index node. The database next to the files holds the persisted block
// index records and the transaction index.
package blockstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/ethdb"

	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/log"
)

// DefaultMaxFileSize caps a single block file.
const DefaultMaxFileSize = 128 << 20

const frameHeaderSize = 8

var (
	// ErrNoData is returned for a node whose body was never stored.
	ErrNoData = errors.New("block data not available")
	// ErrBadMagic is returned for a record framed with foreign magic bytes.
	ErrBadMagic = errors.New("block file record has wrong magic")
	// ErrHashMismatch is returned when a stored body does not hash to the node.
	ErrHashMismatch = errors.New("stored block does not match index")
	// ErrTxNotFound is returned by GetTransaction for unindexed hashes.
	ErrTxNotFound = errors.New("transaction not indexed")
)

// Store writes and reads block bodies.
type Store struct {
	dir         string
	magic       uint32
	maxFileSize int64
	db          ethdb.KeyValueStore
	log         log.Logger

	mu      sync.Mutex
	cur     *os.File
	curFile int32
	curSize int64
}

// Open opens or creates the block files under dir. db holds the index.
func Open(dir string, magic uint32, db ethdb.KeyValueStore, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blocks dir: %w", err)
	}
	s := &Store{
		dir:         dir,
		magic:       magic,
		maxFileSize: DefaultMaxFileSize,
		db:          db,
		log:         logger,
	}
	for s.exists(s.curFile + 1) {
		s.curFile++
	}
	if err := s.openCurrent(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetMaxFileSize changes the roll-over size for new writes.
func (s *Store) SetMaxFileSize(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFileSize = size
}

func (s *Store) fileName(n int32) string {
	return filepath.Join(s.dir, fmt.Sprintf("blk%05d.dat", n))
}

func (s *Store) exists(n int32) bool {
	_, err := os.Stat(s.fileName(n))
	return err == nil
}

func (s *Store) openCurrent() error {
	f, err := os.OpenFile(s.fileName(s.curFile), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open block file %d: %w", s.curFile, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.cur, s.curSize = f, info.Size()
	return nil
}

// WriteBlock appends block and returns its position.
func (s *Store) WriteBlock(block *wire.MsgBlock) (file int32, dataPos uint32, err error) {
	var buf bytes.Buffer
	buf.Grow(frameHeaderSize + block.SerializeSize())
	var frame [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(frame[0:4], s.magic)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(block.SerializeSize()))
	buf.Write(frame[:])
	if err := block.Serialize(&buf); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.curSize > 0 && s.curSize+int64(buf.Len()) > s.maxFileSize {
		if err := s.cur.Close(); err != nil {
			return 0, 0, err
		}
		s.curFile++
		if err := s.openCurrent(); err != nil {
			return 0, 0, err
		}
		s.log.Debug("Opened new block file", "file", s.curFile)
	}

	if _, err := s.cur.Write(buf.Bytes()); err != nil {
		return 0, 0, fmt.Errorf("write block %s: %w", block.BlockHash(), err)
	}
	file, dataPos = s.curFile, uint32(s.curSize+frameHeaderSize)
	s.curSize += int64(buf.Len())
	return file, dataPos, nil
}

// ReadBlockAt reads the block stored at (file, dataPos).
func (s *Store) ReadBlockAt(file int32, dataPos uint32) (*wire.MsgBlock, error) {
	if dataPos < frameHeaderSize {
		return nil, fmt.Errorf("invalid block position %d:%d", file, dataPos)
	}
	f, err := os.Open(s.fileName(file))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := io.NewSectionReader(f, int64(dataPos)-frameHeaderSize, 1<<62)
	block, _, err := s.readRecord(bufio.NewReader(r))
	return block, err
}

// ReadBlock reads the body of node and checks it against the node's hash.
func (s *Store) ReadBlock(node *chain.BlockIndex) (*wire.MsgBlock, error) {
	file, dataPos, ok := node.DiskPos()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoData, node.Hash())
	}
	block, err := s.ReadBlockAt(file, dataPos)
	if err != nil {
		return nil, fmt.Errorf("read block %s: %w", node.Hash(), err)
	}
	if block.BlockHash() != node.Hash() {
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, node.Hash())
	}
	return block, nil
}

func (s *Store) readRecord(r io.Reader) (*wire.MsgBlock, uint32, error) {
	var frame [frameHeaderSize]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return nil, 0, err
	}
	if binary.LittleEndian.Uint32(frame[0:4]) != s.magic {
		return nil, 0, ErrBadMagic
	}
	size := binary.LittleEndian.Uint32(frame[4:8])
	if size > wire.MaxBlockPayload {
		return nil, 0, fmt.Errorf("block record of %d bytes exceeds payload limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, err
	}
	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, 0, err
	}
	return &block, size, nil
}

// Replay walks every stored record in file order. A truncated tail record is
// treated as the end of the data.
func (s *Store) Replay(fn func(block *wire.MsgBlock, file int32, dataPos uint32) error) error {
	for n := int32(0); s.exists(n); n++ {
		if err := s.replayFile(n, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) replayFile(n int32, fn func(*wire.MsgBlock, int32, uint32) error) error {
	f, err := os.Open(s.fileName(n))
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset uint32
	for {
		block, size, err := s.readRecord(r)
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.log.Warn("Truncated block record", "file", n, "offset", offset)
			return nil
		case err != nil:
			return fmt.Errorf("replay block file %d at %d: %w", n, offset, err)
		}
		if err := fn(block, n, offset+frameHeaderSize); err != nil {
			return err
		}
		offset += frameHeaderSize + size
	}
}

// Close releases the open block file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}

// Has reports whether hash has a persisted index record.
func (s *Store) Has(hash chainhash.Hash) bool {
	ok, _ := s.db.Has(recordKey(hash))
	return ok
}
