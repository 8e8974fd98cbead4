// Package rewardsdb persists the dynamic reward of every epoch.
//
// The schema is a single table keyed by epoch boundary height holding the
// subsidy in base units. Three backends implement it: go-ethereum leveldb,
// bbolt, and an in-memory store used by tests and as the degraded fallback.
package rewardsdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the durable epoch table.
type Store interface {
	// Upsert inserts or replaces the amount of the epoch at height.
	Upsert(height int32, amount int64) error
	// Delete removes the epoch at height. Other epochs are untouched and a
	// missing entry is not an error.
	Delete(height int32) error
	// Load returns the whole table.
	Load() (map[int32]int64, error)
	Close() error
}

// Kind selects a backend.
type Kind uint8

const (
	Memory Kind = iota
	LevelDB
	Bolt
)

var ErrUnknownKind = errors.New("unknown rewards store kind")

func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case LevelDB:
		return "leveldb"
	case Bolt:
		return "bolt"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "memory", "mem":
		return Memory, nil
	case "leveldb", "ldb":
		return LevelDB, nil
	case "bolt", "bbolt":
		return Bolt, nil
	}
	return 0, fmt.Errorf("%w %q (valid: leveldb, bolt, memory)", ErrUnknownKind, s)
}

// Path returns where the backend keeps its files inside dir.
func Path(kind Kind, dir string) string {
	switch kind {
	case LevelDB:
		return filepath.Join(dir, "rewards")
	case Bolt:
		return filepath.Join(dir, "rewards.db")
	}
	return ""
}

// Open opens the store of the given kind under dir, creating it if needed.
func Open(kind Kind, dir string) (Store, error) {
	switch kind {
	case Memory:
		return NewMemory(), nil
	case LevelDB:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		return OpenLevelDB(Path(kind, dir))
	case Bolt:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		return OpenBolt(Path(kind, dir))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

// Wipe deletes the files of the store under dir. A missing store is not an error.
func Wipe(kind Kind, dir string) error {
	path := Path(kind, dir)
	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("wipe rewards store %s: %w", path, err)
	}
	return nil
}
