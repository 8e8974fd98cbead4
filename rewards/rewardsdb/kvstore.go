package rewardsdb

import (
	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
)

const (
	levelDBCache   = 16
	levelDBHandles = 16
)

var prefixReward = []byte("r")

// kvStore keeps the table in any go-ethereum key-value store.
// Keys are the prefix and the big-endian height, so iteration is by height.
type kvStore struct {
	db ethdb.KeyValueStore
}

// NewMemory returns a store that lives only as long as the process.
func NewMemory() Store {
	return &kvStore{db: memorydb.New()}
}

// OpenLevelDB opens a leveldb-backed store at path.
func OpenLevelDB(path string) (Store, error) {
	db, err := leveldb.New(path, levelDBCache, levelDBHandles, "concordia/rewards/", false)
	if err != nil {
		return nil, err
	}
	return &kvStore{db: db}, nil
}

func rewardKey(height int32) []byte {
	return append(append([]byte{}, prefixReward...), bigendian.Uint32ToBytes(uint32(height))...)
}

func (s *kvStore) Upsert(height int32, amount int64) error {
	return s.db.Put(rewardKey(height), bigendian.Uint64ToBytes(uint64(amount)))
}

func (s *kvStore) Delete(height int32) error {
	return s.db.Delete(rewardKey(height))
}

func (s *kvStore) Load() (map[int32]int64, error) {
	it := s.db.NewIterator(prefixReward, nil)
	defer it.Release()

	table := make(map[int32]int64)
	for it.Next() {
		key := it.Key()[len(prefixReward):]
		table[int32(bigendian.BytesToUint32(key))] = int64(bigendian.BytesToUint64(it.Value()))
	}
	return table, it.Error()
}

func (s *kvStore) Close() error {
	return s.db.Close()
}
