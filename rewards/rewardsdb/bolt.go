package rewardsdb

import (
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	bolt "go.etcd.io/bbolt"
)

var bucketRewards = []byte("rewards")

type boltStore struct {
	db *bolt.DB
}

// OpenBolt opens a bbolt-backed store at path. The file lock is waited on
// for one second, long enough for a restarting process to release it.
func OpenBolt(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRewards)
		return err
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create bucket: %w (additionally failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Upsert(height int32, amount int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRewards).Put(bigendian.Uint32ToBytes(uint32(height)), bigendian.Uint64ToBytes(uint64(amount)))
	})
}

func (s *boltStore) Delete(height int32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRewards).Delete(bigendian.Uint32ToBytes(uint32(height)))
	})
}

func (s *boltStore) Load() (map[int32]int64, error) {
	table := make(map[int32]int64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRewards).ForEach(func(k, v []byte) error {
			if len(k) != 4 || len(v) != 8 {
				return fmt.Errorf("malformed rewards entry %x", k)
			}
			table[int32(bigendian.BytesToUint32(k))] = int64(bigendian.BytesToUint64(v))
			return nil
		})
	})
	return table, err
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
