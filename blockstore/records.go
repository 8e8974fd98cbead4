package blockstore

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/concordia-cash/go-concordia/chain"
)

var prefixRecord = []byte("h")

func recordKey(hash chainhash.Hash) []byte {
	return append(append([]byte{}, prefixRecord...), hash[:]...)
}

// IndexRecord is the persisted form of a block index node.
type IndexRecord struct {
	Height        uint32
	Header        []byte
	Status        uint32
	File          uint32
	DataPos       uint32
	MoneySupply   uint64
	HasSupply     bool
	ProofOfStake  bool
	StakeModifier []byte
}

// RecordFor captures the mutable state of node.
func RecordFor(node *chain.BlockIndex) (*IndexRecord, error) {
	header := node.Header()
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return nil, err
	}
	rec := &IndexRecord{
		Height:       uint32(node.Height()),
		Header:       buf.Bytes(),
		Status:       uint32(node.Status()),
		ProofOfStake: node.IsProofOfStake(),
	}
	if file, pos, ok := node.DiskPos(); ok {
		rec.File, rec.DataPos = uint32(file), pos
	}
	if supply, ok := node.MoneySupply(); ok {
		rec.MoneySupply, rec.HasSupply = uint64(supply), true
	}
	if modifier := node.StakeModifier(); modifier != (chainhash.Hash{}) {
		rec.StakeModifier = modifier[:]
	}
	return rec, nil
}

// BlockHeader decodes the stored header.
func (r *IndexRecord) BlockHeader() (*wire.BlockHeader, error) {
	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(r.Header)); err != nil {
		return nil, err
	}
	return &header, nil
}

// Apply copies the stored state onto node, which must carry the same header.
func (r *IndexRecord) Apply(node *chain.BlockIndex) {
	status := chain.BlockStatus(r.Status)
	if status&chain.StatusHaveData != 0 {
		node.SetDiskPos(int32(r.File), r.DataPos)
	}
	node.RestoreStatus(status)
	if r.HasSupply {
		node.SetMoneySupply(int64(r.MoneySupply))
	}
	if r.ProofOfStake {
		node.SetProofOfStake()
	}
	if len(r.StakeModifier) == chainhash.HashSize {
		var modifier chainhash.Hash
		copy(modifier[:], r.StakeModifier)
		node.SetStakeModifier(modifier)
	}
}

// PutIndex persists the current state of node.
func (s *Store) PutIndex(node *chain.BlockIndex) error {
	rec, err := RecordFor(node)
	if err != nil {
		return err
	}
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("encode index record %s: %w", node.Hash(), err)
	}
	return s.db.Put(recordKey(node.Hash()), data)
}

// LoadIndex returns every persisted record ordered by height, so parents
// always come before their children.
func (s *Store) LoadIndex() ([]*IndexRecord, error) {
	it := s.db.NewIterator(prefixRecord, nil)
	defer it.Release()

	var records []*IndexRecord
	for it.Next() {
		rec := new(IndexRecord)
		if err := rlp.DecodeBytes(it.Value(), rec); err != nil {
			return nil, fmt.Errorf("decode index record %x: %w", it.Key(), err)
		}
		records = append(records, rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Height < records[j].Height })
	return records, nil
}
