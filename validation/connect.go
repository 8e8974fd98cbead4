package validation

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/coins"
	"github.com/concordia-cash/go-concordia/inter"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/pow"
	"github.com/concordia-cash/go-concordia/rewards"
)

// diskPos is the location of a block body that is already stored.
type diskPos struct {
	file    int32
	dataPos uint32
}

// checkBlock performs the context-free checks on a block body.
func (s *ChainState) checkBlock(block *wire.MsgBlock) error {
	hash := block.BlockHash()
	txs := block.Transactions
	if len(txs) == 0 {
		return ruleError(ErrNoTransactions, fmt.Sprintf("block %s has no transactions", hash))
	}
	if !inter.IsCoinBase(txs[0]) {
		return ruleError(ErrFirstTxNotCoinbase, fmt.Sprintf("first transaction of block %s is not a coinbase", hash))
	}
	for i, tx := range txs[1:] {
		if inter.IsCoinBase(tx) {
			return ruleError(ErrMultipleCoinbases, fmt.Sprintf("block %s has a second coinbase at index %d", hash, i+1))
		}
	}
	if root := inter.MerkleRoot(block); root != block.Header.MerkleRoot {
		return ruleError(ErrBadMerkleRoot, fmt.Sprintf("block %s merkle root is %s, header claims %s",
			hash, root, block.Header.MerkleRoot))
	}
	for i, tx := range txs {
		var total int64
		for _, out := range tx.TxOut {
			if !s.p.MoneyRange(out.Value) {
				return ruleError(ErrBadTxOutValue, fmt.Sprintf("tx %d of block %s has output value %d out of range",
					i, hash, out.Value))
			}
			total += out.Value
			if !s.p.MoneyRange(total) {
				return ruleError(ErrBadTxOutValue, fmt.Sprintf("tx %d of block %s has total output value out of range",
					i, hash))
			}
		}
	}
	return nil
}

// acceptHeader runs the contextual header checks and inserts the header. A
// known header is returned as is unless it failed before.
func (s *ChainState) acceptHeader(header *wire.BlockHeader) (*chain.BlockIndex, error) {
	hash := header.BlockHash()
	if node := s.index.Lookup(hash); node != nil {
		if node.Status()&chain.StatusFailedMask != 0 {
			return node, ruleError(ErrKnownInvalid, fmt.Sprintf("block %s is known to be invalid", hash))
		}
		return node, nil
	}

	prev := s.index.Lookup(header.PrevBlock)
	if prev == nil {
		return nil, ruleError(ErrOrphanBlock, fmt.Sprintf("previous block %s of %s is unknown", header.PrevBlock, hash))
	}
	if prev.Status()&chain.StatusFailedMask != 0 {
		return nil, ruleError(ErrKnownInvalid, fmt.Sprintf("previous block %s of %s is invalid", header.PrevBlock, hash))
	}
	height := prev.Height() + 1

	if !s.p.NetworkUpgradeActive(height, params.UpgradePoS) {
		if err := pow.CheckProofOfWork(&hash, header.Bits, s.p); err != nil {
			return nil, ruleError(ErrHighHash, err.Error())
		}
	}
	if want := pow.NextWorkRequired(prev, s.p); header.Bits != want {
		return nil, ruleError(ErrUnexpectedDifficulty, fmt.Sprintf("block %s has bits %08x, expected %08x",
			hash, header.Bits, want))
	}

	t := header.Timestamp.Unix()
	if minTime := prev.MinPastBlockTime(s.p); t <= minTime {
		return nil, ruleError(ErrTimeTooOld, fmt.Sprintf("block %s time %d is not after %d", hash, t, minTime))
	}
	if maxTime := prev.MaxFutureBlockTime(s.p, s.now().Unix()); t > maxTime {
		return nil, ruleError(ErrTimeTooNew, fmt.Sprintf("block %s time %d is after %d", hash, t, maxTime))
	}
	if !s.p.IsValidBlockTimeStamp(t, height) {
		return nil, ruleError(ErrBadTimeSlot, fmt.Sprintf("block %s time %d is not a multiple of %d",
			hash, t, s.p.TimeSlotLength))
	}

	node, err := s.index.AddHeader(header)
	if err != nil {
		return nil, err
	}
	node.RaiseValidity(chain.StatusValidTree)
	if err := s.blocks.PutIndex(node); err != nil {
		return nil, err
	}
	return node, nil
}

// acceptBlock checks and stores block and makes it a tip candidate. When pos
// is set the body is already on disk there.
func (s *ChainState) acceptBlock(block *wire.MsgBlock, pos *diskPos) (*chain.BlockIndex, error) {
	hash := block.BlockHash()
	if node := s.index.Lookup(hash); node != nil && node.HaveData() {
		if node.Status()&chain.StatusFailedMask != 0 {
			return node, ruleError(ErrKnownInvalid, fmt.Sprintf("block %s is known to be invalid", hash))
		}
		return node, ruleError(ErrDuplicateBlock, fmt.Sprintf("already have block %s", hash))
	}

	if err := s.checkBlock(block); err != nil {
		return nil, err
	}
	node, err := s.acceptHeader(&block.Header)
	if err != nil {
		return nil, err
	}

	isPoS := inter.IsProofOfStake(block)
	posActive := s.p.NetworkUpgradeActive(node.Height(), params.UpgradePoS)
	switch {
	case isPoS && !posActive:
		s.invalidate(node)
		return nil, ruleError(ErrPoSBeforeActivation, fmt.Sprintf("proof-of-stake block %s at height %d before activation",
			hash, node.Height()))
	case !isPoS && posActive:
		s.invalidate(node)
		return nil, ruleError(ErrPoWAfterActivation, fmt.Sprintf("proof-of-work block %s at height %d after activation",
			hash, node.Height()))
	}

	if pos == nil {
		file, dataPos, err := s.blocks.WriteBlock(block)
		if err != nil {
			return nil, err
		}
		pos = &diskPos{file: file, dataPos: dataPos}
	}
	node.SetDiskPos(pos.file, pos.dataPos)
	node.RaiseValidity(chain.StatusValidTransactions)
	if isPoS {
		stake := block.Transactions[1].TxIn[0].PreviousOutPoint
		node.SetProofOfStake()
		node.SetNewStakeModifier(stake.Hash, stake.Index)
	}
	if err := s.blocks.PutIndex(node); err != nil {
		return nil, err
	}
	s.candidates[node] = struct{}{}
	return node, nil
}

// bestCandidate returns the valid candidate with the most work whose whole
// branch is stored. Candidates below a failed block are marked and dropped.
func (s *ChainState) bestCandidate() *chain.BlockIndex {
	var best *chain.BlockIndex
	for node := range s.candidates {
		if !node.IsValid(chain.StatusValidTransactions) {
			delete(s.candidates, node)
			continue
		}
		usable := true
		for cur := node; cur != nil && !s.active.Contains(cur); cur = cur.Prev() {
			if cur.Status()&chain.StatusFailedMask != 0 {
				node.MarkFailed(true)
				delete(s.candidates, node)
				usable = false
				break
			}
			if !cur.HaveData() {
				usable = false
				break
			}
		}
		if !usable {
			continue
		}
		if best == nil {
			best = node
			continue
		}
		switch node.ChainWork().Cmp(best.ChainWork()) {
		case 1:
			best = node
		case 0:
			if node.ID() < best.ID() {
				best = node
			}
		}
	}
	return best
}

// activateBestChain moves the active chain to the best candidate until no
// candidate has more work than the tip. The first rule violation met on the
// way is returned once the chain has settled.
func (s *ChainState) activateBestChain() error {
	var firstErr error
	for {
		tip := s.active.Tip()
		best := s.bestCandidate()
		if tip == nil || best == nil || !best.ChainWork().Gt(tip.ChainWork()) {
			break
		}
		if err := s.reorganize(best); err != nil {
			if !isRuleError(err) {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.pruneCandidates()
	return firstErr
}

// pruneCandidates drops candidates that cannot beat the tip.
func (s *ChainState) pruneCandidates() {
	tip := s.active.Tip()
	if tip == nil {
		return
	}
	work := tip.ChainWork()
	for node := range s.candidates {
		if node != tip && !node.ChainWork().Gt(work) {
			delete(s.candidates, node)
		}
	}
}

// reorganize disconnects the active chain down to the fork with target and
// connects target's branch. A block that breaks a rule is marked invalid
// along with its descendants and the chain stays at its parent.
func (s *ChainState) reorganize(target *chain.BlockIndex) error {
	fork := s.active.FindFork(target)
	if fork == nil {
		return fmt.Errorf("block %s does not connect to the active chain", target.Hash())
	}

	var attach []*chain.BlockIndex
	for node := target; node != fork; node = node.Prev() {
		attach = append(attach, node)
	}

	oldTip := s.active.Tip()
	var detached int
	for tip := oldTip; tip != fork; tip = s.active.Tip() {
		if err := s.disconnectTip(tip); err != nil {
			return fmt.Errorf("disconnect %s: %w", tip.Hash(), err)
		}
		detached++
	}
	if detached > 0 {
		s.metrics.Reorgs.Inc()
		s.log.Info("Chain reorganization", "fork", fork.Height(), "detached", detached,
			"attach", len(attach), "old", oldTip.Hash(), "new", target.Hash())
	}

	for i := len(attach) - 1; i >= 0; i-- {
		node := attach[i]
		if err := s.connectTip(node); err != nil {
			if isRuleError(err) {
				s.log.Warn("Invalid block", "height", node.Height(), "hash", node.Hash(), "err", err)
				s.invalidate(node)
			}
			return err
		}
	}
	return nil
}

// invalidate marks node failed and every known descendant failed-child.
func (s *ChainState) invalidate(node *chain.BlockIndex) {
	node.MarkFailed(false)
	delete(s.candidates, node)
	s.persistIndex(node)

	height := node.Height()
	s.index.ForEach(func(other *chain.BlockIndex) bool {
		if other.Height() > height && other.Ancestor(height) == node {
			other.MarkFailed(true)
			delete(s.candidates, other)
			s.persistIndex(other)
		}
		return true
	})
}

func (s *ChainState) persistIndex(node *chain.BlockIndex) {
	if err := s.blocks.PutIndex(node); err != nil {
		s.log.Error("Failed to persist block index", "hash", node.Hash(), "err", err)
	}
}

// connectTip applies node, a child of the tip, to the UTXO set.
func (s *ChainState) connectTip(node *chain.BlockIndex) error {
	block, err := s.blocks.ReadBlock(node)
	if err != nil {
		return err
	}
	height := node.Height()
	hash := node.Hash()

	view := s.coins.Child()
	undo := &coins.BlockUndo{}
	var valueIn, valueOut int64
	for i, tx := range block.Transactions {
		spent, err := view.SpendInputs(tx, i, undo)
		if err != nil {
			if errors.Is(err, coins.ErrMissingCoin) {
				return ruleError(ErrMissingTxOut, fmt.Sprintf("tx %d of block %s: %v", i, hash, err))
			}
			return err
		}

		coinStake := i == 1 && node.IsProofOfStake()
		var txIn int64
		for _, coin := range spent {
			if coin.IsReward() && height-coin.Height < s.p.CoinbaseMaturity {
				return ruleError(ErrImmatureSpend, fmt.Sprintf("tx %d of block %s spends a reward from height %d",
					i, hash, coin.Height))
			}
			if coinStake && !s.p.HasStakeMinDepth(height, coin.Height) {
				return ruleError(ErrStakeTooShallow, fmt.Sprintf("block %s stakes an output from height %d",
					hash, coin.Height))
			}
			txIn += coin.Value
		}
		txOut := inter.ValueOut(tx)
		if i > 0 && !coinStake && txOut > txIn {
			return ruleError(ErrSpendTooHigh, fmt.Sprintf("tx %d of block %s spends %d of %d",
				i, hash, txOut, txIn))
		}
		valueIn += txIn
		valueOut += txOut
		view.AddOutputs(tx, height)
	}

	minted := valueOut - valueIn
	allowed := s.rewards.GetBlockValue(height)
	if minted > allowed {
		return ruleError(ErrBadBlockValue, fmt.Sprintf("block %s at height %d mints %s, allowed %s",
			hash, height, rewards.FormatMoney(minted), rewards.FormatMoney(allowed)))
	}
	prevSupply, _ := node.Prev().MoneySupply()
	node.SetMoneySupply(prevSupply + minted)
	node.RaiseValidity(chain.StatusValidChain)

	if err := s.rewards.ConnectBlock(node, allowed); err != nil {
		return err
	}
	if err := s.commitConnect(node, block, view, undo); err != nil {
		s.rewards.DisconnectBlock(node)
		return err
	}

	s.active.SetTip(node)
	s.metrics.ChainHeight.Set(float64(height))
	s.metrics.BlocksConnected.Inc()
	s.log.Debug("Connected block", "height", height, "hash", hash, "minted", rewards.FormatMoney(minted))
	return nil
}

// commitConnect persists a validated block. Every write that can fail runs
// before the UTXO changes reach the root view, and a failed flush reverts
// them, so an I/O error leaves the set at the previous tip.
func (s *ChainState) commitConnect(node *chain.BlockIndex, block *wire.MsgBlock, view *coins.View, undo *coins.BlockUndo) error {
	if err := s.coins.WriteUndo(node.Hash(), undo); err != nil {
		return fmt.Errorf("write undo: %w", err)
	}
	file, dataPos, _ := node.DiskPos()
	if err := s.blocks.IndexTransactions(block, file, dataPos); err != nil {
		return fmt.Errorf("index transactions: %w", err)
	}
	node.SetHaveUndo()
	node.RaiseValidity(chain.StatusValidScripts)
	if err := s.blocks.PutIndex(node); err != nil {
		s.unindex(block)
		return err
	}

	view.SetBestBlock(node.Hash())
	if err := view.Commit(); err != nil {
		s.unindex(block)
		return err
	}
	if err := s.coins.Flush(); err != nil {
		view.Revert()
		s.unindex(block)
		return err
	}
	return nil
}

func (s *ChainState) unindex(block *wire.MsgBlock) {
	if err := s.blocks.UnindexTransactions(block); err != nil {
		s.log.Error("Failed to drop transaction index", "hash", block.BlockHash(), "err", err)
	}
}

// disconnectTip reverts node, the current tip.
func (s *ChainState) disconnectTip(node *chain.BlockIndex) error {
	prev := node.Prev()
	if prev == nil {
		return errors.New("cannot disconnect genesis")
	}
	block, err := s.blocks.ReadBlock(node)
	if err != nil {
		return err
	}
	undo, err := s.coins.ReadUndo(node.Hash())
	if err != nil {
		return err
	}

	view := s.coins.Child()
	if err := view.DisconnectBlock(block, undo); err != nil {
		return err
	}
	view.SetBestBlock(prev.Hash())
	if err := view.Commit(); err != nil {
		return err
	}
	if err := s.coins.Flush(); err != nil {
		view.Revert()
		return err
	}
	s.unindex(block)
	s.rewards.DisconnectBlock(node)

	s.active.SetTip(prev)
	s.candidates[node] = struct{}{}
	s.metrics.ChainHeight.Set(float64(prev.Height()))
	s.metrics.BlocksDisconnected.Inc()
	s.log.Debug("Disconnected block", "height", node.Height(), "hash", node.Hash())
	return nil
}
