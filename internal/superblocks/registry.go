package superblocks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"

	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
	"github.com/KBriverun/sysethereum-contracts/pkg/db"
	"github.com/KBriverun/sysethereum-contracts/pkg/db/pebble"
	"github.com/KBriverun/sysethereum-contracts/pkg/log"
)

// Key prefixes for the registry's column families inside the shared store.
const (
	prefixSuperblock byte = 's' // prefixSuperblock ++ id -> rlp(Superblock)
	prefixHeight     byte = 'h' // prefixHeight ++ height ++ id -> nil
	prefixBest       byte = 'b' // prefixBest -> best superblock id
)

// Registry stores superblocks and enforces their status transitions. All
// mutations except Bootstrap are restricted to the claim manager address
// registered through SetManager.
type Registry struct {
	store  db.KVStore
	params *netparams.Params
	logger zerolog.Logger

	mu      sync.RWMutex
	manager common.Address
	hasMgr  bool
	best    common.Hash
}

// New creates a registry on top of store. The best-superblock pointer is
// recovered from disk when present.
func New(store db.KVStore, params *netparams.Params) (*Registry, error) {
	r := &Registry{
		store:  store,
		params: params,
		logger: log.Superblocks,
	}
	raw, err := store.Get(bestKey())
	switch {
	case err == nil:
		r.best = common.BytesToHash(raw)
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return nil, fmt.Errorf("loading best superblock: %w", err)
	}
	return r, nil
}

// SetManager registers the claim manager address allowed to mutate the
// registry. It can be called once.
func (r *Registry) SetManager(addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasMgr {
		return ErrManagerSet
	}
	r.manager = addr
	r.hasMgr = true
	return nil
}

// Bootstrap seeds the registry with an already approved superblock and makes
// it the chain tip. It is the only way to create a superblock without a
// parent and can run once.
func (r *Registry) Bootstrap(blocksRoot common.Hash, accWork *big.Int, timestamp uint32, lastHash common.Hash, lastBits uint32, parentID common.Hash) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.best != (common.Hash{}) {
		return common.Hash{}, ErrAlreadyBootstrapped
	}
	sb := &Superblock{
		BlocksRoot:      blocksRoot,
		AccumulatedWork: accWorkOrZero(accWork),
		Timestamp:       timestamp,
		LastHash:        lastHash,
		LastBits:        lastBits,
		ParentID:        parentID,
		Status:          StatusApproved,
		Height:          1,
	}
	id := sb.ID()
	if err := r.writeSuperblock(id, sb, true); err != nil {
		return common.Hash{}, err
	}
	if err := r.store.Put(bestKey(), id[:]); err != nil {
		return common.Hash{}, fmt.Errorf("writing best pointer: %w", err)
	}
	r.best = id
	r.logger.Info().
		Str("superblock", id.Hex()).
		Uint32("height", sb.Height).
		Msg("registry bootstrapped")
	return id, nil
}

// Propose registers a new superblock extending parentID on behalf of
// submitter. The parent must be approved or semi-approved. The derived id is
// returned; proposing an id that already exists fails with ErrExists.
func (r *Registry) Propose(caller common.Address, blocksRoot common.Hash, accWork *big.Int, timestamp uint32, lastHash common.Hash, lastBits uint32, parentID common.Hash, submitter common.Address) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return common.Hash{}, err
	}
	parent, err := r.readSuperblock(parentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.Hash{}, ErrParentUnknown
		}
		return common.Hash{}, err
	}
	if parent.Status != StatusApproved && parent.Status != StatusSemiApproved {
		return common.Hash{}, fmt.Errorf("%w: parent is %s", ErrParentStatus, parent.Status)
	}
	sb := &Superblock{
		BlocksRoot:      blocksRoot,
		AccumulatedWork: accWorkOrZero(accWork),
		Timestamp:       timestamp,
		LastHash:        lastHash,
		LastBits:        lastBits,
		ParentID:        parentID,
		Submitter:       submitter,
		Status:          StatusNew,
		Height:          parent.Height + 1,
	}
	id := sb.ID()
	if _, err := r.readSuperblock(id); err == nil {
		return common.Hash{}, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return common.Hash{}, err
	}
	if err := r.writeSuperblock(id, sb, true); err != nil {
		return common.Hash{}, err
	}
	r.logger.Info().
		Str("superblock", id.Hex()).
		Str("submitter", submitter.Hex()).
		Uint32("height", sb.Height).
		Msg("superblock proposed")
	return id, nil
}

// Challenge marks a superblock as disputed. Only new or already disputed
// superblocks can be challenged.
func (r *Registry) Challenge(caller common.Address, id common.Hash) error {
	return r.transition(caller, id, StatusInBattle, "superblock challenged",
		StatusNew, StatusInBattle)
}

// SemiApprove settles a superblock whose challenges were all defeated, or
// one that outlived its challenge window undisputed.
func (r *Registry) SemiApprove(caller common.Address, id common.Hash) error {
	return r.transition(caller, id, StatusSemiApproved, "superblock semi-approved",
		StatusNew, StatusInBattle)
}

// Invalidate settles a superblock against the submitter.
func (r *Registry) Invalidate(caller common.Address, id common.Hash) error {
	return r.transition(caller, id, StatusInvalid, "superblock invalidated",
		StatusNew, StatusInBattle, StatusSemiApproved)
}

// Confirm promotes a semi-approved superblock to approved once its parent is
// approved, and advances the best pointer when the confirmed superblock
// carries more accumulated work.
func (r *Registry) Confirm(caller common.Address, id common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	sb, err := r.readSuperblock(id)
	if err != nil {
		return err
	}
	if sb.Status != StatusSemiApproved {
		return fmt.Errorf("%w: %s", ErrBadStatus, sb.Status)
	}
	parent, err := r.readSuperblock(sb.ParentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrParentUnknown
		}
		return err
	}
	if parent.Status != StatusApproved {
		return fmt.Errorf("%w: parent is %s", ErrParentStatus, parent.Status)
	}
	sb.Status = StatusApproved
	if err := r.writeSuperblock(id, sb, false); err != nil {
		return err
	}
	if err := r.advanceBest(id, sb); err != nil {
		return err
	}
	r.logger.Info().
		Str("superblock", id.Hex()).
		Uint32("height", sb.Height).
		Msg("superblock confirmed")
	return nil
}

// Superblock returns the stored record for id.
func (r *Registry) Superblock(id common.Hash) (*Superblock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readSuperblock(id)
}

// Best returns the id of the heaviest approved superblock.
func (r *Registry) Best() common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.best
}

// AtHeight lists the ids of all superblocks registered at the given chain
// height, competing forks included.
func (r *Registry) AtHeight(height uint32) ([]common.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := heightPrefix(height)
	end := heightPrefix(height + 1)
	iter, err := r.store.NewIterator(start, end)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var ids []common.Hash
	for iter.Next() {
		key := iter.Key()
		if len(key) != 1+4+common.HashLength {
			return nil, fmt.Errorf("malformed height index key of %d bytes", len(key))
		}
		ids = append(ids, common.BytesToHash(key[5:]))
	}
	return ids, nil
}

// transition is the shared status-update path: authorize, check the current
// status against the allowed set, persist the new status.
func (r *Registry) transition(caller common.Address, id common.Hash, to Status, msg string, from ...Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorize(caller); err != nil {
		return err
	}
	sb, err := r.readSuperblock(id)
	if err != nil {
		return err
	}
	allowed := false
	for _, s := range from {
		if sb.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrBadStatus, sb.Status)
	}
	sb.Status = to
	if err := r.writeSuperblock(id, sb, false); err != nil {
		return err
	}
	r.logger.Info().
		Str("superblock", id.Hex()).
		Str("status", to.String()).
		Msg(msg)
	return nil
}

func (r *Registry) authorize(caller common.Address) error {
	if !r.hasMgr || caller != r.manager {
		return ErrUnauthorized
	}
	return nil
}

// advanceBest moves the best pointer to id when it carries strictly more
// accumulated work than the current tip.
func (r *Registry) advanceBest(id common.Hash, sb *Superblock) error {
	if r.best != (common.Hash{}) {
		tip, err := r.readSuperblock(r.best)
		if err != nil {
			return err
		}
		if sb.AccumulatedWork.Cmp(tip.AccumulatedWork) <= 0 {
			return nil
		}
	}
	if err := r.store.Put(bestKey(), id[:]); err != nil {
		return fmt.Errorf("writing best pointer: %w", err)
	}
	r.best = id
	r.logger.Info().
		Str("superblock", id.Hex()).
		Uint32("height", sb.Height).
		Msg("new best superblock")
	return nil
}

func (r *Registry) readSuperblock(id common.Hash) (*Superblock, error) {
	raw, err := r.store.Get(superblockKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading superblock %s: %w", id.Hex(), err)
	}
	sb := &Superblock{}
	if err := rlp.DecodeBytes(raw, sb); err != nil {
		return nil, fmt.Errorf("decoding superblock %s: %w", id.Hex(), err)
	}
	return sb, nil
}

// writeSuperblock persists the record, adding the height index entry when
// the superblock is first registered.
func (r *Registry) writeSuperblock(id common.Hash, sb *Superblock, index bool) error {
	raw, err := rlp.EncodeToBytes(sb)
	if err != nil {
		return fmt.Errorf("encoding superblock %s: %w", id.Hex(), err)
	}
	if !index {
		return r.store.Put(superblockKey(id), raw)
	}
	batch := r.store.NewBatch()
	defer batch.Close()
	if err := batch.Put(superblockKey(id), raw); err != nil {
		return err
	}
	if err := batch.Put(heightKey(sb.Height, id), nil); err != nil {
		return err
	}
	return batch.Commit()
}

func accWorkOrZero(work *big.Int) *big.Int {
	if work == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(work)
}

func superblockKey(id common.Hash) []byte {
	return append([]byte{prefixSuperblock}, id[:]...)
}

func heightPrefix(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefixHeight
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}

func heightKey(height uint32, id common.Hash) []byte {
	return append(heightPrefix(height), id[:]...)
}

func bestKey() []byte {
	return []byte{prefixBest}
}
