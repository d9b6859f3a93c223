package attestation

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"boardstate/internal/board"
	"boardstate/internal/logger"
	"boardstate/internal/storage"
)

// prefixRecord is the storage prefix for attestation records.
// a:<board u16><buffer u16><shard u8> -> encoded Record
var prefixRecord = []byte("a:")

// maxShards is the number of shards addressable by a ShardIndex.
const maxShards = 256

// lockStripes is the number of record mutex stripes.
const lockStripes = 64

// Params configures the attestation lifecycle for all boards.
type Params struct {
	// BufferCapacity is the number of ring-buffer slots per board.
	BufferCapacity uint16

	// AttesterSetSize is the fixed number of attester slots per record.
	AttesterSetSize int

	// VotingPeriod is the number of heights after a record's creation
	// during which commits and reveals are accepted.
	VotingPeriod uint64
}

// Controller owns the attestation lifecycle: it claims ring-buffer
// slots for new posts, resetting every shard's record atomically, and
// serves the commit/reveal entry points.
//
// Claims take the write lock so a slot reset is never interleaved
// with a commit; commit/reveal take the read lock plus a per-record
// stripe, so attesters on different records proceed in parallel and
// two calls touching the same record cannot lose updates.
type Controller struct {
	db     *storage.Storage
	params Params
	scheme Scheme
	policy Policy

	mu      sync.RWMutex
	stripes [lockStripes]sync.Mutex
}

// NewController creates a controller. A nil scheme selects
// DoubleBlake; a nil policy selects DefaultPolicy.
func NewController(db *storage.Storage, params Params, scheme Scheme, policy Policy) *Controller {
	if scheme == nil {
		scheme = DoubleBlake{}
	}

	return &Controller{
		db:     db,
		params: params,
		scheme: scheme,
		policy: policy,
	}
}

// Params returns the controller's configuration.
func (c *Controller) Params() Params {
	return c.params
}

// ClaimSlot advances the board's buffer head, writes the buffered
// post into the claimed slot, and resets the slot's attestation
// record for every shard to all-Pending at the current height.
//
// The head increment, the post, and all shard records go into one
// storage batch: either the post is fully admitted for attestation on
// every shard or nothing is written.
func (c *Controller) ClaimSlot(b board.BoardIndex, post board.BufferedPost, shardCount int, height uint64) (board.BufferIndex, error) {
	if shardCount <= 0 || shardCount > maxShards {
		return 0, fmt.Errorf("%w: shard count %d", ErrStorageBound, shardCount)
	}

	if c.params.AttesterSetSize <= 0 {
		return 0, fmt.Errorf("%w: attester set size %d", ErrStorageBound, c.params.AttesterSetSize)
	}

	if c.params.BufferCapacity == 0 {
		return 0, fmt.Errorf("%w: buffer capacity 0", ErrStorageBound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	headData, err := c.db.Get(board.HeadKey(b))
	if err != nil {
		return 0, err
	}

	head, err := board.DecodeHead(headData)
	if err != nil {
		return 0, err
	}

	// The head counter outlives BufferIndex on purpose: once the
	// index range is spent the board is done, not wrapped.
	if head > math.MaxUint16 {
		return 0, fmt.Errorf("%w: board %d", ErrCounterExhausted, b)
	}

	slot := board.BufferIndex(head % uint32(c.params.BufferCapacity))

	post.Shards = uint16(shardCount)

	pairs := make([]storage.KeyValue, 0, 2+shardCount)
	pairs = append(pairs,
		storage.KeyValue{Key: board.HeadKey(b), Value: board.EncodeHead(head + 1)},
		storage.KeyValue{Key: board.BufferedPostKey(b, slot), Value: board.EncodeBufferedPost(post)},
	)

	fresh := NewRecord(height, c.params.AttesterSetSize).Encode()
	for shard := 0; shard < shardCount; shard++ {
		pairs = append(pairs, storage.KeyValue{
			Key:   recordKey(b, slot, board.ShardIndex(shard)),
			Value: fresh,
		})
	}

	// A previous occupant may have been claimed with more shards;
	// its records above shardCount must not survive the reset.
	deletes := make([][]byte, 0, maxShards-shardCount)
	for shard := shardCount; shard < maxShards; shard++ {
		deletes = append(deletes, recordKey(b, slot, board.ShardIndex(shard)))
	}

	if err := c.db.Batch(pairs, deletes); err != nil {
		return 0, err
	}

	logger.Debug("slot claimed",
		"board", b,
		"slot", slot,
		"head", head,
		"shards", shardCount,
		"height", height,
	)

	return slot, nil
}

// SubmitFirstCommit stores an attester's first-round commitment.
func (c *Controller) SubmitFirstCommit(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex, attester int, h1 Hash, height uint64) error {
	return c.updateRecord(b, slot, shard, height, func(rec *Record) error {
		return rec.ApplyFirstCommit(attester, h1)
	})
}

// SubmitSecondCommit stores an attester's second-round commitment.
func (c *Controller) SubmitSecondCommit(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex, attester int, h2 Hash, height uint64) error {
	return c.updateRecord(b, slot, shard, height, func(rec *Record) error {
		return rec.ApplySecondCommit(attester, h2)
	})
}

// Reveal discloses an attester's vote and salt, verifies them against
// the stored commitments, and returns the recorded result. A hash
// mismatch records Invalid; it is never an error.
func (c *Controller) Reveal(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex, attester int, vote Vote, salt Salt, height uint64) (RevealedVote, error) {
	var result RevealedVote

	err := c.updateRecord(b, slot, shard, height, func(rec *Record) error {
		var err error
		result, err = rec.ApplyReveal(attester, vote, salt, c.scheme)
		return err
	})
	if err != nil {
		return Invalid, err
	}

	logger.Debug("vote revealed",
		"board", b,
		"slot", slot,
		"shard", shard,
		"attester", attester,
		"result", result,
	)

	return result, nil
}

// Record loads a shard's attestation record.
func (c *Controller) Record(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex) (*Record, error) {
	data, err := c.db.Get(recordKey(b, slot, shard))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrNoRecord, b, slot, shard)
	}

	return DecodeRecord(data)
}

// Outcome derives a shard's public verdict. It refuses to answer
// while the voting period is still open, since slots not yet revealed
// only become abstentions once the deadline passes.
func (c *Controller) Outcome(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex, height uint64) (Outcome, error) {
	rec, err := c.Record(b, slot, shard)
	if err != nil {
		return Indeterminate, err
	}

	if height <= rec.CreatedAt+c.params.VotingPeriod {
		return Indeterminate, fmt.Errorf("%w: until height %d", ErrVotingPeriodOpen, rec.CreatedAt+c.params.VotingPeriod)
	}

	return Derive(rec, c.policy), nil
}

// updateRecord runs a read-modify-write cycle on one record under the
// record's stripe lock, enforcing the voting-period deadline before
// any mutation. On any error the stored record is untouched.
func (c *Controller) updateRecord(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex, height uint64, apply func(*Record) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := recordKey(b, slot, shard)

	stripe := &c.stripes[stripeIndex(key)]
	stripe.Lock()
	defer stripe.Unlock()

	data, err := c.db.Get(key)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoRecord, b, slot, shard)
	}

	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}

	if height > rec.CreatedAt+c.params.VotingPeriod {
		return fmt.Errorf("%w: height %d, window closed at %d",
			ErrVotingPeriodElapsed, height, rec.CreatedAt+c.params.VotingPeriod)
	}

	if err := apply(rec); err != nil {
		return err
	}

	return c.db.Set(key, rec.Encode())
}

// recordKey builds the storage key for a shard's attestation record.
func recordKey(b board.BoardIndex, slot board.BufferIndex, shard board.ShardIndex) []byte {
	key := make([]byte, len(prefixRecord), len(prefixRecord)+5)
	copy(key, prefixRecord)
	key = binary.BigEndian.AppendUint16(key, uint16(b))
	key = binary.BigEndian.AppendUint16(key, uint16(slot))

	return append(key, byte(shard))
}

// stripeIndex hashes a record key onto a lock stripe (FNV-1a).
func stripeIndex(key []byte) int {
	h := uint32(2166136261)
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}

	return int(h % lockStripes)
}
