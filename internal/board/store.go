package board

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"boardstate/internal/storage"
)

// Key prefixes for the board keyspace.
var (
	prefixBoard     = []byte("b:") // b:<board> -> metadata
	prefixThread    = []byte("t:") // t:<board><thread> -> thread metadata
	prefixPost      = []byte("p:") // p:<board><thread><post> -> post data
	prefixAttesters = []byte("s:") // s:<board><shard> -> attester set
	prefixHead      = []byte("h:") // h:<board> -> buffer head counter
	prefixBuffered  = []byte("q:") // q:<board><buffer> -> buffered post
)

var (
	// ErrNotFound is returned when a board, thread, or post does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a board or thread that already exists.
	ErrExists = errors.New("already exists")

	// ErrLimitExceeded is returned when a board field exceeds its configured bound.
	ErrLimitExceeded = errors.New("field length limit exceeded")

	// ErrThreadFull is returned when a thread has no free post slots.
	ErrThreadFull = errors.New("thread post slots exhausted")

	// ErrBoardFull is returned when a board has consumed the full
	// range of its thread index type.
	ErrBoardFull = errors.New("board thread slots exhausted")
)

// Store owns the board keyspace: boards, threads, posts, attester
// sets, and the ring-buffer bookkeeping shared with the attestation
// controller.
type Store struct {
	db     *storage.Storage
	limits Limits
}

// NewStore creates a board store over the given storage.
func NewStore(db *storage.Storage, limits Limits) *Store {
	return &Store{db: db, limits: limits}
}

// CreateBoard validates and stores metadata for a new board.
func (s *Store) CreateBoard(idx BoardIndex, m Metadata) error {
	if len(m.Name) > s.limits.MaxNameLen ||
		len(m.Description) > s.limits.MaxDescLen ||
		len(m.Rules) > s.limits.MaxRulesLen {
		return fmt.Errorf("%w: board %d", ErrLimitExceeded, idx)
	}

	key := BoardKey(idx)

	existing, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: board %d", ErrExists, idx)
	}

	m.NumberOfThreads = 0

	return s.db.Set(key, EncodeMetadata(m))
}

// Board retrieves a board's metadata.
func (s *Store) Board(idx BoardIndex) (Metadata, error) {
	data, err := s.db.Get(BoardKey(idx))
	if err != nil {
		return Metadata{}, err
	}
	if data == nil {
		return Metadata{}, fmt.Errorf("%w: board %d", ErrNotFound, idx)
	}

	return DecodeMetadata(data)
}

// CreateThread opens the next thread slot on a board and bumps the
// board's thread count.
func (s *Store) CreateThread(idx BoardIndex, height uint64) (ThreadIndex, error) {
	meta, err := s.Board(idx)
	if err != nil {
		return 0, err
	}

	// A wrap here would silently overwrite thread 0.
	if meta.NumberOfThreads == math.MaxUint16 {
		return 0, fmt.Errorf("%w: board %d", ErrBoardFull, idx)
	}

	thread := meta.NumberOfThreads
	meta.NumberOfThreads++

	pairs := []storage.KeyValue{
		{Key: BoardKey(idx), Value: EncodeMetadata(meta)},
		{Key: ThreadKey(idx, thread), Value: EncodeThread(ThreadMetadata{BumpTime: height})},
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return 0, err
	}

	return thread, nil
}

// Thread retrieves a thread's metadata.
func (s *Store) Thread(idx BoardIndex, thread ThreadIndex) (ThreadMetadata, error) {
	data, err := s.db.Get(ThreadKey(idx, thread))
	if err != nil {
		return ThreadMetadata{}, err
	}
	if data == nil {
		return ThreadMetadata{}, fmt.Errorf("%w: thread %d/%d", ErrNotFound, idx, thread)
	}

	return DecodeThread(data)
}

// AddPost stores a post in the next free slot of a thread and bumps
// the thread. The post and thread update are written atomically.
func (s *Store) AddPost(idx BoardIndex, thread ThreadIndex, post PostData) (PostIndex, error) {
	meta, err := s.Board(idx)
	if err != nil {
		return 0, err
	}

	tm, err := s.Thread(idx, thread)
	if err != nil {
		return 0, err
	}

	if tm.PostCount >= meta.PostsPerThread {
		return 0, fmt.Errorf("%w: thread %d/%d", ErrThreadFull, idx, thread)
	}

	slot := tm.PostCount
	tm.PostCount++
	tm.BumpTime = post.CreatedAt

	pairs := []storage.KeyValue{
		{Key: PostKey(idx, thread, slot), Value: EncodePost(post)},
		{Key: ThreadKey(idx, thread), Value: EncodeThread(tm)},
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return 0, err
	}

	return slot, nil
}

// Post retrieves a post.
func (s *Store) Post(idx BoardIndex, thread ThreadIndex, post PostIndex) (PostData, error) {
	data, err := s.db.Get(PostKey(idx, thread, post))
	if err != nil {
		return PostData{}, err
	}
	if data == nil {
		return PostData{}, fmt.Errorf("%w: post %d/%d/%d", ErrNotFound, idx, thread, post)
	}

	return DecodePost(data)
}

// SetAttesters stores the attester set for one shard of a board.
func (s *Store) SetAttesters(idx BoardIndex, shard ShardIndex, set []AccountID) error {
	return s.db.Set(AttestersKey(idx, shard), EncodeAttesters(set))
}

// Attesters retrieves the attester set for one shard of a board.
// Returns an empty set if none was configured.
func (s *Store) Attesters(idx BoardIndex, shard ShardIndex) ([]AccountID, error) {
	data, err := s.db.Get(AttestersKey(idx, shard))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	return DecodeAttesters(data)
}

// BufferHead reads a board's running buffer head counter.
func (s *Store) BufferHead(idx BoardIndex) (uint32, error) {
	data, err := s.db.Get(HeadKey(idx))
	if err != nil {
		return 0, err
	}

	return DecodeHead(data)
}

// BufferedPost retrieves the post currently occupying a buffer slot.
func (s *Store) BufferedPost(idx BoardIndex, slot BufferIndex) (BufferedPost, error) {
	data, err := s.db.Get(BufferedPostKey(idx, slot))
	if err != nil {
		return BufferedPost{}, err
	}
	if data == nil {
		return BufferedPost{}, fmt.Errorf("%w: buffer slot %d/%d", ErrNotFound, idx, slot)
	}

	return DecodeBufferedPost(data)
}

// PromoteBuffered moves the post occupying a buffer slot into its
// thread and consumes the slot. The post, the thread bump, and the
// buffer delete land in one atomic write, so a promoted slot reads
// back as ErrNotFound and cannot be promoted twice.
func (s *Store) PromoteBuffered(idx BoardIndex, slot BufferIndex) (PostIndex, error) {
	buffered, err := s.BufferedPost(idx, slot)
	if err != nil {
		return 0, err
	}

	meta, err := s.Board(buffered.Board)
	if err != nil {
		return 0, err
	}

	tm, err := s.Thread(buffered.Board, buffered.Thread)
	if err != nil {
		return 0, err
	}

	if tm.PostCount >= meta.PostsPerThread {
		return 0, fmt.Errorf("%w: thread %d/%d", ErrThreadFull, buffered.Board, buffered.Thread)
	}

	post := tm.PostCount
	tm.PostCount++
	tm.BumpTime = buffered.Data.CreatedAt

	sets := []storage.KeyValue{
		{Key: PostKey(buffered.Board, buffered.Thread, post), Value: EncodePost(buffered.Data)},
		{Key: ThreadKey(buffered.Board, buffered.Thread), Value: EncodeThread(tm)},
	}

	if err := s.db.Batch(sets, [][]byte{BufferedPostKey(idx, slot)}); err != nil {
		return 0, err
	}

	return post, nil
}

// BoardKey builds the storage key for board metadata.
func BoardKey(idx BoardIndex) []byte {
	key := make([]byte, len(prefixBoard), len(prefixBoard)+2)
	copy(key, prefixBoard)

	return binary.BigEndian.AppendUint16(key, uint16(idx))
}

// ThreadKey builds the storage key for thread metadata.
func ThreadKey(idx BoardIndex, thread ThreadIndex) []byte {
	key := make([]byte, len(prefixThread), len(prefixThread)+4)
	copy(key, prefixThread)
	key = binary.BigEndian.AppendUint16(key, uint16(idx))

	return binary.BigEndian.AppendUint16(key, uint16(thread))
}

// PostKey builds the storage key for a post slot.
func PostKey(idx BoardIndex, thread ThreadIndex, post PostIndex) []byte {
	key := make([]byte, len(prefixPost), len(prefixPost)+6)
	copy(key, prefixPost)
	key = binary.BigEndian.AppendUint16(key, uint16(idx))
	key = binary.BigEndian.AppendUint16(key, uint16(thread))

	return binary.BigEndian.AppendUint16(key, uint16(post))
}

// AttestersKey builds the storage key for a shard's attester set.
func AttestersKey(idx BoardIndex, shard ShardIndex) []byte {
	key := make([]byte, len(prefixAttesters), len(prefixAttesters)+3)
	copy(key, prefixAttesters)
	key = binary.BigEndian.AppendUint16(key, uint16(idx))

	return append(key, byte(shard))
}

// HeadKey builds the storage key for a board's buffer head counter.
func HeadKey(idx BoardIndex) []byte {
	key := make([]byte, len(prefixHead), len(prefixHead)+2)
	copy(key, prefixHead)

	return binary.BigEndian.AppendUint16(key, uint16(idx))
}

// BufferedPostKey builds the storage key for a buffer slot's post.
func BufferedPostKey(idx BoardIndex, slot BufferIndex) []byte {
	key := make([]byte, len(prefixBuffered), len(prefixBuffered)+4)
	copy(key, prefixBuffered)
	key = binary.BigEndian.AppendUint16(key, uint16(idx))

	return binary.BigEndian.AppendUint16(key, uint16(slot))
}
