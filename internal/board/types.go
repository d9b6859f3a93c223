package board

// Compact index types matching the runtime's storage encodings.
type (
	// BoardIndex identifies a board.
	BoardIndex uint16
	// ThreadIndex identifies a thread within a board.
	ThreadIndex uint16
	// PostIndex identifies a post slot within a thread.
	PostIndex uint16
	// ShardIndex identifies one shard of a board.
	ShardIndex uint8
	// BufferIndex identifies a slot in a board's post buffer.
	BufferIndex uint16
)

// Cid is a 256-bit content identifier for a post payload.
type Cid [32]byte

// AccountID identifies a post author or attester.
type AccountID [32]byte

// Metadata describes a board.
type Metadata struct {
	// Name of the board.
	Name string
	// Description is a short summary of the board's topic.
	Description string
	// Rules specific to the board.
	Rules string
	// NumberOfThreads the board currently has.
	NumberOfThreads ThreadIndex
	// PostsPerThread caps each thread's post slots.
	PostsPerThread PostIndex
}

// ThreadMetadata describes a thread slot within a board.
type ThreadMetadata struct {
	// BumpTime is the height the thread was created or last posted to.
	BumpTime uint64
	// PostCount is the number of active posts; it also names the
	// next free PostIndex.
	PostCount PostIndex
}

// PostData is the core content of a post.
type PostData struct {
	// Cid is the content identifier of the payload.
	Cid Cid
	// Author is the account that created the post.
	Author AccountID
	// CreatedAt is the height the post was created at.
	CreatedAt uint64
}

// BufferedPost is a post parked in the ring buffer while its shards
// await availability attestation.
type BufferedPost struct {
	// Data is the post content and metadata.
	Data PostData
	// Board is the board the post belongs to.
	Board BoardIndex
	// Thread is the thread within that board.
	Thread ThreadIndex
	// Shards is the number of shards the post was claimed with; it
	// fixes how many shard verdicts finalization must consult.
	Shards uint16
}

// Limits bounds the variable-length board fields.
type Limits struct {
	MaxNameLen  int
	MaxDescLen  int
	MaxRulesLen int
}

// DefaultLimits are the limits used when none are configured.
var DefaultLimits = Limits{
	MaxNameLen:  64,
	MaxDescLen:  512,
	MaxRulesLen: 2048,
}
