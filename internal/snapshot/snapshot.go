// Package snapshot exports and restores the full board keyspace as a
// single compressed blob, for backup and for seeding replicas.
package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"boardstate/internal/storage"
)

const (
	// version is the current snapshot format version.
	version = 1

	// restoreBatchSize is the number of pairs per restore batch.
	restoreBatchSize = 1024

	// checksumSize is the size of the trailing blake3 checksum.
	checksumSize = 32
)

// Create serializes every key-value pair in storage into a
// length-prefixed payload, appends a blake3 checksum, and compresses
// the whole thing with zstd.
//
// Layout (before compression):
//
//	u32 version | u32 entry count |
//	per entry: u32 key len, key, u32 value len, value |
//	blake3-256 checksum of everything above
func Create(db *storage.Storage) ([]byte, error) {
	var entries uint32

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], version)

	err := db.Iterate(func(key, value []byte) error {
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(key)))
		payload = append(payload, key...)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(value)))
		payload = append(payload, value...)
		entries++

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect entries: %w", err)
	}

	binary.LittleEndian.PutUint32(payload[4:8], entries)

	sum := blake3.Sum256(payload)
	payload = append(payload, sum[:]...)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(payload, nil), nil
}

// Restore decompresses and verifies a snapshot and writes its entries
// back into storage in atomic batches. Existing keys are overwritten;
// keys absent from the snapshot are left alone.
func Restore(db *storage.Storage, data []byte) error {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	payload, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}

	if len(payload) < 8+checksumSize {
		return fmt.Errorf("snapshot too short: %d bytes", len(payload))
	}

	body := payload[:len(payload)-checksumSize]
	sum := blake3.Sum256(body)
	var stored [checksumSize]byte
	copy(stored[:], payload[len(payload)-checksumSize:])

	if sum != stored {
		return fmt.Errorf("snapshot checksum mismatch")
	}

	if v := binary.LittleEndian.Uint32(body[0:4]); v != version {
		return fmt.Errorf("unsupported snapshot version %d", v)
	}

	entries := binary.LittleEndian.Uint32(body[4:8])

	batch := make([]storage.KeyValue, 0, restoreBatchSize)
	off := 8

	for i := uint32(0); i < entries; i++ {
		key, next, err := readChunk(body, off)
		if err != nil {
			return fmt.Errorf("entry %d key: %w", i, err)
		}

		value, after, err := readChunk(body, next)
		if err != nil {
			return fmt.Errorf("entry %d value: %w", i, err)
		}

		off = after
		batch = append(batch, storage.KeyValue{Key: key, Value: value})

		if len(batch) == restoreBatchSize {
			if err := db.SetBatch(batch); err != nil {
				return fmt.Errorf("restore batch: %w", err)
			}
			batch = batch[:0]
		}
	}

	if off != len(body) {
		return fmt.Errorf("snapshot has %d trailing bytes", len(body)-off)
	}

	if len(batch) > 0 {
		if err := db.SetBatch(batch); err != nil {
			return fmt.Errorf("restore batch: %w", err)
		}
	}

	return nil
}

// readChunk reads one u32-length-prefixed chunk starting at off and
// returns a copy plus the next offset.
func readChunk(body []byte, off int) ([]byte, int, error) {
	if off+4 > len(body) {
		return nil, 0, fmt.Errorf("truncated length prefix")
	}

	n := int(binary.LittleEndian.Uint32(body[off : off+4]))
	off += 4

	if off+n > len(body) {
		return nil, 0, fmt.Errorf("truncated chunk: want %d bytes, have %d", n, len(body)-off)
	}

	chunk := make([]byte, n)
	copy(chunk, body[off:off+n])

	return chunk, off + n, nil
}
