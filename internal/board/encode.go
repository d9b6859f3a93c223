package board

import (
	"encoding/binary"
	"fmt"
)

// Storage encodings. Fixed-width integers are big-endian so keys sort
// numerically; strings carry a u32 length prefix.

// EncodeMetadata serializes board metadata.
func EncodeMetadata(m Metadata) []byte {
	buf := make([]byte, 0, 4+len(m.Name)+4+len(m.Description)+4+len(m.Rules)+4)
	buf = appendString(buf, m.Name)
	buf = appendString(buf, m.Description)
	buf = appendString(buf, m.Rules)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.NumberOfThreads))
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.PostsPerThread))

	return buf
}

// DecodeMetadata parses board metadata.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	var err error

	m.Name, data, err = readString(data)
	if err != nil {
		return m, fmt.Errorf("name: %w", err)
	}

	m.Description, data, err = readString(data)
	if err != nil {
		return m, fmt.Errorf("description: %w", err)
	}

	m.Rules, data, err = readString(data)
	if err != nil {
		return m, fmt.Errorf("rules: %w", err)
	}

	if len(data) != 4 {
		return m, fmt.Errorf("metadata tail is %d bytes, want 4", len(data))
	}

	m.NumberOfThreads = ThreadIndex(binary.BigEndian.Uint16(data[0:2]))
	m.PostsPerThread = PostIndex(binary.BigEndian.Uint16(data[2:4]))

	return m, nil
}

// EncodeThread serializes thread metadata.
func EncodeThread(t ThreadMetadata) []byte {
	buf := make([]byte, 10)
	binary.BigEndian.PutUint64(buf[0:8], t.BumpTime)
	binary.BigEndian.PutUint16(buf[8:10], uint16(t.PostCount))

	return buf
}

// DecodeThread parses thread metadata.
func DecodeThread(data []byte) (ThreadMetadata, error) {
	if len(data) != 10 {
		return ThreadMetadata{}, fmt.Errorf("thread metadata is %d bytes, want 10", len(data))
	}

	return ThreadMetadata{
		BumpTime:  binary.BigEndian.Uint64(data[0:8]),
		PostCount: PostIndex(binary.BigEndian.Uint16(data[8:10])),
	}, nil
}

// EncodePost serializes post data.
func EncodePost(p PostData) []byte {
	buf := make([]byte, 0, 32+32+8)
	buf = append(buf, p.Cid[:]...)
	buf = append(buf, p.Author[:]...)
	buf = binary.BigEndian.AppendUint64(buf, p.CreatedAt)

	return buf
}

// DecodePost parses post data.
func DecodePost(data []byte) (PostData, error) {
	if len(data) != 72 {
		return PostData{}, fmt.Errorf("post data is %d bytes, want 72", len(data))
	}

	var p PostData
	copy(p.Cid[:], data[0:32])
	copy(p.Author[:], data[32:64])
	p.CreatedAt = binary.BigEndian.Uint64(data[64:72])

	return p, nil
}

// EncodeBufferedPost serializes a buffered post.
func EncodeBufferedPost(p BufferedPost) []byte {
	buf := make([]byte, 0, 72+6)
	buf = append(buf, EncodePost(p.Data)...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Board))
	buf = binary.BigEndian.AppendUint16(buf, uint16(p.Thread))
	buf = binary.BigEndian.AppendUint16(buf, p.Shards)

	return buf
}

// DecodeBufferedPost parses a buffered post.
func DecodeBufferedPost(data []byte) (BufferedPost, error) {
	if len(data) != 78 {
		return BufferedPost{}, fmt.Errorf("buffered post is %d bytes, want 78", len(data))
	}

	post, err := DecodePost(data[0:72])
	if err != nil {
		return BufferedPost{}, err
	}

	return BufferedPost{
		Data:   post,
		Board:  BoardIndex(binary.BigEndian.Uint16(data[72:74])),
		Thread: ThreadIndex(binary.BigEndian.Uint16(data[74:76])),
		Shards: binary.BigEndian.Uint16(data[76:78]),
	}, nil
}

// EncodeAttesters serializes an attester set.
func EncodeAttesters(set []AccountID) []byte {
	buf := make([]byte, 0, 2+len(set)*32)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(set)))
	for _, a := range set {
		buf = append(buf, a[:]...)
	}

	return buf
}

// DecodeAttesters parses an attester set.
func DecodeAttesters(data []byte) ([]AccountID, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attester set too short: %d bytes", len(data))
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) != 2+count*32 {
		return nil, fmt.Errorf("attester set is %d bytes, want %d", len(data), 2+count*32)
	}

	set := make([]AccountID, count)
	for i := range set {
		copy(set[i][:], data[2+i*32:2+(i+1)*32])
	}

	return set, nil
}

// EncodeHead serializes a board's buffer head counter. The counter is
// kept wider than BufferIndex so exhaustion of the index range is
// detectable instead of silently wrapping.
func EncodeHead(head uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, head)

	return buf
}

// DecodeHead parses a buffer head counter. A missing value decodes as
// zero.
func DecodeHead(data []byte) (uint32, error) {
	if data == nil {
		return 0, nil
	}

	if len(data) != 4 {
		return 0, fmt.Errorf("buffer head is %d bytes, want 4", len(data))
	}

	return binary.BigEndian.Uint32(data), nil
}

// appendString appends a u32 length prefix and the string bytes.
func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// readString consumes a length-prefixed string and returns the rest.
func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("truncated length prefix")
	}

	n := int(binary.BigEndian.Uint32(data[0:4]))
	if len(data) < 4+n {
		return "", nil, fmt.Errorf("truncated string: want %d bytes, have %d", n, len(data)-4)
	}

	return string(data[4 : 4+n]), data[4+n:], nil
}
