// Package record implements the on-disk framing for the single unit the
// segment log ever stores: a Set or Remove command. Every record is a
// length-prefixed, CRC-protected byte run so that a reader can validate it
// independently of the writer that produced it and so that recovery can
// tell a genuinely corrupt record apart from an in-flight write that never
// finished landing on disk.
package record

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Kind identifies which command a record encodes.
type Kind byte

const (
	// KindSet marks a record that assigns a value to a key.
	KindSet Kind = 1
	// KindRemove marks a tombstone: the key is no longer live.
	KindRemove Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "Set"
	case KindRemove:
		return "Remove"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// HeaderLen is the number of fixed-size bytes preceding the key and value:
// crc32 (4) + kind (1) + key_len (4) + value_len (4).
const HeaderLen = 4 + 1 + 4 + 4

// MaxKeyLen is the largest key DecodeAt accepts (64 KiB). Encode does not
// check it; callers validate key length before encoding.
const MaxKeyLen = 64 * 1024

// MaxValueLen is the largest value DecodeAt accepts (4 MiB). Encode does not
// check it; callers validate value length before encoding.
const MaxValueLen = 4 * 1024 * 1024

// Command is a single Set or Remove command, decoded or awaiting encoding.
// Value is nil for a Remove command.
type Command struct {
	Kind  Kind
	Key   []byte
	Value []byte
}

// ErrCorrupt indicates the record's CRC does not match its payload.
type ErrCorrupt struct {
	Offset int64
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("record: crc mismatch at offset %d", e.Offset)
}

// ErrTruncated indicates fewer bytes remain in the segment than the record
// declares. During recovery this is treated as an in-flight write that never
// completed and is discarded, not a fatal error.
type ErrTruncated struct {
	Offset int64
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("record: truncated record at offset %d", e.Offset)
}

// ErrInvalidKind indicates the kind byte does not match any known command,
// or that the header declares a key or value length above MaxKeyLen or
// MaxValueLen.
type ErrInvalidKind struct {
	Kind   byte
	Offset int64
}

func (e *ErrInvalidKind) Error() string {
	return fmt.Sprintf("record: invalid kind %d at offset %d", e.Kind, e.Offset)
}

// Encode frames cmd into its on-disk byte layout: crc32 || kind || key_len ||
// value_len || key || value. The CRC covers every field after itself.
func Encode(cmd Command) []byte {
	buf := make([]byte, HeaderLen+len(cmd.Key)+len(cmd.Value))

	buf[4] = byte(cmd.Kind)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(cmd.Key)))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(cmd.Value)))
	copy(buf[HeaderLen:], cmd.Key)
	copy(buf[HeaderLen+len(cmd.Key):], cmd.Value)

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:4], crc)

	return buf
}

// DecodeAt reads and validates a single record from r starting at offset. It
// returns the decoded command and the total number of bytes the record
// occupies on disk (the caller's next offset is offset+recordLen).
//
// A short read at the very start of the header, or a key/value region that
// runs past the bytes actually available, is reported as ErrTruncated so
// that recovery can treat it as an unfinished tail write rather than a fatal
// corruption.
func DecodeAt(r io.ReaderAt, offset int64) (Command, int64, error) {
	header := make([]byte, HeaderLen)
	n, err := r.ReadAt(header, offset)
	if err != nil && err != io.EOF {
		return Command{}, 0, err
	}
	if n < HeaderLen {
		return Command{}, 0, &ErrTruncated{Offset: offset}
	}

	wantCRC := binary.LittleEndian.Uint32(header[0:4])
	kind := Kind(header[4])
	if kind != KindSet && kind != KindRemove {
		return Command{}, 0, &ErrInvalidKind{Kind: header[4], Offset: offset}
	}

	keyLen := binary.LittleEndian.Uint32(header[5:9])
	valueLen := binary.LittleEndian.Uint32(header[9:13])
	if keyLen > MaxKeyLen || valueLen > MaxValueLen {
		return Command{}, 0, &ErrInvalidKind{Kind: header[4], Offset: offset}
	}

	payloadLen := int(keyLen) + int(valueLen)
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		n, err := r.ReadAt(payload, offset+HeaderLen)
		if err != nil && err != io.EOF {
			return Command{}, 0, err
		}
		if n < payloadLen {
			return Command{}, 0, &ErrTruncated{Offset: offset}
		}
	}

	gotCRC := crc32.ChecksumIEEE(append(append([]byte{}, header[4:]...), payload...))
	if gotCRC != wantCRC {
		return Command{}, 0, &ErrCorrupt{Offset: offset}
	}

	cmd := Command{Kind: kind, Key: payload[:keyLen]}
	if kind == KindSet {
		cmd.Value = payload[keyLen:]
	}

	return cmd, int64(HeaderLen + payloadLen), nil
}
