// Package scatter builds the byte-range plan blockcrypt runs the AEAD cipher
// over. A regular block is encrypted whole; an intent-log block is a packed
// sequence of records behind a chain header, most of which must stay
// unencrypted so a log can be scanned without decrypting it — only record
// bodies get encrypted, headers and any embedded block pointer are carried
// verbatim.
package scatter

import (
	"encoding/binary"
	"errors"

	"zfscrypt/zerr"
)

// DataMACLen is the tag length used for a regular block.
const DataMACLen = 16

// ZilMACLen is the tag length used for an intent-log block.
const ZilMACLen = 8

// HeaderLen is the size of the chain header every intent-log block starts
// with: an 8-byte used-length field followed by the 8-byte field that later
// receives the block's authentication tag (`zil_chain.mac[0:8]`).
const HeaderLen = 16

// RecordHeaderLen is the size of a log record's common header: a 4-byte
// record type and a 4-byte record length, both little-endian.
const RecordHeaderLen = 8

// BlockPointerLen is the size of a write record's embedded block pointer,
// carried verbatim so the log can resolve it without decrypting the record.
const BlockPointerLen = 128

// WriteBodyLen is the size of a minimum-size write record's encrypted body,
// between the record header and the embedded block pointer.
const WriteBodyLen = 64

// WriteRecordLen is the size of a minimum-size write record: header, body,
// and embedded block pointer. A write record longer than this carries an
// inline data tail after the block pointer.
const WriteRecordLen = RecordHeaderLen + WriteBodyLen + BlockPointerLen

// RecordTypeWrite is the log record type whose body conceals an embedded
// block pointer that must not be encrypted.
const RecordTypeWrite uint32 = 1

// ErrNoEncryptionNeeded signals an intent-log block with no record bodies to
// encrypt (an empty or header-only block). The caller copies plaintext to
// ciphertext verbatim and writes a zeroed tag; this is not an error kind.
var ErrNoEncryptionNeeded = errors.New("scatter: no encryption needed")

// Segment is one byte range to run through the AEAD, aliasing the caller's
// buffers. Callers must not retain Src/Dst past the call that produced them.
type Segment struct {
	Src, Dst []byte
}

// Plan is an ordered list of byte ranges to encrypt or decrypt, plus the tag
// length the resulting AEAD call should use.
type Plan struct {
	Segments []Segment
	TagLen   int
}

// PlanRegular builds the trivial one-segment plan for an ordinary block: the
// entire datalen-byte region is encrypted as a single segment.
func PlanRegular(plaintext, ciphertext []byte, datalen int) (Plan, error) {
	if datalen < 0 || datalen > len(plaintext) || datalen > len(ciphertext) {
		return Plan{}, zerr.New(zerr.InvalidArgument, "scatter: datalen exceeds buffer length")
	}
	return Plan{
		Segments: []Segment{{Src: plaintext[:datalen], Dst: ciphertext[:datalen]}},
		TagLen:   DataMACLen,
	}, nil
}

// ChainHeader is the fixed header every intent-log block starts with.
type ChainHeader struct {
	Nused uint64
	MAC   [8]byte
}

// PutChainHeader writes h into buf[0:HeaderLen].
func PutChainHeader(buf []byte, h ChainHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Nused)
	copy(buf[8:16], h.MAC[:])
}

// GetChainHeader reads a ChainHeader out of buf[0:HeaderLen].
func GetChainHeader(buf []byte) ChainHeader {
	var h ChainHeader
	h.Nused = binary.LittleEndian.Uint64(buf[0:8])
	copy(h.MAC[:], buf[8:16])
	return h
}

// record is one parsed log record's header.
type record struct {
	offset int
	typ    uint32
	length uint32
}

// PlanIntentLog walks the packed chain-header-plus-records layout of an
// intent-log block and builds the list of body segments to encrypt, leaving
// the header and every embedded block pointer untouched. src is the buffer
// the AEAD reads (plaintext when encrypting, ciphertext when decrypting);
// dst is the other one. used is the chain header's reported used-length.
//
// Callers must copy(dst, src) before running the returned plan: PlanIntentLog
// only reports which byte ranges the AEAD cipher should overwrite in dst, not
// the verbatim ones — those are expected to already be present from the copy.
func PlanIntentLog(src, dst []byte, used int) (Plan, error) {
	if used < HeaderLen || used > len(src) || used > len(dst) {
		return Plan{}, zerr.New(zerr.InvalidArgument, "scatter: used exceeds buffer length or header size")
	}

	records, err := walkRecords(src, used)
	if err != nil {
		return Plan{}, err
	}
	if len(records) == 0 {
		return Plan{}, ErrNoEncryptionNeeded
	}

	var segments []Segment
	for _, r := range records {
		bodyStart := r.offset + RecordHeaderLen
		recEnd := r.offset + int(r.length)

		if r.typ == RecordTypeWrite {
			bpStart := r.offset + WriteRecordLen - BlockPointerLen
			bodyEnd := bpStart
			if bodyEnd > bodyStart {
				segments = append(segments, Segment{Src: src[bodyStart:bodyEnd], Dst: dst[bodyStart:bodyEnd]})
			}
			if recEnd > r.offset+WriteRecordLen {
				tailStart := r.offset + WriteRecordLen
				segments = append(segments, Segment{Src: src[tailStart:recEnd], Dst: dst[tailStart:recEnd]})
			}
		} else {
			// Always one segment per non-write record, even when its body is
			// empty (a header-only record like a commit record): the record
			// still counts toward the block's encrypted-segment count, so an
			// all-empty-body block is not mistaken for a record-free one.
			segments = append(segments, Segment{Src: src[bodyStart:recEnd], Dst: dst[bodyStart:recEnd]})
		}
	}

	return Plan{Segments: segments, TagLen: ZilMACLen}, nil
}

// walkRecords scans the record sequence starting at HeaderLen and ending at
// used, validating that every record's declared length stays within bounds
// before any byte of its body is touched. A malformed record (length too
// short to hold even the common header, or one that would run past used)
// fails closed with zerr.InvalidArgument rather than being dereferenced.
func walkRecords(buf []byte, used int) ([]record, error) {
	var records []record
	offset := HeaderLen
	for offset < used {
		if offset+RecordHeaderLen > used {
			return nil, zerr.New(zerr.InvalidArgument, "scatter: truncated record header")
		}
		typ := binary.LittleEndian.Uint32(buf[offset : offset+4])
		length := binary.LittleEndian.Uint32(buf[offset+4 : offset+8])

		if length < RecordHeaderLen {
			return nil, zerr.New(zerr.InvalidArgument, "scatter: record length shorter than its own header")
		}
		if typ == RecordTypeWrite && length < WriteRecordLen {
			return nil, zerr.New(zerr.InvalidArgument, "scatter: write record shorter than minimum write record size")
		}
		if offset+int(length) > used {
			return nil, zerr.New(zerr.InvalidArgument, "scatter: record runs past the block's used length")
		}

		records = append(records, record{offset: offset, typ: typ, length: length})
		offset += int(length)
	}
	return records, nil
}
