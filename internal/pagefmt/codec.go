// Package pagefmt implements the on-disk page envelope: magic bytes, an
// optional Zstandard-compressed payload, and a CRC-32C checksum, with the
// payload itself carried as a portable MessagePack-equivalent binary
// encoding of whatever Go value is passed in.
package pagefmt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ugorji/go/codec"

	"github.com/nutelladb/grebedb/internal/dberr"
)

// MagicBytes identifies a grebedb page file. Any file not beginning with
// these eight bytes is rejected as corrupt before any other parsing is
// attempted.
var MagicBytes = [8]byte{0xFE, 0xC7, 0xF2, 0xE5, 0xE2, 0xE5, 0x00, 0x00}

const (
	flagUncompressed byte = 0x00
	flagCompressed   byte = 0x01
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CompressionLevel selects how aggressively a page's payload is
// compressed before it is written. The zero value, CompressionNone,
// writes the payload uncompressed.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionVeryLow
	CompressionLow
	CompressionMedium
	CompressionHigh
)

func (c CompressionLevel) zstdLevel() zstd.EncoderLevel {
	switch c {
	case CompressionVeryLow:
		return zstd.SpeedFastest
	case CompressionLow:
		return zstd.SpeedDefault
	case CompressionMedium:
		return zstd.SpeedBetterCompression
	case CompressionHigh:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

var mpHandle = &codec.MsgpackHandle{}

func init() {
	mpHandle.WriteExt = true
	mpHandle.Canonical = true
}

// Marshal serializes v with the MessagePack-equivalent binary codec used
// for all page and metadata payloads.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, mpHandle)
	if err := enc.Encode(v); err != nil {
		return nil, dberr.Wrap(dberr.KindCorrupt, "failed to encode payload", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal into v.
func Unmarshal(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, mpHandle)
	if err := dec.Decode(v); err != nil {
		return dberr.Wrap(dberr.KindCorrupt, "failed to decode payload", err)
	}
	return nil
}

// Encode builds a complete page file: magic, compression flag, a
// length-prefixed (possibly compressed) payload, and a trailing CRC-32C
// of the uncompressed payload bytes.
func Encode(v interface{}, level CompressionLevel) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	checksum := crc32.Checksum(payload, castagnoliTable)

	flag := flagUncompressed
	body := payload
	if level != CompressionNone {
		compressed, err := compress(payload, level)
		if err != nil {
			return nil, err
		}
		flag = flagCompressed
		body = compressed
	}

	out := make([]byte, 0, len(MagicBytes)+1+8+len(body)+4)
	out = append(out, MagicBytes[:]...)
	out = append(out, flag)
	out = binary.BigEndian.AppendUint64(out, uint64(len(body)))
	out = append(out, body...)
	out = binary.BigEndian.AppendUint32(out, checksum)
	return out, nil
}

// Decode parses a complete page file produced by Encode and decodes its
// payload into v.
func Decode(data []byte, v interface{}) error {
	if len(data) < len(MagicBytes)+1+8+4 {
		return dberr.New(dberr.KindCorrupt, "page file is too short")
	}
	if !bytes.Equal(data[:8], MagicBytes[:]) {
		return dberr.New(dberr.KindCorrupt, "bad magic bytes")
	}
	flag := data[8]
	length := binary.BigEndian.Uint64(data[9:17])
	rest := data[17:]
	if uint64(len(rest)) < length+4 {
		return dberr.New(dberr.KindCorrupt, "page file length prefix overruns file")
	}
	body := rest[:length]
	footer := rest[length : length+4]
	wantChecksum := binary.BigEndian.Uint32(footer)

	var payload []byte
	switch flag {
	case flagUncompressed:
		payload = body
	case flagCompressed:
		decompressed, err := decompress(body)
		if err != nil {
			return err
		}
		payload = decompressed
	default:
		return dberr.New(dberr.KindCorrupt, "unsupported compression flag")
	}

	gotChecksum := crc32.Checksum(payload, castagnoliTable)
	if gotChecksum != wantChecksum {
		return dberr.New(dberr.KindCorrupt, "checksum mismatch")
	}

	return Unmarshal(payload, v)
}

func compress(payload []byte, level CompressionLevel) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.zstdLevel()))
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "failed to create zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decompress(body []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, "failed to create zstd decoder", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(body, nil)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, dberr.New(dberr.KindCorrupt, "truncated compressed payload")
		}
		return nil, dberr.Wrap(dberr.KindCorrupt, "failed to decompress payload", err)
	}
	return out, nil
}
