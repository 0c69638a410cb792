// Package codec implements self-describing block compression for index
// blobs. Every frame carries its algorithm and both sizes, so readers
// need no out-of-band configuration.
//
// Frame format: [Type uint8][UncompressedSize uint32][CompressedSize
// uint32][Data...]. CompressedSize == 0 marks raw data, which is how
// incompressible blobs are stored regardless of the requested type.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type selects the compression algorithm.
type Type uint8

const (
	// None stores frames raw.
	None Type = 0
	// LZ4 block compression, fast with a moderate ratio.
	LZ4 Type = 1
	// ZSTD block compression, better ratio at default speed.
	ZSTD Type = 2
)

const headerSize = 9

// ErrCorrupt is returned when a frame fails structural validation.
var ErrCorrupt = errors.New("codec: corrupt frame")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress frames data with the given algorithm. When compression does
// not pay off (ratio above 0.9) the frame stores the data raw.
func Compress(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("codec: unknown type %d", t)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		frame := make([]byte, headerSize+len(data))
		frame[0] = byte(t)
		binary.LittleEndian.PutUint32(frame[1:], uint32(len(data)))
		binary.LittleEndian.PutUint32(frame[5:], 0)
		copy(frame[headerSize:], data)
		return frame, nil
	}

	frame := make([]byte, headerSize+len(compressed))
	frame[0] = byte(t)
	binary.LittleEndian.PutUint32(frame[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(compressed)))
	copy(frame[headerSize:], compressed)
	return frame, nil
}

// Decompress restores the data of one frame.
func Decompress(frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, ErrCorrupt
	}
	t := Type(frame[0])
	uncompressedSize := binary.LittleEndian.Uint32(frame[1:])
	compressedSize := binary.LittleEndian.Uint32(frame[5:])

	if compressedSize == 0 {
		if uint32(len(frame)-headerSize) < uncompressedSize {
			return nil, ErrCorrupt
		}
		out := make([]byte, uncompressedSize)
		copy(out, frame[headerSize:])
		return out, nil
	}
	if uint32(len(frame)-headerSize) < compressedSize {
		return nil, ErrCorrupt
	}
	payload := frame[headerSize : headerSize+int(compressedSize)]

	switch t {
	case LZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, ErrCorrupt
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != uncompressedSize {
			return nil, ErrCorrupt
		}
		return out, nil
	default:
		return nil, fmt.Errorf("codec: unknown type %d", t)
	}
}
