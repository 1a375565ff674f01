// Package webp reads and writes the RIFF container of WebP files.
//
// Pixel coding is left to libwebp (driven through ffmpeg); this package only
// moves already-encoded VP8/VP8L bitstreams between still and animated
// containers and inspects the result.
package webp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/image/riff"
)

var (
	fccRIFF = riff.FourCC{'R', 'I', 'F', 'F'}
	fccWEBP = riff.FourCC{'W', 'E', 'B', 'P'}
	fccVP8  = riff.FourCC{'V', 'P', '8', ' '}
	fccVP8L = riff.FourCC{'V', 'P', '8', 'L'}
	fccVP8X = riff.FourCC{'V', 'P', '8', 'X'}
	fccALPH = riff.FourCC{'A', 'L', 'P', 'H'}
	fccANIM = riff.FourCC{'A', 'N', 'I', 'M'}
	fccANMF = riff.FourCC{'A', 'N', 'M', 'F'}
)

const (
	flagAlpha     = 0x10
	flagAnimation = 0x02

	anmfNoBlend = 0x02

	maxUint24 = 1<<24 - 1
)

// ErrNotWebP is returned when the input is not a RIFF/WEBP file.
var ErrNotWebP = errors.New("webp: not a RIFF WEBP container")

// Chunk is one RIFF chunk with its payload (padding excluded).
type Chunk struct {
	ID   riff.FourCC
	Data []byte
}

// readChunks splits a WebP file into its top-level chunks.
func readChunks(r io.Reader) ([]Chunk, error) {
	formType, list, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWebP, err)
	}
	if formType != fccWEBP {
		return nil, ErrNotWebP
	}
	return readList(list)
}

func readList(list *riff.Reader) ([]Chunk, error) {
	var chunks []Chunk
	for {
		id, _, data, err := list.Next()
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("webp: read chunk: %w", err)
		}
		payload, err := io.ReadAll(data)
		if err != nil {
			return nil, fmt.Errorf("webp: read %s payload: %w", id, err)
		}
		chunks = append(chunks, Chunk{ID: id, Data: payload})
	}
}

// readSubChunks parses chunks that follow a fixed-size header inside a payload.
func readSubChunks(data []byte) ([]Chunk, error) {
	var chunks []Chunk
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("webp: truncated sub-chunk header")
		}
		var id riff.FourCC
		copy(id[:], data[:4])
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		data = data[8:]
		if size > len(data) {
			return nil, fmt.Errorf("webp: sub-chunk %s overruns frame", id)
		}
		chunks = append(chunks, Chunk{ID: id, Data: data[:size]})
		if size%2 == 1 && size < len(data) {
			size++
		}
		data = data[size:]
	}
	return chunks, nil
}

func appendChunk(buf *bytes.Buffer, c Chunk) {
	var header [8]byte
	copy(header[:4], c.ID[:])
	binary.LittleEndian.PutUint32(header[4:], uint32(len(c.Data)))
	buf.Write(header[:])
	buf.Write(c.Data)
	if len(c.Data)%2 == 1 {
		buf.WriteByte(0)
	}
}

func putUint24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func uint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// bitstreamSize reads frame dimensions from a VP8 or VP8L bitstream header.
func bitstreamSize(c Chunk) (width, height int, alpha bool, err error) {
	switch c.ID {
	case fccVP8:
		d := c.Data
		if len(d) < 10 || d[3] != 0x9d || d[4] != 0x01 || d[5] != 0x2a {
			return 0, 0, false, fmt.Errorf("webp: invalid VP8 frame header")
		}
		width = int(binary.LittleEndian.Uint16(d[6:8]) & 0x3fff)
		height = int(binary.LittleEndian.Uint16(d[8:10]) & 0x3fff)
		return width, height, false, nil
	case fccVP8L:
		d := c.Data
		if len(d) < 5 || d[0] != 0x2f {
			return 0, 0, false, fmt.Errorf("webp: invalid VP8L signature")
		}
		bits := binary.LittleEndian.Uint32(d[1:5])
		width = int(bits&0x3fff) + 1
		height = int((bits>>14)&0x3fff) + 1
		alpha = (bits>>28)&1 == 1
		return width, height, alpha, nil
	default:
		return 0, 0, false, fmt.Errorf("webp: chunk %s is not an image bitstream", c.ID)
	}
}
