package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrNotWAV is returned by ParseWAV for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a PCM WAV stream")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bps = 16
	byteRate := f.SampleRate * f.Channels * bps / 8
	blockAlign := f.Channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of a WAV stream and returns its PCM samples
// and format. The fmt chunk size may vary between encoders, so the data offset
// is located rather than assumed to be 44.
func ParseWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	f := Format{Container: ContainerPCM}
	foundFmt := false
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))

		switch id {
		case "fmt ":
			if size < 16 || offset+8+16 > len(data) {
				return nil, Format{}, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			fd := data[offset+8:]
			if binary.LittleEndian.Uint16(fd[0:2]) != 1 || binary.LittleEndian.Uint16(fd[14:16]) != 16 {
				return nil, Format{}, fmt.Errorf("%w: only 16-bit PCM is supported", ErrNotWAV)
			}
			f.Channels = int(binary.LittleEndian.Uint16(fd[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(fd[4:8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			pcm := data[offset+8:]
			if size < len(pcm) {
				pcm = pcm[:size]
			}
			return pcm, f, nil
		}

		// Chunks are word-aligned.
		offset += 8 + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}
