package audio

import (
	"log/slog"
	"sync"
)

// Normalizer converts blocks of 16-bit PCM to a target format. It logs a
// warning on the first format mismatch and on the first misaligned block.
// Create one per capture session; not designed for shared use across goroutines.
type Normalizer struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts pcm from src to the normaliser's target format. If the
// formats already match, pcm is returned unchanged. Blocks with an odd byte
// count are dropped and nil is returned.
// Conversion order: downmix first, then resample.
func (n *Normalizer) Normalize(pcm []byte, src Format) []byte {
	if len(pcm)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data, dropping block",
				"bytes", len(pcm),
				"format", src.String(),
			)
		})
		return nil
	}

	if src.SampleRate == n.Target.SampleRate && src.Channels == n.Target.Channels {
		return pcm
	}

	n.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", src.String(),
			"to", n.Target.String(),
		)
	})

	// Downmixing before resampling halves the interpolation work.
	if src.Channels == 2 && n.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	return ResampleMono16(pcm, src.SampleRate, n.Target.SampleRate)
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := max(min((l+r)/2, 32767), -32768)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, or either rate is invalid, the input is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
