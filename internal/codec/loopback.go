package codec

import (
	"context"

	"github.com/loqalabs/codecbench/internal/waveform"
)

const (
	loopbackSamplesPerBit = 16
	loopbackLevel         = 0.5
)

// loopbackCodec is an in-process binary modem: every bit of the text becomes
// a block of constant-level samples, decoded by the sign of the block mean.
// It has no error correction, so impairments degrade it the way they would a
// naive real codec.
type loopbackCodec struct {
	sampleRate int
}

func NewLoopbackCodec(sampleRate int) Client {
	if sampleRate <= 0 {
		sampleRate = waveform.SampleRate
	}
	return &loopbackCodec{sampleRate: sampleRate}
}

func (l *loopbackCodec) Encode(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportErr("encode", err)
	}
	sig := make(waveform.Signal, 0, len(text)*8*loopbackSamplesPerBit)
	for i := 0; i < len(text); i++ {
		b := text[i]
		for bit := 7; bit >= 0; bit-- {
			level := -loopbackLevel
			if b&(1<<bit) != 0 {
				level = loopbackLevel
			}
			for k := 0; k < loopbackSamplesPerBit; k++ {
				sig = append(sig, level)
			}
		}
	}
	blob, err := waveform.EncodeBase64(waveform.FromSignal(sig, l.sampleRate))
	return blob, transportErr("encode", err)
}

func (l *loopbackCodec) Decode(ctx context.Context, blob string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportErr("decode", err)
	}
	pcm, err := waveform.DecodeBase64(blob)
	if err != nil {
		return "", transportErr("decode", err)
	}
	sig := pcm.Normalize()
	const symbol = 8 * loopbackSamplesPerBit
	out := make([]byte, 0, len(sig)/symbol)
	for start := 0; start+symbol <= len(sig); start += symbol {
		var b byte
		for bit := 0; bit < 8; bit++ {
			var sum float64
			for _, v := range sig[start+bit*loopbackSamplesPerBit : start+(bit+1)*loopbackSamplesPerBit] {
				sum += v
			}
			b <<= 1
			if sum > 0 {
				b |= 1
			}
		}
		out = append(out, b)
	}
	return string(out), nil
}

func (l *loopbackCodec) Ping(ctx context.Context) error {
	return transportErr("ping", ctx.Err())
}
