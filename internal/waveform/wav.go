package waveform

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// EncodeWAV serializes mono PCM into a RIFF/WAVE container. 8-bit samples are
// signed here and written unsigned, mirroring DecodeWAV.
func EncodeWAV(p PCM) ([]byte, error) {
	bitDepth := p.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	sampleRate := p.SampleRate
	if sampleRate == 0 {
		sampleRate = SampleRate
	}
	data := p.Samples
	if bitDepth == 8 {
		data = make([]int, len(p.Samples))
		for i, v := range p.Samples {
			data[i] = v + 128
		}
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, 1, pcmFormat)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV parses a RIFF/WAVE container. Multi-channel audio keeps only the
// first channel. 8-bit WAV stores unsigned samples around 128; they are
// recentred so every PCM value is signed.
func DecodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav payload")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("read wav pcm: %w", err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	samples := buf.Data
	if channels > 1 {
		mono := make([]int, 0, len(samples)/channels)
		for i := 0; i+channels <= len(samples); i += channels {
			mono = append(mono, samples[i])
		}
		samples = mono
	}
	if dec.BitDepth == 8 {
		if channels == 1 {
			samples = append([]int(nil), samples...)
		}
		for i := range samples {
			samples[i] -= 128
		}
	}
	return PCM{
		Samples:    samples,
		BitDepth:   int(dec.BitDepth),
		SampleRate: int(dec.SampleRate),
	}, nil
}

// EncodeBase64 produces the transport form used by the codec service.
func EncodeBase64(p PCM) (string, error) {
	data, err := EncodeWAV(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func DecodeBase64(blob string) (PCM, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return PCM{}, fmt.Errorf("decode base64 audio: %w", err)
	}
	return DecodeWAV(data)
}

// seekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.pos) + offset
	case io.SeekEnd:
		next = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	s.pos = int(next)
	return next, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
