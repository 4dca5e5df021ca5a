package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Device speaker format.
const (
	DeviceSampleRate = 16000
	DeviceBitDepth   = 8
	DeviceChannels   = 1

	wavFormatPCM = 1
)

// ResampleForDevice decodes mp3 audio and re-encodes it as a mono, 16 kHz,
// 8-bit unsigned PCM WAV file for the device speaker.
func ResampleForDevice(mp3Audio []byte) ([]byte, error) {
	samples, rate, err := decodeMP3(mp3Audio)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("mp3 decoded to no samples")
	}
	return EncodeDeviceWAV(resampleLinear(samples, rate, DeviceSampleRate))
}

// decodeMP3 returns mono samples in [-1, 1] and the source sample rate.
func decodeMP3(data []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decoder: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()[:len(ints)*2]), binary.LittleEndian, &ints); err != nil {
		return nil, 0, fmt.Errorf("mp3 pcm: %w", err)
	}

	// go-mp3 always emits interleaved stereo
	x := downmixInterleaved(int16ToFloat32(ints), 2)
	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	return x, rate, nil
}

// EncodeDeviceWAV writes mono samples in [-1, 1] as a 16 kHz 8-bit WAV file.
func EncodeDeviceWAV(samples []float32) ([]byte, error) {
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: DeviceChannels, SampleRate: DeviceSampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: DeviceBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = toUnsigned8(s)
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, DeviceSampleRate, DeviceBitDepth, DeviceChannels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return out.Bytes(), nil
}

// toUnsigned8 maps [-1, 1] to the unsigned 8-bit PCM range, 128 being silence.
func toUnsigned8(s float32) int {
	v := math.Round(float64(clamp(s, -1, 1))*127) + 128
	return int(v)
}

func int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// memFile is an in-memory io.WriteSeeker for the WAV encoder, which seeks
// back to patch the RIFF header sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte { return m.buf }
