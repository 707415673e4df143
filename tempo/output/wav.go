package output

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavChannels    = 2
	wavFormatPCM   = 1
	wavSampleScale = math.MaxInt16
)

// WAVSink encodes frames as 16-bit stereo PCM. The header is completed on
// Close, so the destination must be seekable.
type WAVSink struct {
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	closed bool
	frames uint64
}

// NewWAVSink writes a WAV stream at sampleRate to w.
func NewWAVSink(w io.WriteSeeker, sampleRate int) (*WAVSink, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	return &WAVSink{
		enc: wav.NewEncoder(w, sampleRate, wavBitDepth, wavChannels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: wavChannels, SampleRate: sampleRate},
			SourceBitDepth: wavBitDepth,
		},
	}, nil
}

func (s *WAVSink) Write(frames []Frame) error {
	if s.closed {
		return ErrSinkClosed
	}
	s.buf.Data = s.buf.Data[:0]
	for _, f := range frames {
		s.buf.Data = append(s.buf.Data, toPCM16(f.Left), toPCM16(f.Right))
	}
	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	s.frames += uint64(len(frames))
	return nil
}

// Frames returns the number of frames written so far.
func (s *WAVSink) Frames() uint64 {
	return s.frames
}

// Close finalizes the header. It does not close the underlying writer.
func (s *WAVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}

func toPCM16(v float32) int {
	return int(math.Round(float64(Clamp(v)) * wavSampleScale))
}
