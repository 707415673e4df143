package n64

import (
	"encoding/binary"

	"github.com/valerio/go-tempo/tempo/bit"
)

const (
	aiQueueDepth   = 2
	aiLenMask      = 0x3FFF8
	aiAddrMask     = 0xFFFFF8
	aiDMAEnableBit = 0
	aiStatusFull   = 1 << 31
	aiStatusBusy   = 1 << 30
	aiStatusEnable = 1 << 25
	// bytes per stereo frame of 16-bit PCM
	aiFrameBytes = 4
	pcmScale     = 32768
)

// aiBuffer is one queued DMA transfer.
type aiBuffer struct {
	addr     uint32
	length   uint32
	duration int64
}

// ai is the audio interface. It holds at most two buffers: the one
// playing and the one queued behind it.
type ai struct {
	dramAddr uint32
	control  uint32
	dacRate  uint32
	bitRate  uint32
	queue    [aiQueueDepth]aiBuffer
	queued   int
}

// duration converts a buffer length to CPU cycles at the programmed DAC
// rate: frames * (clock / dac frequency).
func (a *ai) duration(length uint32) int64 {
	frames := int64(length / aiFrameBytes)
	d := frames * int64(a.dacRate+1) * ClockHz / VIClockHz
	if d < 1 {
		d = 1
	}
	return d
}

// SampleRate returns the DAC frequency in Hz.
func (s *Session) SampleRate() int {
	return VIClockHz / int(s.ai.dacRate+1)
}

func (s *Session) writeAI(address uint32, value uint32) {
	a := &s.ai
	switch address {
	case AI_DRAM_ADDR:
		a.dramAddr = value & aiAddrMask
	case AI_LEN:
		s.queueAudioBuffer(value & aiLenMask)
	case AI_CONTROL:
		a.control = value & 1
	case AI_STATUS:
		s.lower(IntrAI)
	case AI_DACRATE:
		a.dacRate = value & 0x3FFF
	case AI_BITRATE:
		a.bitRate = value & 0xF
	}
}

func (s *Session) readAI(address uint32) uint32 {
	a := &s.ai
	switch address {
	case AI_LEN:
		return s.audioRemaining()
	case AI_STATUS:
		var v uint32
		if a.queued == aiQueueDepth {
			v |= aiStatusFull | 1
		}
		if a.queued > 0 {
			v |= aiStatusBusy
		}
		if bit.IsSet(aiDMAEnableBit, a.control) {
			v |= aiStatusEnable
		}
		return v
	}
	// the remaining registers are write-only and mirror AI_LEN
	return s.audioRemaining()
}

// audioRemaining returns the bytes left in the playing buffer, rounded
// down to a whole transfer unit.
func (s *Session) audioRemaining() uint32 {
	a := &s.ai
	if a.queued == 0 {
		return 0
	}
	cur := a.queue[0]
	left := s.sched.Until(AI)
	if left <= 0 {
		return 0
	}
	return uint32(int64(cur.length)*left/cur.duration) &^ 7
}

func (s *Session) queueAudioBuffer(length uint32) {
	a := &s.ai
	if length == 0 {
		return
	}
	if !bit.IsSet(aiDMAEnableBit, a.control) {
		s.logger.Debug("AI length written with DMA disabled", "length", length)
		return
	}
	if a.queued == aiQueueDepth {
		s.logger.Warn("AI FIFO full, buffer dropped", "addr", a.dramAddr, "length", length)
		return
	}

	buf := aiBuffer{addr: a.dramAddr, length: length, duration: a.duration(length)}
	a.queue[a.queued] = buf
	a.queued++
	if a.queued == 1 {
		s.sched.Insert(AI, buf.duration, true)
	}
}

// completeAudioBuffer services an AI event: the finished buffer's frames go
// to the output and the queued buffer, if any, starts playing.
func (s *Session) completeAudioBuffer() {
	a := &s.ai
	if a.queued == 0 {
		return
	}
	done := a.queue[0]
	s.pushPCM(done)

	a.queue[0] = a.queue[1]
	a.queue[1] = aiBuffer{}
	a.queued--
	s.raise(IntrAI)

	if a.queued > 0 {
		s.sched.Insert(AI, a.queue[0].duration, false)
	}
}

// pushPCM converts big-endian interleaved 16-bit stereo to frames.
func (s *Session) pushPCM(buf aiBuffer) {
	start := int(buf.addr)
	end := start + int(buf.length)
	if end > len(s.rdram) {
		end = len(s.rdram)
	}
	for i := start; i+aiFrameBytes <= end; i += aiFrameBytes {
		left := int16(binary.BigEndian.Uint16(s.rdram[i:]))
		right := int16(binary.BigEndian.Uint16(s.rdram[i+2:]))
		s.out.Push(float32(left)/pcmScale, float32(right)/pcmScale)
	}
}
