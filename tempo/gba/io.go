package gba

import "github.com/valerio/go-tempo/tempo/audio"

// I/O register offsets from 0x04000000.
// Reference: https://problemkaputt.de/gbatek.htm#gbaiomap
const (
	DISPSTAT uint32 = 0x004
	VCOUNT   uint32 = 0x006

	SOUND1CNT_L uint32 = 0x060 // sweep
	SOUND1CNT_H uint32 = 0x062 // duty/length, envelope
	SOUND1CNT_X uint32 = 0x064 // frequency, control
	SOUND2CNT_L uint32 = 0x068 // duty/length, envelope
	SOUND2CNT_H uint32 = 0x06C // frequency, control
	SOUND3CNT_L uint32 = 0x070 // stop/wave RAM select
	SOUND3CNT_H uint32 = 0x072 // length, volume
	SOUND3CNT_X uint32 = 0x074 // frequency, control
	SOUND4CNT_L uint32 = 0x078 // length, envelope
	SOUND4CNT_H uint32 = 0x07C // frequency, control
	SOUNDCNT_L  uint32 = 0x080 // PSG master volume, panning
	SOUNDCNT_H  uint32 = 0x082 // PSG/DMA mixing
	SOUNDCNT_X  uint32 = 0x084 // master enable, channel status
	SOUNDBIAS   uint32 = 0x088

	WaveRAMStart uint32 = 0x090
	WaveRAMEnd   uint32 = 0x09F

	TM0CNT_L uint32 = 0x100 // counter/reload; timer n at +4n
	TM0CNT_H uint32 = 0x102 // control

	IE uint32 = 0x200
	IF uint32 = 0x202
)

// Interrupt is a bit of IE/IF.
type Interrupt uint16

const (
	IRQVBlank Interrupt = 1 << 0
	IRQHBlank Interrupt = 1 << 1
	IRQVCount Interrupt = 1 << 2
	IRQTimer0 Interrupt = 1 << 3
	IRQTimer1 Interrupt = 1 << 4
	IRQTimer2 Interrupt = 1 << 5
	IRQTimer3 Interrupt = 1 << 6
)

// psgRoutes maps each PSG register byte to its channel and register. The
// layout mirrors the 8-bit handheld's NRxy bytes packed into halfwords.
var psgRoutes = map[uint32]struct {
	channel int
	reg     audio.Register
}{
	SOUND1CNT_H:     {0, audio.RegLength},
	SOUND1CNT_H + 1: {0, audio.RegEnvelope},
	SOUND1CNT_X:     {0, audio.RegFreqLow},
	SOUND1CNT_X + 1: {0, audio.RegFreqHigh},
	SOUND2CNT_L:     {1, audio.RegLength},
	SOUND2CNT_L + 1: {1, audio.RegEnvelope},
	SOUND2CNT_H:     {1, audio.RegFreqLow},
	SOUND2CNT_H + 1: {1, audio.RegFreqHigh},
	SOUND3CNT_L:     {2, audio.RegWaveControl},
	SOUND3CNT_H:     {2, audio.RegLength},
	SOUND3CNT_H + 1: {2, audio.RegWaveLevel},
	SOUND3CNT_X:     {2, audio.RegFreqLow},
	SOUND3CNT_X + 1: {2, audio.RegFreqHigh},
	SOUND4CNT_L:     {3, audio.RegLength},
	SOUND4CNT_L + 1: {3, audio.RegEnvelope},
	SOUND4CNT_H:     {3, audio.RegNoise},
	SOUND4CNT_H + 1: {3, audio.RegFreqHigh},
}
