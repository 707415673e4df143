package n64

// Physical addresses of the memory-mapped interfaces.
// Reference: https://n64brew.dev/wiki/Memory_map
const (
	MIBase uint32 = 0x0430_0000
	VIBase uint32 = 0x0440_0000
	AIBase uint32 = 0x0450_0000
	PIBase uint32 = 0x0460_0000
	SIBase uint32 = 0x0480_0000

	MI_MODE    = MIBase + 0x00
	MI_VERSION = MIBase + 0x04
	MI_INTR    = MIBase + 0x08
	MI_MASK    = MIBase + 0x0C

	VI_CONTROL = VIBase + 0x00
	VI_ORIGIN  = VIBase + 0x04
	VI_WIDTH   = VIBase + 0x08
	VI_V_INTR  = VIBase + 0x0C
	VI_CURRENT = VIBase + 0x10

	AI_DRAM_ADDR = AIBase + 0x00
	AI_LEN       = AIBase + 0x04
	AI_CONTROL   = AIBase + 0x08
	AI_STATUS    = AIBase + 0x0C
	AI_DACRATE   = AIBase + 0x10
	AI_BITRATE   = AIBase + 0x14

	PI_DRAM_ADDR = PIBase + 0x00
	PI_CART_ADDR = PIBase + 0x04
	PI_RD_LEN    = PIBase + 0x08
	PI_WR_LEN    = PIBase + 0x0C
	PI_STATUS    = PIBase + 0x10

	SI_DRAM_ADDR      = SIBase + 0x00
	SI_PIF_ADDR_RD64B = SIBase + 0x04
	SI_PIF_ADDR_WR64B = SIBase + 0x10
	SI_STATUS         = SIBase + 0x18

	// CartBase is where the PI maps cartridge ROM.
	CartBase uint32 = 0x1000_0000
)

// Interrupt is a bit of MI_INTR.
type Interrupt uint32

const (
	IntrSP Interrupt = 1 << iota
	IntrSI
	IntrAI
	IntrVI
	IntrPI
	IntrDP
)

const miVersion = 0x0202_0102
