package pdmsg

// VDMHeader is the first data object of a vendor defined message. Only
// structured VDMs are decoded; for unstructured ones only SVID and Structured
// are meaningful.
//
//	31..16  SVID
//	15      VDM type (1 = structured)
//	14..13  structured VDM version
//	10..8   object position
//	7..6    command type
//	4..0    command
type VDMHeader uint32

// Standard and vendor IDs used in VDM headers.
const (
	SVIDPowerDelivery uint16 = 0xff00
	SVIDDisplayPort   uint16 = 0xff01
)

// NewVDMHeader returns a structured INIT header for cmd addressed to svid.
func NewVDMHeader(svid uint16, cmd Command) VDMHeader {
	h := VDMHeader(svid)<<16 | 1<<15
	h.SetCommand(cmd)
	return h
}

// SVID returns the standard or vendor ID.
func (h VDMHeader) SVID() uint16 {
	return uint16(h >> 16)
}

// SetSVID sets the standard or vendor ID.
func (h *VDMHeader) SetSVID(svid uint16) {
	*h = (*h & 0xffff) | VDMHeader(svid)<<16
}

// Structured returns true for a structured VDM.
func (h VDMHeader) Structured() bool {
	return h&(1<<15) != 0
}

// SetStructured sets the VDM type bit.
func (h *VDMHeader) SetStructured(s bool) {
	if s {
		*h |= 1 << 15
	} else {
		*h &= ^VDMHeader(1 << 15)
	}
}

// Version returns the structured VDM version.
func (h VDMHeader) Version() VDMVersion {
	return VDMVersion((h >> 13) & 0b11)
}

// SetVersion sets the structured VDM version.
func (h *VDMHeader) SetVersion(v VDMVersion) {
	*h = (*h & ^(VDMHeader(0b11) << 13)) | VDMHeader(v&0b11)<<13
}

// ObjectPosition returns the object position, 1-based. Zero means none.
func (h VDMHeader) ObjectPosition() uint8 {
	return uint8((h >> 8) & 0b111)
}

// SetObjectPosition sets the object position.
func (h *VDMHeader) SetObjectPosition(p uint8) {
	*h = (*h & ^(VDMHeader(0b111) << 8)) | VDMHeader(p&0b111)<<8
}

// CommandType returns the command type.
func (h VDMHeader) CommandType() CommandType {
	return CommandType((h >> 6) & 0b11)
}

// SetCommandType sets the command type.
func (h *VDMHeader) SetCommandType(t CommandType) {
	*h = (*h & ^(VDMHeader(0b11) << 6)) | VDMHeader(t&0b11)<<6
}

// Command returns the command.
func (h VDMHeader) Command() Command {
	return Command(h & 0b11111)
}

// SetCommand sets the command.
func (h *VDMHeader) SetCommand(c Command) {
	*h = (*h & ^VDMHeader(0b11111)) | VDMHeader(c&0b11111)
}

// VDMVersion is the structured VDM version field.
type VDMVersion uint8

// Structured VDM versions.
const (
	VDMVersion10 VDMVersion = 0b00
	VDMVersion20 VDMVersion = 0b01
)

// VDMVersionFor returns the structured VDM version matching a PD revision.
func VDMVersionFor(r Revision) VDMVersion {
	if r >= Revision30 {
		return VDMVersion20
	}
	return VDMVersion10
}

// CommandType is the structured VDM command type.
type CommandType uint8

// Structured VDM command types.
const (
	CommandTypeInit CommandType = 0b00
	CommandTypeACK  CommandType = 0b01
	CommandTypeNAK  CommandType = 0b10
	CommandTypeBusy CommandType = 0b11
)

func (t CommandType) String() string {
	switch t {
	case CommandTypeInit:
		return "INIT"
	case CommandTypeACK:
		return "ACK"
	case CommandTypeNAK:
		return "NAK"
	default:
		return "BUSY"
	}
}

// Command is the structured VDM command. Values 16 to 31 are SVID specific.
type Command uint8

// Structured VDM commands.
const (
	CommandDiscoverIdentity Command = 1
	CommandDiscoverSVIDs    Command = 2
	CommandDiscoverModes    Command = 3
	CommandEnterMode        Command = 4
	CommandExitMode         Command = 5
	CommandAttention        Command = 6

	// DisplayPort specific commands.
	CommandDPStatus Command = 16
	CommandDPConfig Command = 17
)

func (c Command) String() string {
	switch c {
	case CommandDiscoverIdentity:
		return "DiscoverIdentity"
	case CommandDiscoverSVIDs:
		return "DiscoverSVIDs"
	case CommandDiscoverModes:
		return "DiscoverModes"
	case CommandEnterMode:
		return "EnterMode"
	case CommandExitMode:
		return "ExitMode"
	case CommandAttention:
		return "Attention"
	case CommandDPStatus:
		return "DPStatus"
	case CommandDPConfig:
		return "DPConfig"
	default:
		return "Unknown"
	}
}

// IDHeaderVDO is the first VDO of a Discover Identity response.
type IDHeaderVDO uint32

// ProductType is the product type field of the ID header.
type ProductType uint8

// Product types for UFPs and cables.
const (
	ProductTypeUndefined    ProductType = 0
	ProductTypeHub          ProductType = 1
	ProductTypePeripheral   ProductType = 2
	ProductTypePassiveCable ProductType = 3
	ProductTypeActiveCable  ProductType = 4
	ProductTypeAMA          ProductType = 5
)

var productTypeNames = [8]string{"undefined", "hub", "peripheral", "passive-cable", "active-cable", "ama", "reserved6", "reserved7"}

func (p ProductType) String() string {
	return productTypeNames[p&0b111]
}

// MakeIDHeaderVDO returns an ID header.
func MakeIDHeaderVDO(usbHost, usbDevice bool, ptype ProductType, modal bool, vid uint16) IDHeaderVDO {
	o := IDHeaderVDO(vid) | IDHeaderVDO(ptype&0b111)<<27
	if usbHost {
		o |= 1 << 31
	}
	if usbDevice {
		o |= 1 << 30
	}
	if modal {
		o |= 1 << 26
	}
	return o
}

// VID returns the USB vendor ID.
func (o IDHeaderVDO) VID() uint16 {
	return uint16(o)
}

// ProductType returns the product type.
func (o IDHeaderVDO) ProductType() ProductType {
	return ProductType((o >> 27) & 0b111)
}

// Modal returns true if the product supports alternate modes.
func (o IDHeaderVDO) Modal() bool {
	return o&(1<<26) != 0
}

// USBHost returns true if the product is capable of USB host data.
func (o IDHeaderVDO) USBHost() bool {
	return o&(1<<31) != 0
}

// USBDevice returns true if the product is capable of USB device data.
func (o IDHeaderVDO) USBDevice() bool {
	return o&(1<<30) != 0
}

// CertStatVDO carries the USB-IF certification test ID.
type CertStatVDO uint32

// MakeCertStatVDO returns a cert stat VDO for test ID tid.
func MakeCertStatVDO(tid uint32) CertStatVDO {
	return CertStatVDO(tid & 0xfffff)
}

// ProductVDO carries the USB product ID and bcdDevice.
type ProductVDO uint32

// MakeProductVDO returns a product VDO.
func MakeProductVDO(pid, bcdDevice uint16) ProductVDO {
	return ProductVDO(pid)<<16 | ProductVDO(bcdDevice)
}

// PID returns the USB product ID.
func (o ProductVDO) PID() uint16 {
	return uint16(o >> 16)
}

// BCDDevice returns the device release number.
func (o ProductVDO) BCDDevice() uint16 {
	return uint16(o)
}

// AMAVDO is the Alternate Mode Adapter VDO of a Discover Identity response.
type AMAVDO uint32

// USB superspeed support advertised by an AMA.
const (
	AMAUSB2Only      uint8 = 0
	AMAUSB31Gen1     uint8 = 1
	AMAUSB31Gen2     uint8 = 2
	AMABillboardOnly uint8 = 3
)

// AMA describes the fields of an AMAVDO.
type AMA struct {
	HWVersion     uint8
	FWVersion     uint8
	SSTX1         bool
	SSTX2         bool
	SSRX1         bool
	SSRX2         bool
	VCONNPower    uint8
	VCONNRequired bool
	VBUSRequired  bool
	USBSS         uint8
}

// MakeAMAVDO encodes a.
func MakeAMAVDO(a AMA) AMAVDO {
	o := AMAVDO(a.HWVersion&0b111)<<28 |
		AMAVDO(a.FWVersion&0b111)<<24 |
		AMAVDO(a.VCONNPower&0b11)<<5 |
		AMAVDO(a.USBSS&0b111)
	o |= amaBit(a.SSTX1, 11) | amaBit(a.SSTX2, 10) | amaBit(a.SSRX1, 9) | amaBit(a.SSRX2, 8)
	o |= amaBit(a.VCONNRequired, 4) | amaBit(a.VBUSRequired, 3)
	return o
}

func amaBit(set bool, pos uint) AMAVDO {
	if set {
		return 1 << pos
	}
	return 0
}

// VCONNRequired returns true if the adapter needs VCONN.
func (o AMAVDO) VCONNRequired() bool {
	return o&(1<<4) != 0
}

// VBUSRequired returns true if the adapter needs VBUS.
func (o AMAVDO) VBUSRequired() bool {
	return o&(1<<3) != 0
}

// USBSS returns the superspeed signaling support field.
func (o AMAVDO) USBSS() uint8 {
	return uint8(o & 0b111)
}

// SVIDVDO carries two SVIDs of a Discover SVIDs response. A zero SVID
// terminates the list.
type SVIDVDO uint32

// MakeSVIDVDO returns a VDO holding svid0 in the upper and svid1 in the lower
// half.
func MakeSVIDVDO(svid0, svid1 uint16) SVIDVDO {
	return SVIDVDO(svid0)<<16 | SVIDVDO(svid1)
}

// SVID0 returns the first SVID.
func (o SVIDVDO) SVID0() uint16 {
	return uint16(o >> 16)
}

// SVID1 returns the second SVID.
func (o SVIDVDO) SVID1() uint16 {
	return uint16(o)
}
