package pdmsg

// DisplayPort pin assignments as used in DP mode capability and
// configuration VDOs.
//
//	NAME | SIGNALING | OUTPUT TYPE | MULTI-FUNCTION | PIN CONFIG
//	A    | USB G2    | ?           | no             | 00_0001
//	B    | USB G2    | ?           | yes            | 00_0010
//	C    | DP        | CONVERTED   | no             | 00_0100
//	D    | DP        | CONVERTED   | yes            | 00_1000
//	E    | DP        | DP          | no             | 01_0000
//	F    | DP        | DP          | yes            | 10_0000
const (
	DPPinA uint8 = 1 << 0
	DPPinB uint8 = 1 << 1
	DPPinC uint8 = 1 << 2
	DPPinD uint8 = 1 << 3
	DPPinE uint8 = 1 << 4
	DPPinF uint8 = 1 << 5

	// DPPinMultiFunction selects assignments that leave lanes for USB data.
	DPPinMultiFunction = DPPinB | DPPinD | DPPinF
	// DPPinUSBGen2 selects assignments signaling at USB Gen2 rates.
	DPPinUSBGen2 = DPPinA | DPPinB
)

// DisplayPort signaling bits.
const (
	DPSignalingV13  uint8 = 1 << 0
	DPSignalingGen2 uint8 = 1 << 1
)

// DPPort is the DisplayPort port capability of a mode VDO.
type DPPort uint8

// DisplayPort port capabilities.
const (
	DPPortSink   DPPort = 1 // UFP_D
	DPPortSource DPPort = 2 // DFP_D
	DPPortBoth   DPPort = 3
)

// DPModeVDO is a DisplayPort mode capability as returned in a Discover Modes
// response.
//
//	23..16  UFP_D pin assignments (receptacle) / DFP_D (plug)
//	15..8   DFP_D pin assignments (receptacle) / UFP_D (plug)
//	7       USB 2.0 signaling not used
//	6       receptacle indication (1 = receptacle, 0 = plug)
//	5..2    signaling
//	1..0    port capability
type DPModeVDO uint32

// DPMode describes the fields of a DPModeVDO.
type DPMode struct {
	UFPDPins   uint8
	DFPDPins   uint8
	NoUSB2     bool
	Receptacle bool
	Signaling  uint8
	Capability DPPort
}

// MakeDPModeVDO encodes m.
func MakeDPModeVDO(m DPMode) DPModeVDO {
	o := DPModeVDO(m.UFPDPins)<<16 |
		DPModeVDO(m.DFPDPins)<<8 |
		DPModeVDO(m.Signaling&0b1111)<<2 |
		DPModeVDO(m.Capability&0b11)
	if m.NoUSB2 {
		o |= 1 << 7
	}
	if m.Receptacle {
		o |= 1 << 6
	}
	return o
}

// Receptacle returns true if the partner is a receptacle rather than a plug.
func (o DPModeVDO) Receptacle() bool {
	return o&(1<<6) != 0
}

// Capability returns the DisplayPort port capability.
func (o DPModeVDO) Capability() DPPort {
	return DPPort(o & 0b11)
}

// Signaling returns the signaling bits.
func (o DPModeVDO) Signaling() uint8 {
	return uint8((o >> 2) & 0b1111)
}

// PinCaps returns the 6 bit UFP_D pin assignment set. The field holding it
// depends on whether the partner is a receptacle or a plug.
func (o DPModeVDO) PinCaps() uint8 {
	if o.Receptacle() {
		return uint8(o>>16) & 0x3f
	}
	return uint8(o>>8) & 0x3f
}

// DPStatusVDO is the data object of DP Status requests, responses and DP
// Attention messages.
//
//	8     IRQ_HPD
//	7     HPD state
//	6     exit DisplayPort mode request
//	5     USB configuration request
//	4     multi-function preferred
//	3     enabled
//	2     power low
//	1..0  connected (0 none, 1 DFP_D, 2 UFP_D, 3 both)
type DPStatusVDO uint32

// Connected values of a DPStatusVDO.
const (
	DPConnectedNone uint8 = 0
	DPConnectedDFPD uint8 = 1
	DPConnectedUFPD uint8 = 2
	DPConnectedBoth uint8 = 3
)

// DPStatus describes the fields of a DPStatusVDO.
type DPStatus struct {
	IRQHPD        bool
	HPD           bool
	ExitRequest   bool
	USBConfigReq  bool
	MultiFunction bool
	Enabled       bool
	PowerLow      bool
	Connected     uint8
}

// MakeDPStatusVDO encodes s.
func MakeDPStatusVDO(s DPStatus) DPStatusVDO {
	o := DPStatusVDO(s.Connected & 0b11)
	o |= dpBit(s.IRQHPD, 8) | dpBit(s.HPD, 7) | dpBit(s.ExitRequest, 6) | dpBit(s.USBConfigReq, 5)
	o |= dpBit(s.MultiFunction, 4) | dpBit(s.Enabled, 3) | dpBit(s.PowerLow, 2)
	return o
}

func dpBit(set bool, pos uint) DPStatusVDO {
	if set {
		return 1 << pos
	}
	return 0
}

// IRQHPD returns the IRQ_HPD bit.
func (o DPStatusVDO) IRQHPD() bool {
	return o&(1<<8) != 0
}

// HPD returns the HPD level.
func (o DPStatusVDO) HPD() bool {
	return o&(1<<7) != 0
}

// ExitRequest returns true if the partner asks to exit DisplayPort mode.
func (o DPStatusVDO) ExitRequest() bool {
	return o&(1<<6) != 0
}

// MultiFunction returns true if the partner prefers a multi-function pin
// assignment.
func (o DPStatusVDO) MultiFunction() bool {
	return o&(1<<4) != 0
}

// Enabled returns the enabled bit.
func (o DPStatusVDO) Enabled() bool {
	return o&(1<<3) != 0
}

// Connected returns the connected field.
func (o DPStatusVDO) Connected() uint8 {
	return uint8(o & 0b11)
}

// DPConfigVDO is the data object of a DP Configure request.
//
//	15..8  pin assignment
//	5..2   signaling
//	1..0   configuration (0 USB, 1 UFP_U as DFP_D, 2 UFP_U as UFP_D)
type DPConfigVDO uint32

// DisplayPort configurations.
const (
	DPConfigUSB  uint8 = 0
	DPConfigDFPD uint8 = 1
	DPConfigUFPD uint8 = 2
)

// MakeDPConfigVDO returns a configuration for pin assignment pin.
func MakeDPConfigVDO(pin, signaling, cfg uint8) DPConfigVDO {
	return DPConfigVDO(pin)<<8 | DPConfigVDO(signaling&0b1111)<<2 | DPConfigVDO(cfg&0b11)
}

// Pin returns the pin assignment.
func (o DPConfigVDO) Pin() uint8 {
	return uint8(o >> 8)
}

// Config returns the configuration field.
func (o DPConfigVDO) Config() uint8 {
	return uint8(o & 0b11)
}

// DPOn returns true if the configuration selects DisplayPort signaling.
func (o DPConfigVDO) DPOn() bool {
	c := o.Config()
	return c == DPConfigDFPD || c == DPConfigUFPD
}
