package pdmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVDMHeaderLayout(t *testing.T) {
	h := NewVDMHeader(SVIDDisplayPort, CommandDPConfig)
	h.SetVersion(VDMVersion20)
	h.SetObjectPosition(1)
	h.SetCommandType(CommandTypeACK)
	assert.Equal(t, VDMHeader(0xff01_a151), h)

	assert.Equal(t, SVIDDisplayPort, h.SVID())
	assert.True(t, h.Structured())
	assert.Equal(t, VDMVersion20, h.Version())
	assert.Equal(t, uint8(1), h.ObjectPosition())
	assert.Equal(t, CommandTypeACK, h.CommandType())
	assert.Equal(t, CommandDPConfig, h.Command())

	h.SetStructured(false)
	h.SetSVID(SVIDPowerDelivery)
	assert.False(t, h.Structured())
	assert.Equal(t, SVIDPowerDelivery, h.SVID())
	assert.Equal(t, CommandDPConfig, h.Command(), "other fields survive")
}

func TestVDMVersionFor(t *testing.T) {
	assert.Equal(t, VDMVersion10, VDMVersionFor(Revision20))
	assert.Equal(t, VDMVersion20, VDMVersionFor(Revision30))
}

func TestFixedSupplyPDO(t *testing.T) {
	o := MakeFixedSupplyPDO(9000, 3000, 0)
	assert.Equal(t, FixedSupplyPDO(180<<10|300), o)
	assert.Equal(t, uint16(9000), o.Voltage())
	assert.Equal(t, uint16(3000), o.MaxCurrent())
	assert.Equal(t, PDOTypeFixedSupply, PDO(o).Type())
	assert.Equal(t, uint16(9000), PDO(o).Voltage())
}

func TestBatteryAndVariablePDO(t *testing.T) {
	b := MakeBatteryPDO(5000, 12000, 30000)
	assert.Equal(t, PDOTypeBattery, PDO(b).Type())
	assert.Equal(t, uint16(5000), b.MinVoltage())
	assert.Equal(t, uint16(12000), b.MaxVoltage())
	assert.Equal(t, uint32(30000), b.MaxPower())

	v := MakeVariablePDO(5000, 20000, 2000)
	assert.Equal(t, PDOTypeVariableSupply, PDO(v).Type())
	assert.Equal(t, uint16(20000), v.MaxVoltage())
	assert.Equal(t, uint16(2000), v.MaxCurrent())
}

func TestAugmentedPDOHasNoVoltage(t *testing.T) {
	o := PDO(uint32(PDOTypeAugmented)<<30 | 0xfffff)
	assert.Equal(t, PDOTypeAugmented, o.Type())
	assert.Zero(t, o.Voltage())
}

func TestRequestDO(t *testing.T) {
	r := MakeFixedRequestDO(2, 1500, 3000, RequestCapabilityMismatch)
	assert.Equal(t, uint8(2), r.SelectedObjectPosition())
	assert.Equal(t, uint16(1500), r.FixedOperatingCurrent())
	assert.Equal(t, uint16(3000), r.FixedMaxOperatingCurrent())
	assert.True(t, r.CapabilityMismatch())
	assert.False(t, r.GiveBack())
	assert.Equal(t, RequestDO(2<<28|1<<26|150<<10|300), r)

	r.SetGiveBack(true)
	r.SetCapabilityMismatch(false)
	assert.True(t, r.GiveBack())
	assert.False(t, r.CapabilityMismatch())

	b := MakeBatteryRequestDO(1, 15000, 20000, 0)
	assert.Equal(t, uint32(15000), b.BatteryOperatingPower())
	assert.Equal(t, uint32(20000), b.BatteryMaxOperatingPower())
}

func TestDPVDOs(t *testing.T) {
	m := MakeDPModeVDO(DPMode{
		UFPDPins:   DPPinC | DPPinD,
		Receptacle: true,
		Signaling:  DPSignalingV13,
		Capability: DPPortSink,
	})
	assert.Equal(t, DPModeVDO(0x000c0045), m)
	assert.Equal(t, DPPinC|DPPinD, m.PinCaps())
	assert.Equal(t, DPPortSink, m.Capability())

	plug := MakeDPModeVDO(DPMode{DFPDPins: DPPinE, Signaling: DPSignalingV13, Capability: DPPortSink})
	assert.Equal(t, DPPinE, plug.PinCaps())

	s := MakeDPStatusVDO(DPStatus{HPD: true, Enabled: true, Connected: DPConnectedUFPD})
	assert.Equal(t, DPStatusVDO(0x8a), s)
	assert.True(t, s.HPD())
	assert.False(t, s.IRQHPD())
	assert.False(t, s.ExitRequest())
	assert.Equal(t, DPConnectedUFPD, s.Connected())

	c := MakeDPConfigVDO(DPPinC, DPSignalingV13, DPConfigUFPD)
	assert.Equal(t, DPConfigVDO(0x0406), c)
	assert.Equal(t, DPPinC, c.Pin())
	assert.True(t, c.DPOn())
	assert.False(t, MakeDPConfigVDO(0, 0, DPConfigUSB).DPOn())
}

func TestMessageBytes(t *testing.T) {
	var m Message
	m.SetType(TypeVendorDefined)
	m.SetRevision(Revision30)
	m.SetID(5)
	m.SetObjects([]uint32{uint32(NewVDMHeader(SVIDPowerDelivery, CommandDiscoverIdentity))})
	assert.True(t, m.IsVDM())

	var buf [MaxMessageBytes]byte
	n := m.ToBytes(buf[:])
	assert.Equal(t, uint8(6), n)

	var got Message
	assert.True(t, got.FromBytes(buf[:n]))
	assert.Equal(t, m.Header, got.Header)
	assert.Equal(t, m.Objects(), got.Objects())
	assert.Equal(t, uint8(5), got.ID())
}
