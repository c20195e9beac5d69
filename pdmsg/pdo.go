package pdmsg

// PDO is a generic Power Data Object. Based on its type, it should be
// converted to specific PDO type to allow extracting various fields.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() PDOType {
	return PDOType((o >> 30) & 0b11)
}

// Voltage returns the voltage in millivolts held in bits 19..10, which is the
// fixed voltage of a fixed supply and the minimum voltage of battery and
// variable supplies. It returns 0 for augmented PDOs, whose layout differs.
// A zero result marks a degenerate PDO that must not be selected.
func (o PDO) Voltage() uint16 {
	if o.Type() == PDOTypeAugmented {
		return 0
	}
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// PDOType represents the type of a power data object.
type PDOType uint8

// Power data object types.
const (
	PDOTypeFixedSupply    PDOType = 0b00
	PDOTypeBattery        PDOType = 0b01
	PDOTypeVariableSupply PDOType = 0b10
	PDOTypeAugmented      PDOType = 0b11
)

func (t PDOType) String() string {
	switch t {
	case PDOTypeFixedSupply:
		return "fixed"
	case PDOTypeBattery:
		return "battery"
	case PDOTypeVariableSupply:
		return "variable"
	case PDOTypeAugmented:
		return "augmented"
	default:
		return "INVALID"
	}
}

// FixedSupplyPDO represents a Fixed Supply Power Data Object
type FixedSupplyPDO uint32

// Fixed supply flags. Only meaningful in the first (vSafe5V) PDO of a
// capabilities message.
const (
	FixedDualRolePower    FixedSupplyPDO = 1 << 29
	FixedUSBSuspend       FixedSupplyPDO = 1 << 28
	FixedUnconstrainedPwr FixedSupplyPDO = 1 << 27
	FixedUSBCommCapable   FixedSupplyPDO = 1 << 26
	FixedDualRoleData     FixedSupplyPDO = 1 << 25
	fixedFlagsMask        FixedSupplyPDO = 0b11111 << 25
)

// NewFixedSupplyPDO returns a new blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// MakeFixedSupplyPDO returns a fixed supply PDO for the given voltage in
// millivolts, current in milliamps and flags.
func MakeFixedSupplyPDO(mv, ma uint16, flags FixedSupplyPDO) FixedSupplyPDO {
	o := flags & fixedFlagsMask
	o.SetVoltage(mv)
	o.SetMaxCurrent(ma)
	return o
}

// Voltage returns voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetVoltage will round the given voltage to the nearest 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = (*o & ^((FixedSupplyPDO(1)<<10 - 1) << 10)) | ((FixedSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns maximum current in milliamps
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent will round the given current to the nearest 10mA.
func (o *FixedSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(FixedSupplyPDO(1)<<10 - 1)) | (FixedSupplyPDO(v)/10)&(1<<10-1)
}

// Flags returns the flag bits 29..25.
func (o FixedSupplyPDO) Flags() FixedSupplyPDO {
	return o & fixedFlagsMask
}

// BatteryPDO represents a Battery Supply Power Data Object.
type BatteryPDO uint32

// MakeBatteryPDO returns a battery PDO. Voltages are in millivolts and power
// in milliwatts.
func MakeBatteryPDO(minMV, maxMV uint16, mw uint32) BatteryPDO {
	o := BatteryPDO(PDOTypeBattery) << 30
	o.SetMinVoltage(minMV)
	o.SetMaxVoltage(maxMV)
	o.SetMaxPower(mw)
	return o
}

// MaxVoltage returns the maximum voltage in millivolts.
func (o BatteryPDO) MaxVoltage() uint16 {
	return uint16(((o >> 20) & (1<<10 - 1)) * 50)
}

// SetMaxVoltage sets the maximum voltage rounded to 50mV.
func (o *BatteryPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((BatteryPDO(1)<<10 - 1) << 20)) | ((BatteryPDO(v)/50)&(1<<10-1))<<20
}

// MinVoltage returns the minimum voltage in millivolts.
func (o BatteryPDO) MinVoltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetMinVoltage sets the minimum voltage rounded to 50mV.
func (o *BatteryPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((BatteryPDO(1)<<10 - 1) << 10)) | ((BatteryPDO(v)/50)&(1<<10-1))<<10
}

// MaxPower returns the maximum power in milliwatts.
func (o BatteryPDO) MaxPower() uint32 {
	return uint32(o&(1<<10-1)) * 250
}

// SetMaxPower sets the maximum power rounded to 250mW.
func (o *BatteryPDO) SetMaxPower(mw uint32) {
	*o = (*o & ^(BatteryPDO(1)<<10 - 1)) | (BatteryPDO(mw)/250)&(1<<10-1)
}

// VariablePDO represents a Variable Supply (non-battery) Power Data Object.
type VariablePDO uint32

// MakeVariablePDO returns a variable supply PDO. Voltages are in millivolts
// and current in milliamps.
func MakeVariablePDO(minMV, maxMV, ma uint16) VariablePDO {
	o := VariablePDO(PDOTypeVariableSupply) << 30
	o.SetMinVoltage(minMV)
	o.SetMaxVoltage(maxMV)
	o.SetMaxCurrent(ma)
	return o
}

// MaxVoltage returns the maximum voltage in millivolts.
func (o VariablePDO) MaxVoltage() uint16 {
	return uint16(((o >> 20) & (1<<10 - 1)) * 50)
}

// SetMaxVoltage sets the maximum voltage rounded to 50mV.
func (o *VariablePDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((VariablePDO(1)<<10 - 1) << 20)) | ((VariablePDO(v)/50)&(1<<10-1))<<20
}

// MinVoltage returns the minimum voltage in millivolts.
func (o VariablePDO) MinVoltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetMinVoltage sets the minimum voltage rounded to 50mV.
func (o *VariablePDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((VariablePDO(1)<<10 - 1) << 10)) | ((VariablePDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns the maximum current in milliamps.
func (o VariablePDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent sets the maximum current rounded to 10mA.
func (o *VariablePDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(VariablePDO(1)<<10 - 1)) | (VariablePDO(v)/10)&(1<<10-1)
}

// RequestDO represents a Request Data Object.
type RequestDO uint32

// EmptyRequestDO is returned by device policy managers to indicate that they do
// not accept any of the power profiles supported by the power source.
const EmptyRequestDO RequestDO = 0

// Request flags.
const (
	RequestGiveBack           RequestDO = 1 << 27
	RequestCapabilityMismatch RequestDO = 1 << 26
	RequestUSBCommCapable     RequestDO = 1 << 25
	RequestNoUSBSuspend       RequestDO = 1 << 24
	requestFlagsMask          RequestDO = 0b1111 << 24
)

// MakeFixedRequestDO returns a request for a fixed or variable supply PDO at
// 1-based position pos. op and max are in milliamps; max is the minimum
// operating current instead when GiveBack is set in flags.
func MakeFixedRequestDO(pos uint8, op, max uint16, flags RequestDO) RequestDO {
	o := flags & requestFlagsMask
	o.SetSelectedObjectPosition(pos)
	o.SetFixedOperatingCurrent(op)
	o.SetFixedMaxOperatingCurrent(max)
	return o
}

// MakeBatteryRequestDO returns a request for a battery PDO at 1-based position
// pos. op and max are in milliwatts; max is the minimum operating power
// instead when GiveBack is set in flags.
func MakeBatteryRequestDO(pos uint8, op, max uint32, flags RequestDO) RequestDO {
	o := flags & requestFlagsMask
	o.SetSelectedObjectPosition(pos)
	o.SetBatteryOperatingPower(op)
	o.SetBatteryMaxOperatingPower(max)
	return o
}

// SelectedObjectPosition returns the position number of the PDO in the source
// capability message, starting at 1.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8(o>>28) & 0b1111
}

// SetSelectedObjectPosition sets the position number of the PDO the source
// capability message, starting at 1.
func (o *RequestDO) SetSelectedObjectPosition(p uint8) {
	*o = (*o & ^(RequestDO(0b1111) << 28)) | RequestDO(p&0b1111)<<28
}

// CapabilityMismatch returns true if capability mismatch flag of the RDO is
// set.
func (o RequestDO) CapabilityMismatch() bool {
	return o&RequestCapabilityMismatch != 0
}

// SetCapabilityMismatch sets the capability mismatch flag of the RDO.
func (o *RequestDO) SetCapabilityMismatch(m bool) {
	o.setFlag(RequestCapabilityMismatch, m)
}

// GiveBack returns true if the sink declared it can reduce its load on a
// GotoMin request.
func (o RequestDO) GiveBack() bool {
	return o&RequestGiveBack != 0
}

// SetGiveBack sets the GiveBack flag of the RDO.
func (o *RequestDO) SetGiveBack(g bool) {
	o.setFlag(RequestGiveBack, g)
}

func (o *RequestDO) setFlag(f RequestDO, v bool) {
	if v {
		*o |= f
	} else {
		*o &= ^f
	}
}

// FixedOperatingCurrent returns current in milliamps for fixed request
// objects.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 10)
}

// SetFixedOperatingCurrent sets current in milliamps rounded to nearest 10mA
// for fixed request objects.
func (o *RequestDO) SetFixedOperatingCurrent(c uint16) {
	*o = (*o & ^((RequestDO(1)<<10 - 1) << 10)) | ((RequestDO(c)/10)&(1<<10-1))<<10
}

// FixedMaxOperatingCurrent returns current in milliamps for fixed request
// objects. With GiveBack set this is the minimum operating current.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetFixedMaxOperatingCurrent sets current in milliamps rounded to nearest
// 10mA for fixed request objects.
func (o *RequestDO) SetFixedMaxOperatingCurrent(c uint16) {
	*o = (*o & ^(RequestDO(1)<<10 - 1)) | ((RequestDO(c) / 10) & (1<<10 - 1))
}

// BatteryOperatingPower returns power in milliwatts for battery request
// objects.
func (o RequestDO) BatteryOperatingPower() uint32 {
	return uint32((o>>10)&(1<<10-1)) * 250
}

// SetBatteryOperatingPower sets power in milliwatts rounded to 250mW for
// battery request objects.
func (o *RequestDO) SetBatteryOperatingPower(mw uint32) {
	*o = (*o & ^((RequestDO(1)<<10 - 1) << 10)) | ((RequestDO(mw)/250)&(1<<10-1))<<10
}

// BatteryMaxOperatingPower returns power in milliwatts for battery request
// objects. With GiveBack set this is the minimum operating power.
func (o RequestDO) BatteryMaxOperatingPower() uint32 {
	return uint32(o&(1<<10-1)) * 250
}

// SetBatteryMaxOperatingPower sets power in milliwatts rounded to 250mW for
// battery request objects.
func (o *RequestDO) SetBatteryMaxOperatingPower(mw uint32) {
	*o = (*o & ^(RequestDO(1)<<10 - 1)) | (RequestDO(mw)/250)&(1<<10-1)
}
