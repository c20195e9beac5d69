package tcdp

import (
	"math/bits"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/epdlink/go-typec/pdmsg"
)

func receptacle(pins uint8) pdmsg.DPModeVDO {
	return pdmsg.MakeDPModeVDO(pdmsg.DPMode{
		UFPDPins:   pins,
		Receptacle: true,
		Signaling:  pdmsg.DPSignalingV13,
		Capability: pdmsg.DPPortSink,
	})
}

func TestSelectPinMode(t *testing.T) {
	mf := pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{MultiFunction: true})

	tests := []struct {
		name   string
		caps   pdmsg.DPModeVDO
		status pdmsg.DPStatusVDO
		want   uint8
	}{
		{"C and D without multi-function", receptacle(pdmsg.DPPinC | pdmsg.DPPinD), 0, pdmsg.DPPinC},
		{"C and D with multi-function", receptacle(pdmsg.DPPinC | pdmsg.DPPinD), mf, pdmsg.DPPinC},
		{"D over E", receptacle(pdmsg.DPPinD | pdmsg.DPPinE), mf, pdmsg.DPPinD},
		{"D masked leaves E", receptacle(pdmsg.DPPinD | pdmsg.DPPinE), 0, pdmsg.DPPinE},
		{"C over E", receptacle(pdmsg.DPPinC | pdmsg.DPPinE | pdmsg.DPPinF), mf, pdmsg.DPPinC},
		{"E and F", receptacle(pdmsg.DPPinE | pdmsg.DPPinF), mf, pdmsg.DPPinE},
		{"F needs multi-function", receptacle(pdmsg.DPPinF), 0, 0},
		{"USB Gen2 only", receptacle(pdmsg.DPPinA | pdmsg.DPPinB), mf, 0},
		{"nothing", receptacle(0), mf, 0},
		{"plug", pdmsg.MakeDPModeVDO(pdmsg.DPMode{DFPDPins: pdmsg.DPPinE, Capability: pdmsg.DPPortSink}), 0, pdmsg.DPPinE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectPinMode(tt.caps, tt.status))
		})
	}
}

func TestSelectPinModeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("single advertised pin, never USB Gen2", prop.ForAll(
		func(pins uint8, mf bool) bool {
			status := pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{MultiFunction: mf})
			got := SelectPinMode(receptacle(pins), status)
			if got == 0 {
				return true
			}
			return bits.OnesCount8(got) == 1 && got&pins != 0 && got&pdmsg.DPPinUSBGen2 == 0
		},
		gen.UInt8Range(0, 0x3f),
		gen.Bool(),
	))

	properties.Property("C or D win over E and F", prop.ForAll(
		func(pins uint8) bool {
			got := SelectPinMode(receptacle(pins|pdmsg.DPPinC), pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{MultiFunction: true}))
			return got == pdmsg.DPPinC
		},
		gen.UInt8Range(0, 0x3f).Map(func(v uint8) uint8 { return v &^ pdmsg.DPPinUSBGen2 }),
	))

	properties.Property("multi-function pins need preference", prop.ForAll(
		func(pins uint8) bool {
			return SelectPinMode(receptacle(pins), 0)&pdmsg.DPPinMultiFunction == 0
		},
		gen.UInt8Range(0, 0x3f),
	))

	properties.TestingRun(t)
}

func TestPinName(t *testing.T) {
	assert.Equal(t, "C", PinName(pdmsg.DPPinC))
	assert.Equal(t, "F", PinName(pdmsg.DPPinF))
	assert.Equal(t, "-", PinName(0))
	assert.Equal(t, "-", PinName(pdmsg.DPPinC|pdmsg.DPPinD))
	assert.Equal(t, "-", PinName(1<<6))
}

func TestMuxModeForPin(t *testing.T) {
	assert.Equal(t, MuxUSB, MuxModeForPin(0))
	assert.Equal(t, MuxDP, MuxModeForPin(pdmsg.DPPinC))
	assert.Equal(t, MuxDP, MuxModeForPin(pdmsg.DPPinE))
	assert.Equal(t, MuxDock, MuxModeForPin(pdmsg.DPPinD))
	assert.Equal(t, MuxDock, MuxModeForPin(pdmsg.DPPinF))
	assert.Equal(t, "dock", MuxDock.String())
	assert.Equal(t, "unknown", MuxMode(9).String())
}
