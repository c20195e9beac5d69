package tcdp

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcvdm"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func initMsg(svid uint16, cmd pdmsg.Command, opos uint8, data ...uint32) []uint32 {
	h := pdmsg.NewVDMHeader(svid, cmd)
	h.SetObjectPosition(opos)
	return append([]uint32{uint32(h)}, data...)
}

func cmdType(words []uint32) pdmsg.CommandType {
	return pdmsg.VDMHeader(words[0]).CommandType()
}

func newUFP() (*tcvdm.Engine, *tcvdm.State, *Sink) {
	sink := NewSink(Identity{PID: 0x5002, BCDDevice: 0x0100, HWVersion: 1, FWVersion: 2}, WithSinkLogger(quiet))
	e := tcvdm.New(tcvdm.Config{AltMode: true}, tcvdm.WithResponder(sink), tcvdm.WithLogger(quiet))
	return e, tcvdm.NewState(0), sink
}

func TestModeVDO(t *testing.T) {
	assert.Equal(t, pdmsg.DPModeVDO(0x000c0045), ModeVDO())
}

func TestSinkIdentity(t *testing.T) {
	e, s, _ := newUFP()
	out, send := e.HandleInbound(s, initMsg(pdmsg.SVIDPowerDelivery, pdmsg.CommandDiscoverIdentity, 0))
	require.True(t, send)
	require.Len(t, out, 5)
	assert.Equal(t, pdmsg.CommandTypeACK, cmdType(out))

	id := pdmsg.IDHeaderVDO(out[1])
	assert.Equal(t, VIDGoogle, id.VID())
	assert.Equal(t, pdmsg.ProductTypeAMA, id.ProductType())
	assert.True(t, id.Modal())
	assert.Zero(t, out[2])
	assert.Equal(t, uint16(0x5002), pdmsg.ProductVDO(out[3]).PID())
	assert.Equal(t, uint16(0x0100), pdmsg.ProductVDO(out[3]).BCDDevice())
	ama := pdmsg.AMAVDO(out[4])
	assert.True(t, ama.VBUSRequired())
	assert.False(t, ama.VCONNRequired())
	assert.Equal(t, pdmsg.AMABillboardOnly, ama.USBSS())
}

func TestSinkDiscovery(t *testing.T) {
	e, s, _ := newUFP()

	out, _ := e.HandleInbound(s, initMsg(pdmsg.SVIDPowerDelivery, pdmsg.CommandDiscoverSVIDs, 0))
	require.Len(t, out, 2)
	assert.Equal(t, pdmsg.SVIDDisplayPort, pdmsg.SVIDVDO(out[1]).SVID0())
	assert.Zero(t, pdmsg.SVIDVDO(out[1]).SVID1())

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDiscoverModes, 0))
	require.Len(t, out, 2)
	assert.Equal(t, uint32(ModeVDO()), out[1])

	out, _ = e.HandleInbound(s, initMsg(0x1234, pdmsg.CommandDiscoverModes, 0))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out))
}

func TestSinkEnterMode(t *testing.T) {
	tests := []struct {
		name string
		svid uint16
		opos uint8
		want pdmsg.CommandType
	}{
		{"displayport", pdmsg.SVIDDisplayPort, 1, pdmsg.CommandTypeACK},
		{"position 2", pdmsg.SVIDDisplayPort, 2, pdmsg.CommandTypeNAK},
		{"position 0", pdmsg.SVIDDisplayPort, 0, pdmsg.CommandTypeNAK},
		{"other svid", 0x1234, 1, pdmsg.CommandTypeNAK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s, sink := newUFP()
			out, send := e.HandleInbound(s, initMsg(tt.svid, pdmsg.CommandEnterMode, tt.opos))
			require.True(t, send)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, cmdType(out))
			assert.Equal(t, tt.want == pdmsg.CommandTypeACK, sink.Active())
		})
	}
}

func TestSinkStatusAndConfig(t *testing.T) {
	e, s, sink := newUFP()

	out, _ := e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus, 1, 0))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out), "status before entry")

	e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandEnterMode, 1))

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus, 2, 0))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out), "wrong position")

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus, 1, 0))
	require.Len(t, out, 2)
	assert.Equal(t, pdmsg.CommandTypeACK, cmdType(out))
	st := pdmsg.DPStatusVDO(out[1])
	assert.False(t, st.HPD())
	assert.False(t, st.Enabled())
	assert.False(t, st.IRQHPD())
	assert.False(t, st.ExitRequest())
	assert.Equal(t, pdmsg.DPConnectedUFPD, st.Connected())

	usb := pdmsg.MakeDPConfigVDO(0, 0, pdmsg.DPConfigUSB)
	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig, 1, uint32(usb)))
	require.Len(t, out, 1)
	assert.Equal(t, pdmsg.CommandTypeACK, cmdType(out))
	assert.False(t, sink.Enabled())

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig, 1))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out), "configure without data")

	dp := pdmsg.MakeDPConfigVDO(pdmsg.DPPinC, pdmsg.DPSignalingV13, pdmsg.DPConfigUFPD)
	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig, 1, uint32(dp)))
	require.Len(t, out, 1)
	assert.Equal(t, pdmsg.CommandTypeACK, cmdType(out))
	assert.True(t, sink.Enabled())

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus, 1, 0))
	require.Len(t, out, 2)
	assert.True(t, pdmsg.DPStatusVDO(out[1]).HPD())
	assert.True(t, pdmsg.DPStatusVDO(out[1]).Enabled())

	out, _ = e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, 20, 1))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out), "unknown DisplayPort command")
}

func TestSinkExitMode(t *testing.T) {
	e, s, sink := newUFP()
	e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandEnterMode, 1))
	dp := pdmsg.MakeDPConfigVDO(pdmsg.DPPinD, pdmsg.DPSignalingV13, pdmsg.DPConfigUFPD)
	e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig, 1, uint32(dp)))
	require.True(t, sink.Enabled())

	for i := 0; i < 2; i++ {
		out, send := e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandExitMode, 1))
		require.True(t, send)
		require.Len(t, out, 1)
		assert.Equal(t, pdmsg.CommandTypeACK, cmdType(out))
		assert.False(t, sink.Active())
		assert.False(t, sink.Enabled())
	}

	out, _ := e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPStatus, 1, 0))
	assert.Equal(t, pdmsg.CommandTypeNAK, cmdType(out))
}

func TestSinkPendingHPD(t *testing.T) {
	e, s, sink := newUFP()
	_, _, ok := sink.PendingHPD()
	assert.False(t, ok, "not entered")

	e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandEnterMode, 1))
	_, _, ok = sink.PendingHPD()
	assert.False(t, ok, "not configured")

	dp := pdmsg.MakeDPConfigVDO(pdmsg.DPPinC, pdmsg.DPSignalingV13, pdmsg.DPConfigUFPD)
	e.HandleInbound(s, initMsg(pdmsg.SVIDDisplayPort, pdmsg.CommandDPConfig, 1, uint32(dp)))

	st, opos, ok := sink.PendingHPD()
	require.True(t, ok)
	assert.Equal(t, uint8(1), opos)
	assert.True(t, st.HPD())
	_, _, ok = sink.PendingHPD()
	assert.False(t, ok, "sent once")

	sink.Reset()
	assert.False(t, sink.Enabled())
	_, _, ok = sink.PendingHPD()
	assert.False(t, ok)
}
