package tcdp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcvdm"
)

type fakeMux struct {
	modes []MuxMode
	err   error
}

func (f *fakeMux) SetMux(port int, mode MuxMode) error {
	f.modes = append(f.modes, mode)
	return f.err
}

// exchange passes messages between a DFP and a UFP engine until one side has
// nothing more to send.
func exchange(t *testing.T, dfp *tcvdm.Engine, ds *tcvdm.State, ufp *tcvdm.Engine, us *tcvdm.State, out []uint32) {
	t.Helper()
	for i := 0; i < 16; i++ {
		reply, ok := ufp.HandleInbound(us, out)
		if !ok {
			return
		}
		out, ok = dfp.HandleInbound(ds, reply)
		if !ok {
			return
		}
	}
	t.Fatal("exchange did not settle")
}

func TestSourceAgainstSink(t *testing.T) {
	mux := &fakeMux{}
	src := NewSource(WithMux(mux), WithSourceLogger(quiet))
	dfp := tcvdm.New(tcvdm.Config{AltMode: true, DFP: true}, tcvdm.WithAltModes(src), tcvdm.WithLogger(quiet))
	ds := tcvdm.NewState(0)
	ufp, us, sink := newUFP()

	out, ok := dfp.Start(ds)
	require.True(t, ok)
	exchange(t, dfp, ds, ufp, us, out)

	assert.Equal(t, tcvdm.PhaseModeActive, ds.Phase())
	assert.Equal(t, VIDGoogle, ds.VID())
	assert.Equal(t, uint16(0x5002), ds.PID())
	opos, ok := ds.ActiveModePosition(pdmsg.SVIDDisplayPort)
	require.True(t, ok)
	assert.Equal(t, uint8(1), opos)

	assert.True(t, sink.Active())
	assert.True(t, sink.Enabled())
	assert.Equal(t, pdmsg.DPPinC, src.Pin(0))
	assert.Equal(t, []MuxMode{MuxNone, MuxDP}, mux.modes)
	assert.False(t, src.HPD(0))

	st, hpdPos, ok := sink.PendingHPD()
	require.True(t, ok)
	attn, ok := ufp.Attention(us, pdmsg.SVIDDisplayPort, hpdPos, uint32(st))
	require.True(t, ok)
	_, reply := dfp.HandleInbound(ds, attn)
	assert.False(t, reply)
	assert.True(t, src.HPD(0))

	out, ok = dfp.ExitMode(ds, pdmsg.SVIDDisplayPort, 1)
	require.True(t, ok)
	assert.Equal(t, MuxUSB, mux.modes[len(mux.modes)-1])
	exchange(t, dfp, ds, ufp, us, out)
	assert.Equal(t, tcvdm.PhaseDisconnected, ds.Phase())
	assert.False(t, sink.Active())
	assert.False(t, sink.Enabled())
	assert.False(t, src.HPD(0))
	assert.Zero(t, src.Pin(0))
}

func TestSourceEnterRefusesSourceOnlyPartner(t *testing.T) {
	src := NewSource(WithSourceLogger(quiet))
	caps := pdmsg.MakeDPModeVDO(pdmsg.DPMode{UFPDPins: pdmsg.DPPinC, Receptacle: true, Capability: pdmsg.DPPortSource})
	err := src.Enter(tcvdm.Mode{SVID: pdmsg.SVIDDisplayPort, Position: 1, Caps: uint32(caps)})
	assert.True(t, errors.Is(err, typec.ErrPolicyReject))

	assert.NoError(t, src.Enter(tcvdm.Mode{SVID: pdmsg.SVIDDisplayPort, Position: 1, Caps: uint32(receptacle(pdmsg.DPPinC))}))
}

func TestSourceConfig(t *testing.T) {
	mux := &fakeMux{err: errors.New("stuck")}
	src := NewSource(WithMux(mux), WithSourceLogger(quiet))
	m := tcvdm.Mode{Port: 2, SVID: pdmsg.SVIDDisplayPort, Position: 1, Caps: uint32(receptacle(pdmsg.DPPinD | pdmsg.DPPinE))}

	var vdm [pdmsg.MaxDataObjects]uint32
	n := src.Status(m, vdm[:])
	require.Equal(t, 2, n)
	h := pdmsg.VDMHeader(vdm[0])
	assert.Equal(t, pdmsg.CommandDPStatus, h.Command())
	assert.Equal(t, uint8(1), h.ObjectPosition())
	assert.Equal(t, pdmsg.DPConnectedDFPD, pdmsg.DPStatusVDO(vdm[1]).Connected())

	status := pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{MultiFunction: true, Connected: pdmsg.DPConnectedUFPD})
	n = src.Config(m, []uint32{0, uint32(status)}, vdm[:])
	require.Equal(t, 2, n)
	assert.Equal(t, pdmsg.CommandDPConfig, pdmsg.VDMHeader(vdm[0]).Command())
	cfg := pdmsg.DPConfigVDO(vdm[1])
	assert.Equal(t, pdmsg.DPPinD, cfg.Pin())
	assert.Equal(t, pdmsg.DPConfigUFPD, cfg.Config())
	assert.True(t, cfg.DPOn())
	assert.Equal(t, []MuxMode{MuxDock}, mux.modes)

	m.Caps = uint32(receptacle(pdmsg.DPPinA | pdmsg.DPPinB))
	assert.Zero(t, src.Config(m, []uint32{0, uint32(status)}, vdm[:]))
}

func TestSourceAttention(t *testing.T) {
	src := NewSource(WithSourceLogger(quiet))
	m := tcvdm.Mode{Port: 1, SVID: pdmsg.SVIDDisplayPort, Position: 1}

	src.Attention(m, []uint32{0})
	assert.False(t, src.HPD(1))

	hpd := pdmsg.MakeDPStatusVDO(pdmsg.DPStatus{HPD: true, Enabled: true})
	src.Attention(m, []uint32{0, uint32(hpd)})
	assert.True(t, src.HPD(1))
	assert.False(t, src.HPD(0))

	src.Exit(m)
	assert.False(t, src.HPD(1))
}
