package tcdpm

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
)

func TestBuildRequest(t *testing.T) {
	srcCaps := []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 3000), fixed(15000, 3000), fixed(20000, 3000)}

	t.Run("max picks the best offer", func(t *testing.T) {
		b := NewBuilder(board20V())
		req, err := b.BuildRequest(srcCaps, RequestMax)
		require.NoError(t, err)
		assert.Equal(t, 3, req.Index)
		assert.Equal(t, uint8(4), req.RDO.SelectedObjectPosition())
		assert.Equal(t, uint16(3000), req.RDO.FixedOperatingCurrent())
		assert.Equal(t, uint16(3000), req.RDO.FixedMaxOperatingCurrent())
		assert.False(t, req.RDO.CapabilityMismatch())
		assert.False(t, req.RDO.GiveBack())
		assert.False(t, req.Fallback)
		assert.Equal(t, req, b.Last())
	})

	t.Run("vSafe5V forces the first PDO", func(t *testing.T) {
		b := NewBuilder(board20V())
		req, err := b.BuildRequest(srcCaps, RequestVSafe5V)
		require.NoError(t, err)
		assert.Equal(t, 0, req.Index)
		assert.Equal(t, uint32(5000), req.MilliVolts)
		assert.Equal(t, uint32(3000), req.MilliAmps)
	})

	t.Run("max voltage cap", func(t *testing.T) {
		b := NewBuilder(board20V())
		b.SetMaxVoltage(9000)
		assert.Equal(t, uint16(9000), b.MaxVoltage())
		req, err := b.BuildRequest(srcCaps, RequestMax)
		require.NoError(t, err)
		assert.Equal(t, 1, req.Index)
	})

	t.Run("capability mismatch below operating power", func(t *testing.T) {
		b := NewBuilder(DefaultBoardPolicy())
		req, err := b.BuildRequest([]pdmsg.PDO{fixed(5000, 400)}, RequestMax)
		require.NoError(t, err)
		assert.True(t, req.RDO.CapabilityMismatch())
		assert.Equal(t, uint16(400), req.RDO.FixedOperatingCurrent())
	})

	t.Run("give back reports the minimum", func(t *testing.T) {
		p := DefaultBoardPolicy()
		p.GiveBack = true
		p.MinCurrent = 500
		b := NewBuilder(p)
		req, err := b.BuildRequest([]pdmsg.PDO{fixed(5000, 3000)}, RequestMax)
		require.NoError(t, err)
		assert.True(t, req.RDO.GiveBack())
		assert.Equal(t, uint16(3000), req.RDO.FixedOperatingCurrent())
		assert.Equal(t, uint16(500), req.RDO.FixedMaxOperatingCurrent())
	})

	t.Run("battery request in milliwatts", func(t *testing.T) {
		b := NewBuilder(DefaultBoardPolicy())
		req, err := b.BuildRequest([]pdmsg.PDO{fixed(5000, 100), pdmsg.PDO(pdmsg.MakeBatteryPDO(5000, 5000, 10000))}, RequestMax)
		require.NoError(t, err)
		assert.Equal(t, 1, req.Index)
		assert.Equal(t, uint32(10000), req.RDO.BatteryOperatingPower())
		assert.Equal(t, uint32(10000), req.RDO.BatteryMaxOperatingPower())
		assert.False(t, req.RDO.CapabilityMismatch())
	})

	t.Run("fallback to vSafe5V", func(t *testing.T) {
		p := board20V()
		p.InputVoltages = []uint16{12000}
		b := NewBuilder(p)
		req, err := b.BuildRequest([]pdmsg.PDO{fixed(5000, 3000), fixed(9000, 3000)}, RequestMax)
		require.NoError(t, err)
		assert.True(t, req.Fallback)
		assert.Equal(t, 0, req.Index)
		assert.Equal(t, uint8(1), req.RDO.SelectedObjectPosition())
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := NewBuilder(DefaultBoardPolicy()).BuildRequest(nil, RequestMax)
		assert.ErrorIs(t, err, typec.ErrInvalidOffer)
	})

	t.Run("board check refuses", func(t *testing.T) {
		b := NewBuilder(DefaultBoardPolicy())
		b.SetRequestCheck(func(pdmsg.RequestDO, int) bool { return false })
		_, err := b.BuildRequest(srcCaps, RequestMax)
		assert.ErrorIs(t, err, typec.ErrPolicyReject)
		assert.Equal(t, pdmsg.EmptyRequestDO, b.EvaluateCapabilities(srcCaps))
		assert.Equal(t, Request{}, b.Last())
	})
}

func TestBuildRequestRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	b := NewBuilder(board20V())

	properties.Property("build, encode, decode keeps index, amount and mismatch", prop.ForAll(
		func(raw []uint32, n int, vsafe bool) bool {
			pdos := make([]pdmsg.PDO, n)
			for i := range pdos {
				pdos[i] = pdmsg.PDO(raw[i])
			}
			rt := RequestMax
			if vsafe {
				rt = RequestVSafe5V
			}
			req, err := b.BuildRequest(pdos, rt)
			if err != nil {
				return false
			}

			var m pdmsg.Message
			m.SetType(pdmsg.TypeRequest)
			m.SetObjects([]uint32{uint32(req.RDO)})
			var buf [pdmsg.MaxMessageBytes]byte
			n = int(m.ToBytes(buf[:]))
			var got pdmsg.Message
			if !got.FromBytes(buf[:n]) || got.DataObjectCount() != 1 {
				return false
			}
			rdo := pdmsg.RequestDO(got.Data[0])

			if int(rdo.SelectedObjectPosition()) != req.Index+1 {
				return false
			}
			var mismatch bool
			if pdos[req.Index].Type() == pdmsg.PDOTypeBattery {
				mw := req.MilliAmps * req.MilliVolts / 1000 / 250 * 250
				mismatch = mw < b.Policy().OperatingPower
				if rdo.BatteryOperatingPower() != mw {
					return false
				}
			} else {
				mismatch = req.MilliAmps*req.MilliVolts < b.Policy().OperatingPower*1000
				if uint32(rdo.FixedOperatingCurrent()) != req.MilliAmps {
					return false
				}
			}
			return rdo.CapabilityMismatch() == mismatch
		},
		gen.SliceOfN(pdmsg.MaxDataObjects, gen.UInt32()),
		gen.IntRange(1, pdmsg.MaxDataObjects),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestValidateRequest(t *testing.T) {
	src := []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 2000)}

	allow := func(pdmsg.RequestDO, int) bool { return true }
	only5V := func(rdo pdmsg.RequestDO, _ int) bool { return rdo.SelectedObjectPosition() == 1 }

	tests := []struct {
		name  string
		rdo   pdmsg.RequestDO
		check RequestCheck
		ok    bool
	}{
		{"within limits", pdmsg.MakeFixedRequestDO(2, 2000, 2000, 0), nil, true},
		{"operating current too high", pdmsg.MakeFixedRequestDO(2, 2500, 2500, 0), nil, false},
		{"max current too high", pdmsg.MakeFixedRequestDO(2, 1500, 2500, 0), nil, false},
		{"max current with mismatch", pdmsg.MakeFixedRequestDO(2, 1500, 2500, pdmsg.RequestCapabilityMismatch), nil, true},
		{"position zero", pdmsg.MakeFixedRequestDO(0, 100, 100, 0), nil, false},
		{"position beyond list", pdmsg.MakeFixedRequestDO(3, 100, 100, 0), nil, false},
		{"permissive hook position zero", pdmsg.MakeFixedRequestDO(0, 100, 100, 0), allow, false},
		{"permissive hook position beyond list", pdmsg.MakeFixedRequestDO(3, 1000, 1000, 0), allow, false},
		{"permissive hook within limits", pdmsg.MakeFixedRequestDO(2, 2000, 2000, 0), allow, true},
		{"permissive hook current too high", pdmsg.MakeFixedRequestDO(1, 3500, 3500, 0), allow, false},
		{"board refuses valid request", pdmsg.MakeFixedRequestDO(2, 1000, 1000, 0), only5V, false},
		{"board accepts 5V", pdmsg.MakeFixedRequestDO(1, 1000, 1000, 0), only5V, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = ValidateRequest(tt.rdo, src, tt.check) })
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, typec.ErrPolicyReject)
			}
		})
	}
}

func TestBoardPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultBoardPolicy().Validate())
	assert.NoError(t, board20V().Validate())

	p := DefaultBoardPolicy()
	p.MaxVoltage = 4000
	assert.Error(t, p.Validate())

	p = DefaultBoardPolicy()
	p.OperatingPower = p.MaxPower + 1
	assert.Error(t, p.Validate())

	p = DefaultBoardPolicy()
	p.GiveBack = true
	p.MinCurrent = p.MaxCurrent + 1
	assert.Error(t, p.Validate())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "\n", NewBuilder(DefaultBoardPolicy()))
	require.NoError(t, l.Validate())

	rdo := l.EvaluateCapabilities([]pdmsg.PDO{fixed(5000, 3000), fixed(9000, 3000)})
	assert.Equal(t, uint8(1), rdo.SelectedObjectPosition())

	out := buf.String()
	assert.Contains(t, out, "Received 2 profiles:\n")
	assert.Contains(t, out, "  1) Fixed 5 V @ max. 3 A (15 W)\n")
	assert.Contains(t, out, "Requesting profile 1\n")
}
