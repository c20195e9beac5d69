package tcdpm

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/epdlink/go-typec"
	"github.com/epdlink/go-typec/pdmsg"
)

// RequestType selects how BuildRequest picks the PDO.
type RequestType uint8

const (
	// RequestMax requests the PDO chosen by SelectBestPDO.
	RequestMax RequestType = iota

	// RequestVSafe5V always requests the first PDO, which every source must
	// advertise as its 5V supply.
	RequestVSafe5V
)

// RequestCheck is a board hook approving a request data object built against
// a capability list of pdoCount PDOs.
type RequestCheck func(rdo pdmsg.RequestDO, pdoCount int) bool

// DefaultRequestCheck rejects requests whose object position is 0 or beyond
// the capability list.
func DefaultRequestCheck(rdo pdmsg.RequestDO, pdoCount int) bool {
	p := int(rdo.SelectedObjectPosition())
	return p != 0 && p <= pdoCount
}

// Request is a contract built from a capability list.
type Request struct {
	RDO pdmsg.RequestDO

	// Index is the 0-based position of the requested PDO.
	Index int

	// MilliAmps and MilliVolts are the current and voltage the board expects
	// to draw under the contract.
	MilliAmps  uint32
	MilliVolts uint32

	// Fallback is true if no PDO qualified and the vSafe5V PDO was requested
	// instead.
	Fallback bool
}

// Builder builds power requests for a board. The zero value is not usable,
// use NewBuilder.
type Builder struct {
	policy BoardPolicy
	log    *slog.Logger

	mu    sync.Mutex
	maxMV uint16
	check RequestCheck
	last  Request
}

// NewBuilder returns a builder for the given board policy. The maximum request
// voltage starts at the board's MaxVoltage.
func NewBuilder(p BoardPolicy) *Builder {
	return &Builder{
		policy: p,
		log:    slog.Default().With("component", "tcdpm"),
		maxMV:  p.MaxVoltage,
		check:  DefaultRequestCheck,
	}
}

// SetLogger sets the logger. Passing nil restores the default logger.
func (b *Builder) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	b.log = l.With("component", "tcdpm")
}

// SetRequestCheck sets the board hook run on every built request. Passing nil
// restores DefaultRequestCheck.
func (b *Builder) SetRequestCheck(c RequestCheck) {
	if c == nil {
		c = DefaultRequestCheck
	}
	b.mu.Lock()
	b.check = c
	b.mu.Unlock()
}

// SetMaxVoltage caps the voltage of subsequent requests in millivolts. The cap
// never exceeds the board's MaxVoltage.
func (b *Builder) SetMaxVoltage(mv uint16) {
	b.mu.Lock()
	b.maxMV = mv
	b.mu.Unlock()
}

// MaxVoltage returns the current request voltage cap in millivolts.
func (b *Builder) MaxVoltage() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxMV
}

// Policy returns the board policy of the builder.
func (b *Builder) Policy() BoardPolicy {
	return b.policy
}

// Last returns the most recent request built successfully.
func (b *Builder) Last() Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// BuildRequest selects a PDO from pdos and returns the request for it.
//
// The capability mismatch flag is set when the contract yields less than the
// board's operating power. With GiveBack the minimum fields carry the
// configured minimums, otherwise they repeat the operating values.
//
// An empty list returns an error wrapping typec.ErrInvalidOffer. A request the
// board check refuses returns an error wrapping typec.ErrPolicyReject and must
// not be sent.
func (b *Builder) BuildRequest(pdos []pdmsg.PDO, t RequestType) (Request, error) {
	if len(pdos) == 0 {
		return Request{}, fmt.Errorf("tcdpm: empty capability list: %w", typec.ErrInvalidOffer)
	}
	b.mu.Lock()
	maxMV, check := b.maxMV, b.check
	b.mu.Unlock()

	var req Request
	if t != RequestVSafe5V {
		i, ok := b.policy.SelectBestPDO(pdos, maxMV)
		if !ok {
			b.log.Warn("no usable power offer, requesting vSafe5V", "pdos", len(pdos), "maxmv", maxMV)
			req.Fallback = true
		}
		req.Index = i
	}
	p := pdos[req.Index]

	ma, mv := b.policy.ExtractPower(p)
	if mv == 0 {
		b.log.Warn("degenerate PDO", "index", req.Index, "pdo", fmt.Sprintf("%#08x", uint32(p)))
	}
	ma = ma / 10 * 10
	req.MilliAmps, req.MilliVolts = ma, mv

	var flags pdmsg.RequestDO
	pos := uint8(req.Index + 1)
	if p.Type() == pdmsg.PDOTypeBattery {
		mw := ma * mv / 1000 / 250 * 250
		if mw < b.policy.OperatingPower {
			flags |= pdmsg.RequestCapabilityMismatch
		}
		minMW := mw
		if b.policy.GiveBack {
			flags |= pdmsg.RequestGiveBack
			minMW = b.policy.MinPower
		}
		req.RDO = pdmsg.MakeBatteryRequestDO(pos, mw, minMW, flags)
	} else {
		if ma*mv < b.policy.OperatingPower*1000 {
			flags |= pdmsg.RequestCapabilityMismatch
		}
		minMA := uint16(ma)
		if b.policy.GiveBack {
			flags |= pdmsg.RequestGiveBack
			minMA = b.policy.MinCurrent
		}
		req.RDO = pdmsg.MakeFixedRequestDO(pos, uint16(ma), minMA, flags)
	}

	if !check(req.RDO, len(pdos)) {
		return req, fmt.Errorf("tcdpm: request %#08x refused by board: %w", uint32(req.RDO), typec.ErrPolicyReject)
	}
	b.mu.Lock()
	b.last = req
	b.mu.Unlock()
	return req, nil
}

// Validate returns an error if the board policy is invalid.
func (b *Builder) Validate() error {
	return b.policy.Validate()
}

// EvaluateCapabilities implements tcpe.CapabilityEvaluator by building a
// RequestMax request. A refused request yields pdmsg.EmptyRequestDO.
func (b *Builder) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	req, err := b.BuildRequest(pdos, RequestMax)
	if err != nil {
		b.log.Warn("no power request", "err", err)
		return pdmsg.EmptyRequestDO
	}
	b.log.Debug("power request", "index", req.Index, "ma", req.MilliAmps, "mv", req.MilliVolts,
		"mismatch", req.RDO.CapabilityMismatch())
	return req.RDO
}

// ValidateRequest performs the minimal source side check of a request rdo
// against the source's own capabilities src. check is the board hook; nil
// means DefaultRequestCheck. Every failure wraps typec.ErrPolicyReject.
func ValidateRequest(rdo pdmsg.RequestDO, src []pdmsg.PDO, check RequestCheck) error {
	if check == nil {
		check = DefaultRequestCheck
	}
	pos := int(rdo.SelectedObjectPosition())
	if pos == 0 || pos > len(src) {
		return fmt.Errorf("tcdpm: invalid object position %d: %w", pos, typec.ErrPolicyReject)
	}
	if !check(rdo, len(src)) {
		return fmt.Errorf("tcdpm: request for position %d refused by board: %w", pos, typec.ErrPolicyReject)
	}
	p := src[pos-1]
	if p.Type() == pdmsg.PDOTypeBattery {
		avail := pdmsg.BatteryPDO(p).MaxPower()
		if rdo.BatteryOperatingPower() > avail {
			return fmt.Errorf("tcdpm: operating power %dmW above %dmW: %w", rdo.BatteryOperatingPower(), avail, typec.ErrPolicyReject)
		}
		if !rdo.GiveBack() && !rdo.CapabilityMismatch() && rdo.BatteryMaxOperatingPower() > avail {
			return fmt.Errorf("tcdpm: max power %dmW above %dmW: %w", rdo.BatteryMaxOperatingPower(), avail, typec.ErrPolicyReject)
		}
		return nil
	}
	avail := maxCurrent(p)
	if rdo.FixedOperatingCurrent() > avail {
		return fmt.Errorf("tcdpm: operating current %dmA above %dmA: %w", rdo.FixedOperatingCurrent(), avail, typec.ErrPolicyReject)
	}
	if !rdo.GiveBack() && !rdo.CapabilityMismatch() && rdo.FixedMaxOperatingCurrent() > avail {
		return fmt.Errorf("tcdpm: max current %dmA above %dmA: %w", rdo.FixedMaxOperatingCurrent(), avail, typec.ErrPolicyReject)
	}
	return nil
}
