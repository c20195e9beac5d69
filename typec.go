// Package typec defines high level interfaces and types for implementing a
// USB Type-C power delivery stack with alternate mode support.
//
// The stack is split into packages by concern:
//
//   - pdmsg encodes and decodes messages and data objects.
//   - tcdpm selects and builds power contracts.
//   - tcvdm tracks discovery state and dispatches structured VDMs.
//   - tcdp implements the DisplayPort alternate mode.
//   - tcpe runs the sink policy engine against a PortController.
package typec

import (
	"errors"

	"github.com/epdlink/go-typec/pdmsg"
)

// Event is a set of port controller events. Lower bits take priority.
type Event uint16

// Pop removes and returns the highest priority event in the set.
func (e *Event) Pop() Event {
	if *e == 0 {
		return EventNone
	}
	r := *e & -*e
	*e &^= r
	return r
}

// Add adds the events v to the set.
func (e *Event) Add(v Event) {
	*e |= v
}

// Has reports whether any of v is set.
func (e Event) Has(v Event) bool {
	return e&v != 0
}

var eventNames = [...]string{
	"reset-received",
	"send-reset",
	"power-0a5",
	"power-1a5",
	"power-3a0",
	"attached",
	"detached",
	"rx",
	"timer-timeout",
}

// String returns the name of a single event, for logging.
func (e Event) String() string {
	if e == EventNone {
		return "none"
	}
	for i, name := range eventNames {
		if e == 1<<i {
			return name
		}
	}
	return "invalid"
}

// EventNone represents no event.
const EventNone Event = 0

// Events in priority order, highest first.
const (
	EventResetReceived Event = 1 << iota // hard reset received
	EventSendReset                       // hard reset requested locally
	EventPower0A5                        // 5V@0.5A Type-C current
	EventPower1A5                        // 5V@1.5A Type-C current
	EventPower3A0                        // 5V@3A Type-C current
	EventAttached                        // VBUS detected
	EventDetached                        // VBUS lost
	EventRx                              // message queued for Rx
	EventTimerTimeout                    // policy engine timer expired
)

// PortController is the physical and protocol layer of one USB-C port, for
// example a FUSB302 on an I2C bus. The policy engine drives it from a single
// goroutine.
//
// An implementation must:
//
//   - run the whole GoodCRC exchange itself, including CRCReceiveTimer and
//     retries. Message IDs are assigned by the policy engine.
//   - come up as a sink after Init, resolve CC polarity on attach and report
//     the advertised Type-C current as EventPower* events.
//   - carry VDMs like any other data message. Alternate mode handling lives
//     above this interface and works the same in either data role.
//
// Implementations running on microcontrollers should not allocate after Init.
type PortController interface {

	// Init resets the controller to its initial sink configuration. It is
	// called before any other method and again after every hard reset.
	Init() error

	// Tx sends m and blocks until GoodCRC arrives or retries are exhausted,
	// in which case it returns an error wrapping ErrTxFailed.
	Tx(m pdmsg.Message) error

	// Rx returns the next received message other than GoodCRC, or
	// ErrRxEmpty.
	Rx() (pdmsg.Message, error)

	// SendReset signals hard reset to the partner and blocks until done.
	SendReset() error

	// Alert services the hardware and returns the events raised since the
	// last call. The policy engine calls it after every Tx, Rx and SendReset
	// as well as periodically.
	Alert() (Event, error)
}

var (
	// ErrTxFailed is returned by Tx when no GoodCRC was received.
	ErrTxFailed = errors.New("failed to send pd message")

	// ErrRxEmpty is returned by Rx when the receive queue is empty.
	ErrRxEmpty = errors.New("no more messages to read")
)

// Errors raised by the policy layers when a partner or the board policy
// misbehaves. None of them is fatal: the port degrades to no alternate mode
// or to the default 5V contract.
var (
	// ErrProtocolViolation marks a message that breaks the VDM protocol, such
	// as a bad object position, an unsolicited response or an unknown command.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrResourceExhausted marks a discovery entry dropped because a fixed size
	// table is full.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidOffer marks a source capability list with no usable PDO.
	ErrInvalidOffer = errors.New("no usable power offer")

	// ErrPolicyReject marks a request refused by the board policy.
	ErrPolicyReject = errors.New("request rejected by board policy")
)
