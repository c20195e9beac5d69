package tcvdm

import (
	"errors"

	"github.com/epdlink/go-typec/pdmsg"
)

// Errors a Responder returns to shape the reply to an inbound command.
var (
	// ErrNak makes the engine reply with NAK.
	ErrNak = errors.New("tcvdm: nak")

	// ErrBusy makes the engine reply with BUSY.
	ErrBusy = errors.New("tcvdm: busy")
)

// Request is an inbound structured VDM command.
type Request struct {
	Port   int
	Header pdmsg.VDMHeader

	// Data holds the data objects following the header.
	Data []uint32
}

// Responder answers structured VDM commands received from a DFP partner.
//
// Each method writes its response data objects, excluding the header, to data
// and returns how many it wrote. A nil error replies ACK with that many data
// objects, which may be zero. ErrBusy replies BUSY; any other error, ErrNak
// included, replies NAK.
type Responder interface {
	Identity(req Request, data []uint32) (int, error)
	SVIDs(req Request, data []uint32) (int, error)
	Modes(req Request, data []uint32) (int, error)
	EnterMode(req Request, data []uint32) (int, error)
	ExitMode(req Request, data []uint32) (int, error)

	// Command answers SVID specific commands (16 to 31), such as DisplayPort
	// Status and Configure.
	Command(req Request, data []uint32) (int, error)
}

// Mode identifies an alternate mode entered on a partner.
type Mode struct {
	Port     int
	SVID     uint16
	Position uint8 // 1-based object position

	// Caps is the mode VDO the partner returned for Position.
	Caps uint32
}

// AltMode is the DFP side of one alternate mode. Methods building a message
// write the complete VDM, header first, to vdm and return the number of words
// written. Returning 0 sends nothing. The engine stamps the command type and
// version into the header.
type AltMode interface {
	// SVID returns the standard or vendor ID of the mode.
	SVID() uint16

	// Enter is called before EnterMode is sent. An error aborts the entry.
	Enter(m Mode) error

	// Status builds the first request sent after the partner acknowledged
	// EnterMode.
	Status(m Mode, vdm []uint32) int

	// Config builds the configure request from the partner's status
	// response.
	Config(m Mode, status []uint32, vdm []uint32) int

	// Attention consumes an Attention message from the partner.
	Attention(m Mode, msg []uint32)

	// Exit is called when the mode is exited or the port is reset.
	Exit(m Mode)
}

// PostConfigurer is optionally implemented by an AltMode to act once the
// partner acknowledged the configure request.
type PostConfigurer interface {
	PostConfig(m Mode)
}
