// Package tcpcdriver holds what Type-C port controller drivers share.
// Drivers live in sub packages, one per part.
package tcpcdriver

// I2C is the bus a port controller driver talks over. It is satisfied by
// periph.io/x/conn/v3/i2c.Bus on Linux hosts and by machine.I2C on
// microcontrollers, so one driver serves both.
type I2C interface {

	// Tx writes w and then reads into r on the device at addr. A nil w or r
	// skips that half of the transfer. Tx must be safe for concurrent use.
	Tx(addr uint16, w, r []byte) error
}
