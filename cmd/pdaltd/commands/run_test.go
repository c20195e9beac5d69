package commands

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epdlink/go-typec/tcdpm"
	"github.com/epdlink/go-typec/tcpe"
	"github.com/epdlink/go-typec/tcvdm"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEventPrinter(t *testing.T) {
	var out, logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	h := eventPrinter(&out, log, tcdpm.NewBuilder(tcdpm.DefaultBoardPolicy()), tcvdm.NewState(0))

	h(tcpe.EventPowerNotReady)
	h(tcpe.EventAltModeChanged)
	assert.Contains(t, out.String(), "Power not ready")
	assert.Contains(t, out.String(), "No identity discovered yet.")
	assert.Empty(t, logs.String())
}

func TestEventPrinterLogsDumpError(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	h := eventPrinter(brokenWriter{}, log, tcdpm.NewBuilder(tcdpm.DefaultBoardPolicy()), tcvdm.NewState(0))

	h(tcpe.EventAltModeChanged)
	assert.Contains(t, logs.String(), "could not print alternate mode state")
	assert.Contains(t, logs.String(), "broken pipe")
}
