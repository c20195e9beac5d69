package tcpe

import (
	"fmt"

	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcvdm"
)

// startDiscovery begins alternate mode discovery on the first explicit
// contract of an attach, if the VDM engine is a DFP. Discovery runs once per
// attach; renegotiation and exited modes do not restart it.
func (pe *PolicyEngine) startDiscovery() error {
	if pe.vdm == nil || pe.discovered || !pe.explicitContract || pe.vdmState.Phase() != tcvdm.PhaseDisconnected {
		return nil
	}
	words, ok := pe.vdm.Start(pe.vdmState)
	if !ok {
		return nil
	}
	pe.discovered = true
	pe.sessionLog.Debug("starting alternate mode discovery")
	return pe.sendVDM(words)
}

// handleVDM passes a received VDM to the VDM engine and sends its answer,
// followed by any Attention the UFP mode has pending.
func (pe *PolicyEngine) handleVDM(m pdmsg.Message) error {
	if pe.vdm == nil {
		return nil
	}
	phase := pe.vdmState.Phase()
	if words, ok := pe.vdm.HandleInbound(pe.vdmState, m.Objects()); ok {
		if err := pe.sendVDM(words); err != nil {
			return err
		}
	}
	if pe.attention != nil {
		if svid, opos, data, ok := pe.attention.PendingAttention(); ok {
			if words, ok := pe.vdm.Attention(pe.vdmState, svid, opos, data); ok {
				if err := pe.sendVDM(words); err != nil {
					return err
				}
			}
		}
	}
	if p := pe.vdmState.Phase(); p != phase {
		pe.sessionLog.Info("alternate mode", "phase", p.String())
		pe.notifyEvent(EventAltModeChanged)
	}
	return nil
}

func (pe *PolicyEngine) sendVDM(words []uint32) error {
	m := pe.msgTpl
	m.SetType(pdmsg.TypeVendorDefined)
	m.SetObjects(words)
	if err := pe.tx(m); err != nil {
		return fmt.Errorf("tcpe: send VDM: %w", err)
	}
	return nil
}
