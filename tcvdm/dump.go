package tcvdm

import (
	"fmt"
	"io"

	"github.com/epdlink/go-typec/pdmsg"
)

// Dump writes a human readable summary of the discovered identity, SVIDs,
// modes and entered modes of s to w.
func (s *State) Dump(w io.Writer) error {
	if s.identity[0] == 0 {
		_, err := fmt.Fprintln(w, "No identity discovered yet.")
		return err
	}
	id := pdmsg.IDHeaderVDO(s.identity[0])
	fmt.Fprintf(w, "IDENT: phase %s\n", s.phase)
	fmt.Fprintf(w, "\t[ID Header] %08x :: %s, VID:%04x\n", s.identity[0], id.ProductType(), id.VID())
	fmt.Fprintf(w, "\t[Cert Stat] %08x\n", s.identity[1])
	for i := 2; i < len(s.identity); i++ {
		if s.identity[i] != 0 {
			fmt.Fprintf(w, "\t[%d] %08x\n", i, s.identity[i])
		}
	}

	if s.svidCount == 0 {
		_, err := fmt.Fprintln(w, "No SVIDs discovered yet.")
		return err
	}
	for i, e := range s.SVIDs() {
		fmt.Fprintf(w, "SVID[%d]: %04x MODES:", i, e.SVID)
		for j, m := range e.Modes() {
			fmt.Fprintf(w, " [%d] %08x", j+1, m)
		}
		fmt.Fprintln(w)
	}
	for i := range s.active {
		if !s.active[i].entered {
			continue
		}
		m := s.mode(i)
		fmt.Fprintf(w, "MODE[%d]: svid:%04x caps:%08x\n", m.Position, m.SVID, m.Caps)
	}
	if !s.svidsDone {
		_, err := fmt.Fprintln(w, "SVID discovery incomplete.")
		return err
	}
	return nil
}
