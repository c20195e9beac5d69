package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/epdlink/go-typec/internal/config"
	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcdp"
	"github.com/epdlink/go-typec/tcdpm"
	"github.com/epdlink/go-typec/tcpcdriver/fusb302"
	"github.com/epdlink/go-typec/tcpe"
	"github.com/epdlink/go-typec/tcvdm"
)

func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Negotiate power and run DisplayPort alternate mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cmd, o.cfg)
		},
	}
}

// openPort opens the configured I2C bus and checks that a FUSB302 answers on
// it.
func openPort(cfg *config.Config) (i2c.BusCloser, *fusb302.FUSB302, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("init host drivers: %w", err)
	}
	b, err := i2creg.Open(cfg.Port.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", cfg.Port.Bus, err)
	}
	if err := b.SetSpeed(physic.Frequency(cfg.Port.SpeedHz) * physic.Hertz); err != nil {
		slog.Warn("could not set i2c speed", "speed_hz", cfg.Port.SpeedHz, "error", err)
	}
	pc := fusb302.New(b, cfg.MPN(), fusb302.WithLogger(slog.Default()))
	id, err := pc.DeviceID()
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	slog.Info("port controller found", "part", cfg.Port.Part, "device_id", fmt.Sprintf("%#02x", id))
	return b, pc, nil
}

// newVDM builds the VDM engine for the configured data role. The returned
// attention source is nil for a DFP.
func newVDM(cfg *config.Config, pc *fusb302.FUSB302) (*tcvdm.Engine, tcpe.AttentionSource) {
	vc := tcvdm.Config{AltMode: cfg.AltMode.Enabled}
	if cfg.DataRole() == pdmsg.DataRoleDFP {
		vc.DFP = true
		src := tcdp.NewSource(tcdp.WithMux(&logMux{pc: pc}))
		return tcvdm.New(vc, tcvdm.WithAltModes(src)), nil
	}
	sink := tcdp.NewSink(cfg.SinkIdentity())
	return tcvdm.New(vc, tcvdm.WithResponder(sink)), sink
}

func runDaemon(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	policy, err := cfg.BoardPolicy()
	if err != nil {
		return err
	}
	b, pc, err := openPort(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	dpm := tcdpm.NewBuilder(policy)
	engine, attn := newVDM(cfg, pc)
	opts := []tcpe.Option{
		tcpe.WithVDM(engine),
		tcpe.WithDataRole(cfg.DataRole()),
	}
	if attn != nil {
		opts = append(opts, tcpe.WithAttentionSource(attn))
	}
	pe := tcpe.New(pc, opts...)
	pe.SetCapabilityEvaluator(dpm)

	pe.SetEventHandler(eventPrinter(cmd.OutOrStdout(), slog.Default(), dpm, pe.VDMState()))

	slog.Info("starting policy engine", "data_role", cfg.Port.DataRole, "alt_mode", cfg.AltMode.Enabled)
	pe.Run(ctx)
	slog.Info("policy engine stopped", "polarity", pc.Polarity().String(), "dropped", pc.Dropped())
	return nil
}

// eventPrinter prints the contract on power events and the discovery state
// on alternate mode changes.
func eventPrinter(out io.Writer, log *slog.Logger, dpm *tcdpm.Builder, state *tcvdm.State) tcpe.EventHandlerFunc {
	return func(e tcpe.Event) {
		switch e {
		case tcpe.EventPowerReady:
			r := dpm.Last()
			fmt.Fprintf(out, "Power ready: %s at %s (%s)\n",
				humanize.SIWithDigits(float64(r.MilliVolts)/1000, 2, "V"),
				humanize.SIWithDigits(float64(r.MilliAmps)/1000, 2, "A"),
				humanize.SIWithDigits(float64(r.MilliVolts)*float64(r.MilliAmps)/1e6, 2, "W"))
		case tcpe.EventPowerNotReady:
			fmt.Fprintln(out, "Power not ready")
		case tcpe.EventAltModeChanged:
			if err := state.Dump(out); err != nil {
				log.Warn("could not print alternate mode state", "error", err)
			}
		}
	}
}

// logMux logs mux changes. Boards with a real SBU/SuperSpeed mux replace it.
type logMux struct {
	pc *fusb302.FUSB302
}

func (m *logMux) SetMux(port int, mode tcdp.MuxMode) error {
	slog.Info("set mux", "port", port, "mode", mode.String(), "polarity", m.pc.Polarity().String())
	return nil
}
