package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epdlink/go-typec/tcdpm"
	"github.com/epdlink/go-typec/tcpe"
)

func newCapsCmd(o *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Print the power profiles of the attached source",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, pc, err := openPort(o.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pe := tcpe.New(pc)
			pe.SetCapabilityEvaluator(tcdpm.NewLogger(cmd.OutOrStdout(), "\n", nil))
			pe.Run(ctx)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Stopped listening after %s\n", timeout)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to listen")
	return cmd
}
