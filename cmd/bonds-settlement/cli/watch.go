package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stakebonds/bonds-settlement/internal/observability/tracing"
)

// WatchCmd keeps claiming and closing the settlements of the epochs stored in
// the db until interrupted.
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Periodically claim and close settlements of recent stored epochs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = tracing.InjectTraceID(ctx)

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.service.StartWatcher(ctx)
		},
	}
}
