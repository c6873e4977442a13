package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/portalauth/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-check the stored session periodically and print state changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !jsonOutput {
			printBanner(cmd.OutOrStdout(), "Session watch")
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s every %s (Ctrl+C to stop)\n", a.svc.Realm(), cfg.PollInterval)
		}
		return runWatch(ctx, a.svc, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// runWatch prints the current state, then every event until ctx is done or
// the service is closed.
func runWatch(ctx context.Context, svc *session.Service, w io.Writer) error {
	sub := svc.Subscribe()
	defer sub.Close()

	printEvent(w, session.Event{
		Realm:         svc.Realm(),
		Authenticated: svc.IsAuthenticated(),
		At:            time.Now(),
	})
	svc.StartPolling(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			printEvent(w, ev)
		}
	}
}

func printEvent(w io.Writer, ev session.Event) {
	if jsonOutput {
		writeJSON(w, ev)
		return
	}
	state := badStyle.Render("logged out")
	if ev.Authenticated {
		state = okStyle.Render("logged in")
	}
	line := fmt.Sprintf("%s  %-12s %s", ev.At.Local().Format(time.TimeOnly), ev.Realm, state)
	if ev.Reason != "" {
		line += fmt.Sprintf(" (%s)", ev.Reason)
	}
	fmt.Fprintln(w, line)
}
