package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/pacing"
	"github.com/xraph/aegis/watch"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch CLIENT_ID",
		Short: "Stream the notifications of one onboarding run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, err := id.ParseClientID(args[0])
			if err != nil {
				return err
			}
			logger, err := newLogger(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []watch.Option{
				watch.WithLogger(logger),
				watch.WithFormat(v.GetString("watch.format")),
			}
			if names := v.GetStringSlice("watch.types"); len(names) > 0 {
				types := make([]notify.Type, len(names))
				for i, n := range names {
					types[i] = notify.Type(n)
				}
				opts = append(opts, watch.WithTypes(types...))
			}
			if v.GetBool("watch.reconnect") {
				opts = append(opts, watch.WithReconnect(pacing.DefaultReconnect(), 0))
			}

			url := strings.TrimSuffix(v.GetString("watch.server"), "/") + "/ws/" + clientID.String()
			w, err := watch.Dial(ctx, url, opts...)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			return follow(ctx, w, cmd.OutOrStdout(), v.GetBool("watch.follow"))
		},
	}

	f := cmd.Flags()
	f.String("server", "ws://localhost:8080", "base WebSocket URL of the aegis server")
	f.String("format", "json", "wire format: json or msgpack")
	f.Bool("reconnect", true, "reconnect when the socket drops")
	f.Bool("follow", false, "keep watching after the run finishes")
	f.StringSlice("types", nil, "only receive these notification types")
	for _, name := range []string{"server", "format", "reconnect", "follow", "types"} {
		_ = v.BindPFlag("watch."+name, f.Lookup(name))
	}

	return cmd
}

// follow prints each message as a JSON line. Unless keepGoing is set it
// returns after the run completes or fails.
func follow(ctx context.Context, w *watch.Watcher, out io.Writer, keepGoing bool) error {
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.Messages():
			if !ok {
				return w.Err()
			}
			if err := enc.Encode(msg); err != nil {
				return fmt.Errorf("aegis: write: %w", err)
			}
			if !keepGoing && (msg.Type == notify.TypeWorkflowComplete || msg.Type == notify.TypeError) {
				return nil
			}
		}
	}
}
