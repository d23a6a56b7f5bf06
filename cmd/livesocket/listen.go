package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kepuz/livesocket/socket"
)

type eventLine struct {
	Event socket.Event    `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func listenCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "listen EVENT [EVENT...]",
		Short: "Print inbound events as JSON lines until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			subscribe(s.client, cmd.OutOrStdout(), args)
			s.client.Status(func(connected bool) {
				s.logger.Info("status", "connected", connected, "attempts", s.client.Attempts())
			})
			s.client.Connect()

			<-ctx.Done()
			return nil
		},
	}
}

// subscribe writes every frame for events to w, one JSON object per line.
func subscribe(c *socket.Client, w io.Writer, events []string) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	for _, name := range events {
		event := socket.Event(name)
		c.On(event, func(data json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			_ = enc.Encode(eventLine{Event: event, Data: data})
		})
	}
}
