package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kepuz/livesocket/socket"
)

func sendCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send EVENT [JSON]",
		Short: "Send one event and exit once it is written",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := json.RawMessage(`{}`)
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("data is not valid JSON: %s", args[1])
				}
				data = json.RawMessage(args[1])
			}

			s, err := newSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := sendAndDrain(ctx, s.client, socket.Event(args[0]), data); err != nil {
				return err
			}
			s.logger.Info("sent", "event", args[0])
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up if the frame is not written in time")

	return cmd
}

const drainPoll = 10 * time.Millisecond

// sendAndDrain queues one frame, connects and waits until every frame has
// been written over an open connection.
func sendAndDrain(ctx context.Context, c *socket.Client, event socket.Event, data any) error {
	if err := c.Send(event, data); err != nil {
		return err
	}
	c.Connect()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		if c.Connected() && c.Outstanding() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("send %q: %w", event, ctx.Err())
		}
	}
}
