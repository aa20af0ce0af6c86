package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HugoManns/gesture-relay/internal/logging"
	"github.com/HugoManns/gesture-relay/internal/protocol"
	"github.com/HugoManns/gesture-relay/internal/wsclient"
)

func clientCmd() *cobra.Command {
	var (
		url    string
		origin string
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a relay and exchange gesture messages",
		Long: `Connect to a relay. Each line on stdin is sent as a gestureMessage:
either a landmark list such as [[0,0,0],[1,1,0]] or a full payload object.
Every gestureMessage relayed from other clients is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []wsclient.Option
			opts = append(opts, wsclient.WithLogger(logging.NewWithWriter(cmd.ErrOrStderr(), "warn", "text")))
			if origin != "" {
				opts = append(opts, wsclient.WithHeader(http.Header{"Origin": {origin}}))
			}

			c, err := wsclient.Dial(cmd.Context(), url, opts...)
			if err != nil {
				return err
			}
			defer c.Close()

			go printIncoming(cmd.OutOrStdout(), c)
			return sendLines(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr(), c)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost:5001/ws", "relay WebSocket URL")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin header to send")

	return cmd
}

func printIncoming(w io.Writer, c *wsclient.Client) {
	for frame := range c.Messages() {
		g, err := protocol.DecodeGesture(frame)
		if err != nil {
			fmt.Fprintf(w, "<- %s\n", frame)
			continue
		}
		fmt.Fprintf(w, "<- gestureMessage: %d landmarks %v\n", len(g.Landmarks), g.Landmarks)
	}
}

func sendLines(ctx context.Context, r io.Reader, errOut io.Writer, c *wsclient.Client) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		g, err := parseGestureLine(line)
		if err != nil {
			fmt.Fprintf(errOut, "skipping line: %v\n", err)
			continue
		}
		if err := c.SendGesture(ctx, g); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseGestureLine(line string) (protocol.Gesture, error) {
	if strings.HasPrefix(line, "[") {
		var landmarks []protocol.Landmark
		if err := json.Unmarshal([]byte(line), &landmarks); err != nil {
			return protocol.Gesture{}, fmt.Errorf("parse landmarks: %w", err)
		}
		return protocol.Gesture{Landmarks: landmarks}, nil
	}

	var g protocol.Gesture
	if err := json.Unmarshal([]byte(line), &g); err != nil {
		return protocol.Gesture{}, fmt.Errorf("parse payload: %w", err)
	}
	return g, nil
}
