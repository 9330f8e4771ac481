package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// eventsCmd tails the Store's observer feed.
func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream Store events (appends, reactions, extractions, claims)",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			url := wsURL(cfg.Store.URL) + protocol.APIPrefix + "/events"
			opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
			if cfg.Store.Token != "" {
				opts.HTTPHeader.Set("Authorization", "Bearer "+cfg.Store.Token)
			}

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, url, opts)
			cancel()
			if err != nil {
				return fmt.Errorf("connect to %s: %w", url, err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			fmt.Printf("connected to %s\n", url)
			for {
				var frame protocol.EventFrame
				if err := wsjson.Read(ctx, conn, &frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read event: %w", err)
				}
				payload, _ := json.Marshal(frame.Payload)
				fmt.Printf("%s  %s  %s\n", time.Now().Format("15:04:05"), frame.Name, payload)
			}
		},
	}
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
