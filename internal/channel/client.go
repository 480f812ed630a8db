package channel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/gorilla/websocket"
)

// SubscribeURL builds the websocket URL of a hub channel served at addr
func SubscribeURL(addr, name string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/channels/" + url.PathEscape(name)}
	return u.String()
}

// Subscribe connects to a hub channel and calls handle for every message
// until ctx is cancelled, the server closes the connection, or handle
// returns an error.
func Subscribe(ctx context.Context, wsURL string, handle func(*Message) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	log := logger.WithComponent("subscriber")
	log.Info().Str("url", wsURL).Msg("Subscribed")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		msg, err := Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable message")
			continue
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}
