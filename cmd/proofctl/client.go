package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"proofd/internal/bridge"
	"proofd/internal/config"
)

const dialTimeout = 5 * time.Second

// client is a short-lived bridge connection for one control exchange.
type client struct {
	conn *websocket.Conn
}

// dial connects to the daemon's bridge. An empty addr falls back to the
// configured listen address.
func dial(addr, configPath string) (*client, error) {
	if addr == "" {
		loader := config.NewLoader(configPath)
		cfg, err := loader.Load()
		if err != nil {
			return nil, err
		}
		addr = cfg.Bridge.Listen
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to proofd at %s: %w (is the daemon running?)", addr, err)
	}
	return &client{conn: conn}, nil
}

func (c *client) close() {
	c.conn.Close()
}

func (c *client) send(typ string, payload any) error {
	env := bridge.Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = raw
	}
	c.conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	return c.conn.WriteJSON(env)
}

// await reads frames until one of the wanted type arrives; an error frame
// aborts the wait.
func (c *client) await(typ string) (bridge.Envelope, error) {
	c.conn.SetReadDeadline(time.Now().Add(dialTimeout))
	for {
		var env bridge.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return bridge.Envelope{}, err
		}
		switch env.Type {
		case typ:
			return env, nil
		case bridge.MsgError:
			var p bridge.ErrorPayload
			if err := json.Unmarshal(env.Payload, &p); err == nil {
				return bridge.Envelope{}, fmt.Errorf("daemon rejected request: %s", p.Message)
			}
			return bridge.Envelope{}, fmt.Errorf("daemon rejected request")
		}
	}
}
