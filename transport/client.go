/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Status is the connection's externally-visible state, mirrored into
// the daemon control surface's {connected, ...} payload.
type Status int

const (
	Offline Status = iota
	Connecting
	Connected
	AuthRequired
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// Client owns the single authenticated WebSocket connection to one
// relay. Inbound envelopes are delivered on Inbound(); callers send
// with Send. Reconnection, re-authentication, and heartbeating all
// happen internally once Run is started.
type Client struct {
	url      string
	tokenFn  func() string

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status

	inbound chan Envelope
	outbound chan Envelope
}

func NewClient(url string, tokenFn func() string) *Client {
	return &Client{
		url:      url,
		tokenFn:  tokenFn,
		inbound:  make(chan Envelope, 256),
		outbound: make(chan Envelope, 256),
	}
}

func (c *Client) Inbound() <-chan Envelope { return c.inbound }

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Send queues an envelope for the writer task. It never blocks forever:
// callers race it against ctx.Done().
func (c *Client) Send(ctx context.Context, msgType string, body any) error {
	env, err := encode(msgType, body)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects, authenticates, and services the connection until ctx is
// cancelled, reconnecting with jittered exponential backoff (capped at
// 60s) whenever the connection drops for a TransientNetwork reason. An
// AuthExpired rejection (Authenticated{ok:false}) surfaces as
// AuthRequired and Run returns rather than retrying indefinitely.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 60 * time.Second
	bo.MaxElapsedTime = 0 // retry forever until ctx is cancelled

	for {
		c.setStatus(Connecting)
		err := c.runOnce(ctx)
		if err == errAuthRejected {
			c.setStatus(AuthRequired)
			return err
		}
		if ctx.Err() != nil {
			c.setStatus(Offline)
			return ctx.Err()
		}
		c.setStatus(Offline)

		wait := bo.NextBackOff()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var errAuthRejected = fmt.Errorf("transport: authentication rejected")

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	authEnv, err := encode(TypeAuthenticate, Authenticate{Token: c.tokenFn()})
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(authEnv); err != nil {
		return err
	}

	var reply Envelope
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		return err
	}
	if reply.Type != TypeAuthenticated {
		return fmt.Errorf("transport: expected Authenticated, got %s", reply.Type)
	}
	var auth Authenticated
	if err := unmarshalBody(reply, &auth); err != nil {
		return err
	}
	if !auth.OK {
		return errAuthRejected
	}
	c.setStatus(Connected)

	ctx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	writeErr := make(chan error, 1)
	go c.writeLoop(ctx, conn, writeErr)

	pongDeadline := time.Now().Add(pongTimeout)
	conn.SetPongHandler(func(string) error {
		pongDeadline = time.Now().Add(pongTimeout)
		return nil
	})
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case err := <-writeErr:
			return err
		case <-ticker.C:
			if time.Now().After(pongDeadline) {
				return fmt.Errorf("transport: missed pong, reconnecting")
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, errc chan<- error) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			errc <- err
			return
		}
		c.inbound <- env
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, errc chan<- error) {
	var writeMu sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.outbound:
			writeMu.Lock()
			err := conn.WriteJSON(env)
			writeMu.Unlock()
			if err != nil {
				errc <- err
				return
			}
		}
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func unmarshalBody(env Envelope, out any) error {
	return json.Unmarshal(env.Body, out)
}
