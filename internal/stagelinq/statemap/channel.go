// SPDX-License-Identifier: MIT

package statemap

import (
	"context"
	"io"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/wire"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// Channel is a StateMap service connection: subscribe to paths, receive
// a stream of decoded State records. Recv checks ctx before each frame
// read; a read already blocked on the socket returns only when a frame
// arrives or Close closes the socket.
type Channel struct {
	conn io.ReadWriteCloser
}

// NewChannel wraps an already-connected, already-announced StateMap socket.
func NewChannel(conn io.ReadWriteCloser) *Channel {
	return &Channel{conn: conn}
}

// Subscribe sends a subscribe request for one state path with the given
// emission interval (0 = change-driven).
func (c *Channel) Subscribe(name string, interval uint32) error {
	msg := wire.StateSubscribeMessage{Name: name, Interval: interval}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return wire.WriteFrame(c.conn, payload)
}

// SubscribeAll subscribes to every path in paths with change-driven emission.
func (c *Channel) SubscribeAll(paths []string) error {
	for _, p := range paths {
		if err := c.Subscribe(p, 0); err != nil {
			return err
		}
	}
	return nil
}

// Recv blocks for the next emitted State record. A non-emit frame (another
// subscribe echoed back, say) is skipped rather than surfaced.
func (c *Channel) Recv(ctx context.Context) (State, error) {
	for {
		select {
		case <-ctx.Done():
			return State{}, xerrors.New(xerrors.KindConnection, "statemap.recv", ctx.Err())
		default:
		}

		payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			if err == io.EOF {
				return State{}, xerrors.New(xerrors.KindConnection, "statemap.recv", io.EOF)
			}
			return State{}, err
		}
		msg, err := wire.DecodeStateMapMessage(payload)
		if err != nil {
			return State{}, err
		}
		if msg.Emit == nil {
			continue
		}
		return DecodeState(msg.Emit.Name, msg.Emit.JSONData), nil
	}
}

// Close releases the underlying socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}
