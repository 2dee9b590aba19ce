// SPDX-License-Identifier: MIT

// Package beatinfo implements the BeatInfo stream: opening it implicitly
// starts streaming, closing it stops streaming.
package beatinfo

import (
	"context"
	"io"

	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/wire"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// Channel is an open BeatInfo service connection.
type Channel struct {
	conn    io.ReadWriteCloser
	started bool
}

// NewChannel wraps an already-connected, already-announced BeatInfo
// socket and sends start-stream immediately.
func NewChannel(conn io.ReadWriteCloser) (*Channel, error) {
	c := &Channel{conn: conn}
	if err := wire.WriteFrame(conn, wire.BeatStartStreamMagic); err != nil {
		return nil, err
	}
	c.started = true
	return c, nil
}

// Recv blocks for the next beat-emit record, skipping any stray
// start/stop frames echoed back by the device.
func (c *Channel) Recv(ctx context.Context) (wire.BeatEmitMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return wire.BeatEmitMessage{}, xerrors.New(xerrors.KindConnection, "beatinfo.recv", ctx.Err())
		default:
		}
		payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			return wire.BeatEmitMessage{}, err
		}
		msg, err := wire.DecodeBeatInfoMessage(payload)
		if err != nil {
			return wire.BeatEmitMessage{}, err
		}
		if msg.Emit == nil {
			continue
		}
		return *msg.Emit, nil
	}
}

// Close sends stop-stream and releases the socket.
func (c *Channel) Close() error {
	if c.started {
		_ = wire.WriteFrame(c.conn, wire.BeatStopStreamMagic)
	}
	return c.conn.Close()
}
