// SPDX-License-Identifier: MIT

// Package connection implements the StagelinQ directory handshake,
// keep-alive loop, and per-service framed channel acquisition.
package connection

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/wire"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// ServicesRequestTimeout bounds how long Connection waits for a
// reference message to terminate the services handshake.
const ServicesRequestTimeout = 5 * time.Second

// KeepAliveInterval is the cadence of outbound reference pings.
const KeepAliveInterval = 250 * time.Millisecond

// Service is one announced directory entry.
type Service struct {
	Name string
	Port uint16
}

// Connection is an open directory-channel session to one device.
type Connection struct {
	conn      net.Conn
	self      token.Token
	peer      token.Token
	log       zerolog.Logger
	cancel    context.CancelFunc
	keepAlive chan struct{}
}

// Dial opens the directory TCP connection to addr.
func Dial(ctx context.Context, addr string, self token.Token) (*Connection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.New(xerrors.KindConnection, "connection.dial", err)
	}
	return &Connection{
		conn: conn,
		self: self,
		log:  log.WithComponent("stagelinq.connection"),
	}, nil
}

// DiscoverServices runs the services-request handshake.
// On timeout, whatever services were collected so far are returned, not
// an error.
func (c *Connection) DiscoverServices(ctx context.Context, peer token.Token) ([]Service, error) {
	c.peer = peer
	req := wire.ServicesRequestMessage{Token: c.self}
	payload, err := req.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, xerrors.New(xerrors.KindConnection, "connection.services_request", err)
	}

	deadline := time.Now().Add(ServicesRequestTimeout)
	_ = c.conn.SetReadDeadline(deadline)

	var services []Service
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return services, nil
		default:
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return services, nil
			}
			return services, nil
		}
		msg, err := wire.DecodeDirectoryMessage(buf[:n])
		if err != nil {
			continue
		}
		switch {
		case msg.ServiceAnnounce != nil:
			services = append(services, Service{Name: msg.ServiceAnnounce.Service, Port: msg.ServiceAnnounce.Port})
		case msg.Reference != nil:
			_ = c.conn.SetReadDeadline(time.Time{})
			return services, nil
		}
	}
}

// StartKeepAlive launches the 250ms reference keep-alive loop.
// Missing keep-alives from the peer do not terminate the connection. A
// write error ends the loop and is logged; the directory socket stays open
// and the error is not reported to the caller.
func (c *Connection) StartKeepAlive(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.keepAlive = make(chan struct{})
	go func() {
		defer close(c.keepAlive)
		ticker := time.NewTicker(KeepAliveInterval)
		defer ticker.Stop()
		ref := wire.ReferenceMessage{Self: c.self, Peer: c.peer, Reference: 0}
		payload, err := ref.Encode()
		if err != nil {
			c.log.Error().Err(err).Msg("encode keep-alive reference")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.conn.Write(payload); err != nil {
					c.log.Warn().Err(err).Msg("keep-alive write failed, connection lost")
					return
				}
			}
		}
	}()
}

// OpenChannel opens a new TCP connection to a non-directory service port
// and sends the required initial service-announce identifying our
// ephemeral port.
func OpenChannel(ctx context.Context, ip string, port uint16, self token.Token, serviceName string, localPort uint16) (net.Conn, error) {
	var d net.Dialer
	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.New(xerrors.KindConnection, "connection.open_channel", err)
	}
	announce := wire.ServiceAnnounceMessage{Token: self, Service: serviceName, Port: localPort}
	payload, err := announce.Encode()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		conn.Close()
		return nil, xerrors.New(xerrors.KindConnection, "connection.open_channel.announce", err)
	}
	return conn, nil
}

// Close cancels the keep-alive loop and closes the directory socket.
func (c *Connection) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.keepAlive
	}
	return c.conn.Close()
}
