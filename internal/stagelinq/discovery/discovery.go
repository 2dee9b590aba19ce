// SPDX-License-Identifier: MIT

package discovery

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/wire"
	"github.com/sl-cache/stagelinq-cache/internal/xerrors"
)

// Port is the well-known StagelinQ discovery UDP port.
const Port = 51337

// Config configures the discovery engine.
type Config struct {
	AnnounceInterval time.Duration
	Port             int
	DeviceName       string
	SoftwareName     string
	SoftwareVersion  string
	Self             token.Token
}

// DefaultConfig returns the documented defaults.
func DefaultConfig(self token.Token) Config {
	return Config{
		AnnounceInterval: time.Second,
		Port:             Port,
		DeviceName:       "stagelinq-cache",
		SoftwareName:     "stagelinq-cache",
		SoftwareVersion:  "0.1.0",
		Self:             self,
	}
}

// Engine runs the UDP broadcast announcer/listener and owns a device
// Registry. Events yields a lazy, non-restartable stream of updates
// terminating when ctx is cancelled.
type Engine struct {
	cfg      Config
	registry *Registry
	conn     *net.UDPConn
	events   chan Device
	log      zerolog.Logger
}

// NewEngine binds the discovery UDP socket and returns an Engine ready to Run.
func NewEngine(cfg Config) (*Engine, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, xerrors.New(xerrors.KindConnection, "discovery.listen", err)
	}
	return &Engine{
		cfg:      cfg,
		registry: NewRegistry(),
		conn:     conn,
		events:   make(chan Device, 32),
		log:      log.WithComponent("stagelinq.discovery"),
	}, nil
}

// Registry exposes the engine's device registry for snapshot reads.
func (e *Engine) Registry() *Registry { return e.registry }

// Events returns the lazy device-update stream. The channel closes when
// the engine's Run loop returns.
func (e *Engine) Events() <-chan Device { return e.events }

// Run starts listening and announcing until ctx is cancelled, then sends
// a single EXIT and closes the socket.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.events)
	defer e.conn.Close()

	go e.listenLoop(ctx)

	ticker := time.NewTicker(e.cfg.AnnounceInterval)
	defer ticker.Stop()

	e.announce(wire.ActionHowdy)
	for {
		select {
		case <-ctx.Done():
			e.announce(wire.ActionExit)
			return nil
		case <-ticker.C:
			e.announce(wire.ActionHowdy)
		}
	}
}

func (e *Engine) announce(action string) {
	msg := wire.DiscoveryMessage{
		Token:           e.cfg.Self,
		Source:          e.cfg.DeviceName,
		Action:          action,
		SoftwareName:    e.cfg.SoftwareName,
		SoftwareVersion: e.cfg.SoftwareVersion,
		Port:            uint16(e.cfg.Port),
	}
	payload, err := msg.Encode()
	if err != nil {
		e.log.Error().Err(err).Msg("encode discovery announcement")
		return
	}
	for _, addr := range broadcastAddresses(e.cfg.Port) {
		if _, err := e.conn.WriteToUDP(payload, addr); err != nil {
			e.log.Warn().Err(err).Str("addr", addr.String()).Msg("send discovery announcement")
			continue
		}
	}
}

func (e *Engine) listenLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = e.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				e.log.Warn().Err(err).Msg("discovery read")
				continue
			}
		}
		msg, err := wire.DecodeDiscoveryMessage(buf[:n])
		if err != nil {
			e.log.Debug().Err(err).Msg("malformed discovery datagram")
			continue
		}
		if msg == nil {
			continue
		}
		if msg.Token == e.cfg.Self {
			continue
		}
		state := Present
		if msg.Action == wire.ActionExit {
			state = Leaving
		}
		d := Device{
			IP:              addr.IP.String(),
			Port:            msg.Port,
			Name:            msg.Source,
			SoftwareName:    msg.SoftwareName,
			SoftwareVersion: msg.SoftwareVersion,
			Token:           msg.Token,
			State:           state,
		}
		updated, changed := e.registry.Apply(d)
		if !changed {
			continue
		}
		select {
		case e.events <- updated:
		case <-ctx.Done():
			return
		}
	}
}

// broadcastAddresses enumerates the subnet broadcast address of every
// non-loopback interface.
//
// No third-party library in the retrieval pack covers network-interface
// enumeration, so this uses net.Interfaces and Interface.Addrs directly.
func broadcastAddresses(port int) []*net.UDPAddr {
	var out []*net.UDPAddr
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipNet.Mask
			bcast := make(net.IP, len(ip4))
			for i := range ip4 {
				bcast[i] = ip4[i] | ^mask[i]
			}
			out = append(out, &net.UDPAddr{IP: bcast, Port: port})
		}
	}
	return out
}
