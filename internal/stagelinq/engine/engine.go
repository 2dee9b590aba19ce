// SPDX-License-Identifier: MIT

// Package engine orchestrates discovery and connection into a
// reconnect loop: find a device offering a StateMap service, connect,
// subscribe, and feed the audibility selector, retrying indefinitely
// on failure.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/audibility"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/connection"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/discovery"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statemap"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/statepath"
	"github.com/sl-cache/stagelinq-cache/internal/stagelinq/token"
)

// SettleDelay is how long to wait after a device is discovered before
// connecting, to give the device time to trust our announcements.
const SettleDelay = 3 * time.Second

// RetryDelay is the backoff between failed connection attempts.
const RetryDelay = 10 * time.Second

const stateMapServiceName = "StateMap"

// Engine wires discovery, the directory handshake, and StateMap
// subscription into the audibility Selector.
type Engine struct {
	self     token.Token
	selector *audibility.Selector
	log      zerolog.Logger
}

// New builds an Engine that will feed the given Selector.
func New(self token.Token, selector *audibility.Selector) *Engine {
	return &Engine{self: self, selector: selector, log: log.WithComponent("stagelinq.engine")}
}

// Run discovers devices and monitors the first one offering a StateMap
// service, reconnecting indefinitely on failure until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	disc, err := discovery.NewEngine(discovery.DefaultConfig(e.self))
	if err != nil {
		return err
	}

	discCtx, cancelDisc := context.WithCancel(ctx)
	defer cancelDisc()
	go func() {
		if err := disc.Run(discCtx); err != nil {
			e.log.Error().Err(err).Msg("discovery engine stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case dev, ok := <-disc.Events():
			if !ok {
				return nil
			}
			if dev.State != discovery.Present {
				continue
			}
			for {
				time.Sleep(SettleDelay)
				devCtx := log.ContextWithCorrelationID(ctx, dev.Token.String())
				err := e.monitorDevice(devCtx, dev)
				if err == nil {
					break
				}
				log.WithContext(devCtx, e.log).Warn().Err(err).Str("device", dev.String()).Msg("device monitoring failed, will retry")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(RetryDelay):
				}
				cur, present := disc.Registry().Get(dev.Token)
				if !present {
					break
				}
				dev = cur
			}
		}
	}
}

func (e *Engine) monitorDevice(ctx context.Context, dev discovery.Device) error {
	devLog := log.WithContext(ctx, e.log)
	devLog.Info().Str("device", dev.String()).Msg("monitoring device")

	conn, err := connection.Dial(ctx, dev.Endpoint(), e.self)
	if err != nil {
		return err
	}
	defer conn.Close()

	services, err := conn.DiscoverServices(ctx, dev.Token)
	if err != nil {
		return err
	}

	var stateMapPort uint16
	found := false
	for _, svc := range services {
		if svc.Name == stateMapServiceName {
			stateMapPort = svc.Port
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	conn.StartKeepAlive(ctx)

	sock, err := connection.OpenChannel(ctx, dev.IP, stateMapPort, e.self, stateMapServiceName, 0)
	if err != nil {
		return err
	}
	defer sock.Close()

	ch := statemap.NewChannel(sock)
	if err := ch.SubscribeAll(statepath.SubscriptionSet()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		st, err := ch.Recv(ctx)
		if err != nil {
			return err
		}
		e.selector.UpdateState(st)
	}
}
