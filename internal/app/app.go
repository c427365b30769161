// Package app runs the CLI roles (host, client, list) on top of a relay
// Transport.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/transport"
)

const eventBuffer = 256

// NewChannel returns an unconnected channel of the given kind.
func NewChannel(kind config.ChannelKind) (channel.Channel, error) {
	switch kind {
	case config.ChannelWebSocket:
		return channel.NewWebSocketChannel(), nil
	case config.ChannelWebRTC:
		return channel.NewRTCChannel(), nil
	}
	return nil, fmt.Errorf("unknown channel %q", kind)
}

// session is a connected Transport and the queue its events arrive on.
type session struct {
	tr     *transport.Transport
	events *transport.EventQueue
}

func startSession(ctx context.Context, cfg config.Config, ch channel.Channel) (*session, error) {
	events := transport.NewEventQueue(eventBuffer)
	tr := transport.New(cfg, ch, events)
	if err := tr.Start(ctx); err != nil {
		events.Close()
		return nil, err
	}
	return &session{tr: tr, events: events}, nil
}

// run drives the Transport alongside loop until loop returns, the relay
// connection is lost or ctx is cancelled. Cancellation is not an error.
func (s *session) run(ctx context.Context, loop func(ctx context.Context) error) error {
	defer s.events.Close()
	defer s.tr.Close()

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		return s.tr.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return loop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
