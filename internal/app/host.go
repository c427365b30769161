package app

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/transport"
	"github.com/1ureka/darkrelay/internal/util"
)

// RunHost orchestrates the full host lifecycle:
//  1. Connect to the relay over ch
//  2. Create a room and print its URI
//  3. Echo every payload back to the peer that sent it
//  4. Leave the room when ctx is cancelled
func RunHost(ctx context.Context, cfg config.Config, ch channel.Channel) error {
	s, err := startSession(ctx, cfg, ch)
	if err != nil {
		return err
	}

	return s.run(ctx, func(ctx context.Context) error {
		if err := s.tr.ServerStart(ctx); err != nil {
			return fmt.Errorf("failed to host room: %w", err)
		}

		uri, err := s.tr.ServerURI()
		if err != nil {
			return err
		}
		printRoom(cfg, uri.Host, uri.String())

		return s.hostLoop(ctx)
	})
}

func (s *session) hostLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if err := s.tr.ServerStop(); err != nil {
				util.LogDebug("server stop: %v", err)
			}
			return ctx.Err()

		case e := <-s.events.Events():
			switch e.Type {
			case transport.EventServerConnected:
				addr, _ := s.tr.ServerClientAddress(e.Handle)
				util.LogSuccess("peer %d connected (relay ID %s)", e.Handle, addr)

			case transport.EventServerDisconnected:
				util.LogInfo("peer %d disconnected", e.Handle)

			case transport.EventServerData:
				util.LogDebug("peer %d sent %d bytes on channel %d", e.Handle, len(e.Payload), e.ChannelID)
				if err := s.tr.ServerSend([]transport.PeerHandle{e.Handle}, e.ChannelID, e.Payload); err != nil {
					util.LogWarning("failed to echo to peer %d: %v", e.Handle, err)
				}
			}
		}
	}
}

func printRoom(cfg config.Config, roomID, uri string) {
	listed := "yes"
	if !cfg.ShowOnServerList {
		listed = "no"
	}
	pterm.DefaultBox.WithTitle("DarkRelay Room").Println(fmt.Sprintf(
		"Room ID : %s\nURI     : %s\nName    : %s\nListed  : %s",
		roomID, uri, cfg.ServerName, listed,
	))
}
