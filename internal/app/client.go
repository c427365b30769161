package app

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/transport"
	"github.com/1ureka/darkrelay/internal/util"
)

// RunClient joins room target, sends every line read from in to the host
// and writes every payload received to out. It returns when the host
// closes the room, the relay connection is lost or ctx is cancelled.
func RunClient(ctx context.Context, cfg config.Config, ch channel.Channel, target string, in io.Reader, out io.Writer) error {
	s, err := startSession(ctx, cfg, ch)
	if err != nil {
		return err
	}

	return s.run(ctx, func(ctx context.Context) error {
		if err := s.tr.ClientConnect(ctx, target); err != nil {
			return fmt.Errorf("failed to join room %s: %w", target, err)
		}
		return s.clientLoop(ctx, in, out)
	})
}

func (s *session) clientLoop(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if err := s.tr.ClientDisconnect(); err != nil {
				util.LogDebug("client disconnect: %v", err)
			}
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if !s.tr.ClientConnected() {
				util.LogWarning("not in the room yet, dropping input")
				continue
			}
			if err := s.tr.ClientSend(transport.ChannelReliable, []byte(line)); err != nil {
				return err
			}

		case e := <-s.events.Events():
			switch e.Type {
			case transport.EventClientConnected:
				id, _ := s.tr.ClientPeerID()
				util.LogSuccess("joined room as peer %d", id)

			case transport.EventClientData:
				fmt.Fprintf(out, "%s\n", e.Payload)

			case transport.EventClientDisconnected:
				util.LogInfo("host closed the room")
				return nil
			}
		}
	}
}
