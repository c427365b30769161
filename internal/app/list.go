package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/darkrelay/internal/channel"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/transport"
)

// listTimeout covers the directory request's own wait plus a round trip.
const listTimeout = 12 * time.Second

var errNoListing = errors.New("relay sent no room listing")

// RunList requests the relay's room directory and renders it to out.
func RunList(ctx context.Context, cfg config.Config, ch channel.Channel, out io.Writer) error {
	s, err := startSession(ctx, cfg, ch)
	if err != nil {
		return err
	}

	return s.run(ctx, func(ctx context.Context) error {
		s.tr.RequestServerList()

		timeout := time.NewTimer(listTimeout)
		defer timeout.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timeout.C:
				return errNoListing
			case e := <-s.events.Events():
				if e.Type == transport.EventDirectoryUpdated {
					return renderRooms(out, e.Rooms)
				}
			}
		}
	})
}

func renderRooms(out io.Writer, rooms []transport.RoomInfo) error {
	if len(rooms) == 0 {
		_, err := fmt.Fprintln(out, "No rooms listed.")
		return err
	}

	data := pterm.TableData{{"Room ID", "Name", "Players", "Info"}}
	for _, r := range rooms {
		data = append(data, []string{
			strconv.Itoa(int(r.RoomID)),
			r.Name,
			fmt.Sprintf("%d/%d", r.CurrentPlayers, r.MaxPlayers),
			r.ExtraData,
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, table)
	return err
}
