package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide relay traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent    atomic.Int64 // frames handed to the relay channel
	FramesRecv    atomic.Int64 // frames received from the relay channel
	FramesDropped atomic.Int64 // inbound frames discarded (undecodable or unroutable)
	BytesSent     atomic.Int64 // cumulative frame bytes sent
	BytesRecv     atomic.Int64 // cumulative frame bytes received
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddDropped() { s.FramesDropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter logs.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds on clk. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, clk clock.Clock) {
	startReporter(ctx, clk, Stats, func(line string) { pterm.DefaultLogger.Info(line) })
}

// startReporter passes one summary of s per interval with any traffic to
// report. The ticker exists by the time it returns.
func startReporter(ctx context.Context, clk clock.Clock, s *stats, report func(string)) {
	ticker := clk.Ticker(reportInterval)
	seconds := reportInterval.Seconds()

	go func() {
		defer ticker.Stop()

		var prevBytesSent, prevBytesRecv, prevSent, prevRecv, prevDropped int64
		for {
			select {
			case <-ticker.C:
				bytesSent := s.BytesSent.Load()
				bytesRecv := s.BytesRecv.Load()
				sent := s.FramesSent.Load()
				recv := s.FramesRecv.Load()
				dropped := s.FramesDropped.Load()

				outS := float64(bytesSent-prevBytesSent) / seconds
				inS := float64(bytesRecv-prevBytesRecv) / seconds
				outF := sent - prevSent
				inF := recv - prevRecv
				dropF := dropped - prevDropped

				if inF > 0 || outF > 0 || dropF > 0 {
					report(formatStats(inS, outS, inF, outF, dropF))
				}

				prevBytesSent = bytesSent
				prevBytesRecv = bytesRecv
				prevSent = sent
				prevRecv = recv
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inF, outF, dropF int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Frames: %3d↓ %3d↑ | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		inF,
		outF,
		dropF,
	)
}
