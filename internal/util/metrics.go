package util

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRegistry exposes the counters of s as Prometheus counters.
func newRegistry(s *stats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		counterFunc("darkrelay_frames_sent_total", "Frames handed to the relay channel.", s.FramesSent.Load),
		counterFunc("darkrelay_frames_received_total", "Frames received from the relay channel.", s.FramesRecv.Load),
		counterFunc("darkrelay_frames_dropped_total", "Inbound frames discarded as undecodable or unroutable.", s.FramesDropped.Load),
		counterFunc("darkrelay_bytes_sent_total", "Frame bytes sent to the relay.", s.BytesSent.Load),
		counterFunc("darkrelay_bytes_received_total", "Frame bytes received from the relay.", s.BytesRecv.Load),
	)
	return reg
}

func counterFunc(name, help string, load func() int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(load()) },
	)
}

func metricsHandler(s *stats) http.Handler {
	return promhttp.HandlerFor(newRegistry(s), promhttp.HandlerOpts{})
}

// StartMetricsServer serves the relay statistics at /metrics on addr until
// ctx is cancelled. It returns once the listener is bound.
func StartMetricsServer(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler(Stats))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			LogWarning("metrics server stopped: %v", err)
		}
	}()

	LogInfo("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}
