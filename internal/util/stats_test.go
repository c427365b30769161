package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, formatBytes(tc.in))
		assert.Len(t, formatBytes(tc.in), 8)
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(1536, 0, 12, 3, 1)
	assert.Equal(t, "In:  1.5 KiB/s | Out:  0.0   B/s | Frames:  12↓   3↑ | Dropped: 1", got)
}

func TestStatsCounters(t *testing.T) {
	s := &stats{}
	s.AddSent(10)
	s.AddSent(5)
	s.AddRecv(7)
	s.AddDropped()

	assert.EqualValues(t, 2, s.FramesSent.Load())
	assert.EqualValues(t, 15, s.BytesSent.Load())
	assert.EqualValues(t, 1, s.FramesRecv.Load())
	assert.EqualValues(t, 7, s.BytesRecv.Load())
	assert.EqualValues(t, 1, s.FramesDropped.Load())
}

func TestNewLoggerPrefix(t *testing.T) {
	assert.Equal(t, "[transport] ", NewLogger("transport", "").prefix)
	assert.Equal(t, "[ws 0123abcd] ", NewLogger("ws", "0123abcd").prefix)
	assert.Len(t, NewConnTag(), 8)
}

func TestMetricsHandler(t *testing.T) {
	s := &stats{}
	s.AddSent(10)
	s.AddSent(5)
	s.AddDropped()

	rec := httptest.NewRecorder()
	metricsHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "darkrelay_frames_sent_total 2")
	assert.Contains(t, body, "darkrelay_bytes_sent_total 15")
	assert.Contains(t, body, "darkrelay_frames_dropped_total 1")
	assert.Contains(t, body, "darkrelay_frames_received_total 0")
}

func TestStartMetricsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, StartMetricsServer(ctx, "127.0.0.1:0"))
	assert.Error(t, StartMetricsServer(ctx, "127.0.0.1:-1"))
}

func TestStatsReporter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := clock.NewMock()
	s := &stats{}
	lines := make(chan string, 4)
	startReporter(ctx, mock, s, func(line string) { lines <- line })

	next := func() string {
		t.Helper()
		select {
		case line := <-lines:
			return line
		case <-time.After(time.Second):
			t.Fatal("no report")
			return ""
		}
	}

	s.AddRecv(15360)
	s.AddSent(10)
	mock.Add(reportInterval)
	assert.Equal(t, formatStats(1536, 1, 1, 1, 0), next())

	// A quiet interval logs nothing; only the next busy one does.
	mock.Add(reportInterval)
	s.AddDropped()
	mock.Add(reportInterval)
	assert.Equal(t, formatStats(0, 0, 0, 0, 1), next())

	select {
	case line := <-lines:
		t.Fatalf("unexpected report %q", line)
	default:
	}
}
