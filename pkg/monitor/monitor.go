// Package monitor exposes a routing engine's metrics and topology as plain
// HTTP endpoints for an external visualiser, grounded on pkg/nspkt/
// monitor.go's debug-server pattern: gzip-negotiated CSV dumps plus a
// server-sent-events stream for live topology updates.
package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/arjunv/wsnmesh/db/historydb"
	"github.com/arjunv/wsnmesh/pkg/mactp"
	"github.com/arjunv/wsnmesh/pkg/routing"
)

// PrometheusWriter is implemented by transports (currently pkg/mactp/udpmac)
// that expose ambient VictoriaMetrics/metrics counters.
type PrometheusWriter interface {
	WritePrometheus(w io.Writer)
}

// Handler serves monitoring endpoints for a single running routing engine.
type Handler struct {
	Self      mactp.Addr
	Transport routing.Transport

	// History, if non-nil, backs /topology/history.csv.
	History *historydb.DB

	// MAC, if non-nil, backs /mac/metrics.
	MAC PrometheusWriter

	// StreamInterval is how often /topology/stream pushes a new snapshot.
	// Defaults to 10 seconds.
	StreamInterval time.Duration

	// TopologyBufSize bounds the buffer used to format topology CSV rows.
	// Defaults to 16384.
	TopologyBufSize int
}

func (h *Handler) bufSize() int {
	if h.TopologyBufSize > 0 {
		return h.TopologyBufSize
	}
	return 16384
}

func (h *Handler) interval() time.Duration {
	if h.StreamInterval > 0 {
		return h.StreamInterval
	}
	return 10 * time.Second
}

// Mux builds a *http.ServeMux with every available endpoint registered.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics.csv", h.MetricsCSV)
	mux.HandleFunc("/topology.csv", h.TopologyCSV)
	mux.HandleFunc("/topology/stream", h.TopologyStream)
	if h.History != nil {
		mux.HandleFunc("/topology/history.csv", h.TopologyHistoryCSV)
	}
	if h.MAC != nil {
		mux.HandleFunc("/mac/metrics", h.MACMetrics)
	}
	return mux
}

// MetricsCSV serves the routing engine's reset-on-read counters for this
// node as a two-line CSV document (header, then one row for Self).
func (h *Handler) MetricsCSV(w http.ResponseWriter, r *http.Request) {
	buf := []byte(h.Transport.MetricsHeader() + "\n" + h.Transport.MetricsRow(h.Self) + "\n")
	respMaybeGzip(w, r, "text/csv; charset=utf-8", buf)
}

// TopologyCSV serves the current neighbour-table snapshot as CSV.
func (h *Handler) TopologyCSV(w http.ResponseWriter, r *http.Request) {
	rows := make([]byte, h.bufSize())
	n := h.Transport.TopologyRows(rows, len(rows))
	buf := []byte(h.Transport.TopologyHeader() + "\n")
	buf = append(buf, rows[:n]...)
	respMaybeGzip(w, r, "text/csv; charset=utf-8", buf)
}

// TopologyHistoryCSV serves every recorded snapshot since the "since" query
// parameter (a unix timestamp; defaults to one hour ago).
func (h *Handler) TopologyHistoryCSV(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			since = time.Unix(v, 0)
		} else {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
	}

	snaps, err := h.History.Since(r.Context(), h.Self, since)
	if err != nil {
		http.Error(w, "query history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	buf.WriteString(h.Transport.TopologyHeader())
	buf.WriteByte('\n')
	for _, s := range snaps {
		e := s.Entry
		fmt.Fprintf(&buf, "%d,%d,%d,%d,%d,%d,%d,%d\n",
			s.Timestamp.Unix(), s.Self, e.Addr, int(e.State), int(e.Link), e.RSSI, e.Parent, e.ParentRSSI)
	}
	respMaybeGzip(w, r, "text/csv; charset=utf-8", buf.Bytes())
}

// TopologyStream serves topology snapshots as server-sent events, one
// "topology" event every StreamInterval until the client disconnects.
func (h *Handler) TopologyStream(w http.ResponseWriter, r *http.Request) {
	f, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "cannot stream events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "private, no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	io.WriteString(w, "event: init\ndata: "+strconv.Itoa(int(h.Self))+"\n\n")
	f.Flush()

	h.pushSnapshot(w)
	f.Flush()

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pushSnapshot(w)
			f.Flush()
		}
	}
}

func (h *Handler) pushSnapshot(w io.Writer) {
	rows := make([]byte, h.bufSize())
	n := h.Transport.TopologyRows(rows, len(rows))

	io.WriteString(w, "event: topology\ndata: "+h.Transport.TopologyHeader()+"\n")
	for _, line := range strings.Split(strings.TrimRight(string(rows[:n]), "\n"), "\n") {
		if line == "" {
			continue
		}
		io.WriteString(w, "data: "+line+"\n")
	}
	io.WriteString(w, "\n")
}

// MACMetrics serves the MAC transport's VictoriaMetrics/metrics counters in
// Prometheus exposition format.
func (h *Handler) MACMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	h.MAC.WritePrometheus(w)
}

// respMaybeGzip writes buf with a Content-Type header, compressing it with
// gzip when the client advertises support and compression actually shrinks
// the payload, mirroring pkg/api/api0's respMaybeCompress.
func respMaybeGzip(w http.ResponseWriter, r *http.Request, contentType string, buf []byte) {
	w.Header().Set("Content-Type", contentType)
	for _, e := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if t, _, _ := strings.Cut(e, ";"); strings.TrimSpace(t) == "gzip" {
			var cbuf bytes.Buffer
			gw := gzip.NewWriter(&cbuf)
			if _, err := gw.Write(buf); err != nil {
				break
			}
			if err := gw.Close(); err != nil {
				break
			}
			if cbuf.Len() < int(float64(len(buf))*0.8) {
				buf = cbuf.Bytes()
				w.Header().Set("Content-Encoding", "gzip")
			}
			break
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(buf)
	}
}
