// Package observer serves a loopback-only metrics feed over websocket:
// an observer subscribes and receives periodic STATS frames describing
// the chunk service. It is read-only and never carries chunk contents.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chunkserve.dev/internal/protocol"
	"chunkserve.dev/internal/server"
)

// StatsSource is the slice of the chunk service the observer reads.
type StatsSource interface {
	Stats() server.Stats
}

// Bootstrap is the static information served to observers before they
// open the websocket.
type Bootstrap struct {
	Seed           int64
	PollIntervalMs int
}

type Server struct {
	source StatsSource
	boot   Bootstrap
	log    *log.Logger

	upgrader websocket.Upgrader
	nextSeq  atomic.Uint64

	// Interval bounds for SUBSCRIBE retunes.
	minInterval time.Duration
	maxInterval time.Duration
}

func NewServer(source StatsSource, boot Bootstrap, logger *log.Logger) *Server {
	return &Server{
		source: source,
		boot:   boot,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback-gated below
		},
		minInterval: 50 * time.Millisecond,
		maxInterval: 10 * time.Second,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			ChunkSize:       [3]int{16, 16, 16},
			Seed:            s.boot.Seed,
			PollIntervalMs:  s.boot.PollIntervalMs,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, code := s.decodeSubscribe(msg)
		if code != "" {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
			return
		}

		interval := s.clampInterval(sub.IntervalMs)
		retune := make(chan time.Duration, 1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: one STATS frame per interval.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-retune:
					ticker.Reset(d)
				case <-ticker.C:
					if err := s.writeStats(conn); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE retunes.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, code := s.decodeSubscribe(msg)
			if code != "" {
				continue
			}
			select {
			case retune <- s.clampInterval(sub.IntervalMs):
			default:
				// A retune is already pending; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait so the writer doesn't outlive conn.
		select {
		case <-writeDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) writeStats(conn *websocket.Conn) error {
	st := s.source.Stats()
	frame := protocol.StatsMsg{
		Type:            protocol.TypeStats,
		ProtocolVersion: protocol.Version,
		Seq:             s.nextSeq.Add(1),
		At:              time.Now().UTC().Format(time.RFC3339Nano),
		Stats: protocol.ServiceStats{
			Resident:  st.Resident,
			Queued:    st.Queued,
			InFlight:  st.InFlight,
			Batches:   st.Batches,
			Generated: st.Generated,
			Failed:    st.Failed,
			GenTimeUs: st.GenTime.Microseconds(),
		},
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) decodeSubscribe(msg []byte) (protocol.SubscribeMsg, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.SubscribeMsg{}, protocol.ErrProtoBadRequest
	}
	if base.Type != protocol.TypeSubscribe {
		return protocol.SubscribeMsg{}, protocol.ErrSubscribeRequired
	}
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return protocol.SubscribeMsg{}, protocol.ErrProtoBadRequest
	}
	if sub.ProtocolVersion != protocol.Version {
		return protocol.SubscribeMsg{}, protocol.ErrBadVersion
	}
	return sub, ""
}

func (s *Server) clampInterval(ms int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d <= 0 {
		d = time.Second
	}
	if d < s.minInterval {
		d = s.minInterval
	}
	if d > s.maxInterval {
		d = s.maxInterval
	}
	return d
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
