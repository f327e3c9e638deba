// Package web serves the status API and the live tick stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"levelalarm/internal/alarm"
	"levelalarm/internal/levelcontrol"
	"levelalarm/internal/speed"
)

// Status is the aggregate view served on /api/status.
type Status struct {
	Tick  levelcontrol.Snapshot `json:"tick"`
	Alarm alarm.Snapshot        `json:"alarm"`
	Speed speed.Snapshot        `json:"speed"`
}

// StatusFunc assembles the current status from the running services.
type StatusFunc func() Status

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from anywhere on the vehicle's private network.
	CheckOrigin: func(*http.Request) bool { return true },
}

func Handler(status StatusFunc, bcast *Broadcaster, log *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := json.MarshalIndent(status(), "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/api/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnw("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		id, ch := bcast.Subscribe(4)
		defer bcast.Unsubscribe(id)

		// Drain the client side so we notice the close.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for snap := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	})

	return mux
}

// Server wraps the HTTP listener lifecycle.
type Server struct {
	log *zap.SugaredLogger
	srv *http.Server
}

func NewServer(listen string, status StatusFunc, bcast *Broadcaster, log *zap.SugaredLogger) *Server {
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              listen,
			Handler:           Handler(status, bcast, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Infow("web server listening", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warnw("web server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return nil
}

func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
