// Package console serves a read-only live view of headless terminal logs
// over websockets, for watching a session from a browser or local tool.
package console

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// backlogBytes is how much existing log a new subscriber receives before
// live tailing begins.
const backlogBytes = 4096

type Server struct {
	logDir   string
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(logDir string) *Server {
	return &Server{
		logDir: logDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The listener is loopback-only; no origin policy needed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving on listen in the background. An empty listen address
// disables the console endpoint.
func (s *Server) Start(listen string) {
	if listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/console/", s.handleStream)
	s.httpSrv = &http.Server{Addr: listen, Handler: mux}

	go func() {
		log.Printf("Console stream listening on %s", listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Console stream listener failed: %v", err)
		}
	}()
}

// Shutdown stops the listener. Live subscriber connections are closed by the
// server teardown.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpSrv != nil {
		_ = s.httpSrv.Shutdown(ctx)
	}
}

// LogPath is where a session's raw terminal output lives.
func (s *Server) LogPath(name string) string {
	return filepath.Join(s.logDir, name+".log")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/console/")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		http.Error(w, "invalid session name", http.StatusBadRequest)
		return
	}

	logPath := s.LogPath(name)
	file, err := os.Open(logPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("no log for session %q", name), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		file.Close()
		return
	}

	log.Printf("Console subscriber attached: session=%s remote=%s", name, r.RemoteAddr)
	go s.tail(conn, file)
}

// tail replays a short backlog and then streams appended bytes until the
// subscriber disconnects.
func (s *Server) tail(conn *websocket.Conn, file *os.File) {
	defer conn.Close()
	defer file.Close()

	done := make(chan struct{})
	go func() {
		// Drain reads so close frames are processed.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var offset int64
	if stat, err := file.Stat(); err == nil {
		offset = stat.Size() - backlogBytes
		if offset < 0 {
			offset = 0
		}
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := file.ReadAt(buf, offset)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
			offset += int64(n)
		}
		if err != nil && err != io.EOF {
			return
		}

		time.Sleep(100 * time.Millisecond)
	}
}
