package link

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"rabbitcar/car"
	"rabbitcar/streamer"
)

const CLIENT_BUFFER_SIZE = 32
const WRITE_TIMEOUT = time.Second

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

// Loop accepts events for the control loop; *car.Car satisfies it.
type Loop interface {
	Post(ctx context.Context, ev car.Event) error
}

// Server is the control channel of the companion app: commands come in as
// text messages and telemetry goes out on the same socket. Only one app may
// be connected at a time. The server pings every half read timeout and any
// message or pong keeps the connection alive; a client silent for a whole
// read timeout is dropped, which stops the run.
type Server struct {
	upgrader    websocket.Upgrader
	mu          sync.Mutex
	loop        Loop
	telemetry   *streamer.Streamer[[]byte]
	readTimeout time.Duration
}

func NewServer(loop Loop, telemetry *streamer.Streamer[[]byte], readTimeout time.Duration) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			CheckOrigin:     checkOrigin,
		},
		loop:        loop,
		telemetry:   telemetry,
		readTimeout: readTimeout,
	}
}

func checkOrigin(r *http.Request) bool {
	return true
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.mu.TryLock() {
		log.Print("Websocket multiple connections are not allowed with ", r.RemoteAddr)
		http.Error(w, "another client is connected", http.StatusConflict)
		return
	}
	defer s.mu.Unlock()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("Websocket upgrade error: ", err)
		return
	}
	defer conn.Close()
	client := s.telemetry.NewClient(CLIENT_BUFFER_SIZE)
	if client == nil {
		log.Print("Telemetry is stopped, refusing ", r.RemoteAddr)
		return
	}
	log.Print("Websocket connection established with ", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	})
	written := make(chan struct{})
	go func() {
		defer close(written)
		writeTelemetry(conn, client, max(s.readTimeout/2, time.Millisecond))
	}()

	if err := s.loop.Post(r.Context(), car.Connected()); err != nil {
		log.Print("Could not report connection: ", err)
	} else {
		s.readCommands(r.Context(), conn)
	}

	client.Close()
	conn.Close()
	<-written
	if err := s.loop.Post(context.Background(), car.Disconnected()); err != nil {
		log.Print("Could not report disconnection: ", err)
	}
	log.Print("Websocket connection terminated with ", r.RemoteAddr)
}

func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Print("Websocket read error: ", err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.loop.Post(ctx, car.Command(message)); err != nil {
			log.Print("Could not forward command: ", err)
			return
		}
	}
}

// writeTelemetry owns every data write on conn and returns once client is closed.
func writeTelemetry(conn *websocket.Conn, client *streamer.Client[[]byte], pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	failed := false
	fail := func(err error) {
		log.Print("Websocket write error: ", err)
		failed = true
		conn.Close()
	}
	for {
		select {
		case message, ok := <-client.C:
			if !ok {
				return
			}
			if failed {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
			if err := conn.WriteMessage(websocket.TextMessage, *message); err != nil {
				fail(err)
			}
		case <-ticker.C:
			if failed {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WRITE_TIMEOUT)); err != nil {
				fail(err)
			}
		}
	}
}

// Snapshots is anything that publishes car state; *car.Car satisfies it.
type Snapshots interface {
	Snapshot() *car.Snapshot
}

// StatusHandler serves the latest car state as JSON.
func StatusHandler(source Snapshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := source.Snapshot()
		if snapshot == nil {
			http.Error(w, "no state yet", http.StatusServiceUnavailable)
			return
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			log.Print("Could not encode status: ", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Print("Cannot write response to ", r.RemoteAddr, ": ", err)
		}
	}
}
