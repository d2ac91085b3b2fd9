// Package preview streams render progress over websockets so a browser
// can watch the oscilloscope frames as they are encoded.
package preview

import (
	"encoding/binary"
	"net/http"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/gorilla/websocket"

	"github.com/thelolagemann/go-nsf/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 16,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server broadcasts frames and status lines to any number of connected
// viewers. Frames identical to the previous one collapse into a
// FrameRepeat message.
type Server struct {
	addr string
	log  log.Logger

	width, height int
	sampleRate    int

	clients              map[*client]bool
	broadcast            chan []byte
	register, unregister chan *client

	lastFrameHash uint64
	lastFrame     []byte
	mu            sync.Mutex
}

func New(addr string, width, height, sampleRate int, logger log.Logger) *Server {
	return &Server{
		addr:       addr,
		log:        logger,
		width:      width,
		height:     height,
		sampleRate: sampleRate,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Start begins listening and serving viewers. It does not block.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Errorf("preview: upgrading connection: %v", err)
			return
		}

		c := &client{server: s, conn: conn, send: make(chan []byte, 256)}
		s.register <- c

		go c.readPump()
		go c.writePump()

		c.send <- s.hello()

		// late joiners get the current frame immediately
		s.mu.Lock()
		if s.lastFrame != nil {
			c.send <- s.lastFrame
		}
		s.mu.Unlock()
	})

	go func() {
		s.log.Infof("preview server listening on %s", s.addr)
		if err := http.ListenAndServe(s.addr, mux); err != nil {
			s.log.Errorf("preview: %v", err)
		}
	}()

	go s.run()
}

func (s *Server) run() {
	for {
		select {
		case c := <-s.register:
			s.clients[c] = true
		case c := <-s.unregister:
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
			}
		case message := <-s.broadcast:
			for c := range s.clients {
				select {
				case c.send <- message:
				default:
					// viewer too slow, drop it
					delete(s.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (s *Server) hello() []byte {
	message := make([]byte, 9)
	message[0] = Hello
	binary.LittleEndian.PutUint16(message[1:], uint16(s.width))
	binary.LittleEndian.PutUint16(message[3:], uint16(s.height))
	binary.LittleEndian.PutUint32(message[5:], uint32(s.sampleRate))
	return message
}

// PushFrame broadcasts an RGBA frame, deduplicating repeats by hash.
func (s *Server) PushFrame(frame []byte) {
	if frame == nil {
		return
	}

	hash := xxhash.Sum64(frame)

	s.mu.Lock()
	repeat := hash == s.lastFrameHash && s.lastFrame != nil
	if !repeat {
		s.lastFrameHash = hash
		s.lastFrame = append([]byte{Frame}, frame...)
	}
	message := s.lastFrame
	s.mu.Unlock()

	if repeat {
		message = []byte{FrameRepeat}
	}
	select {
	case s.broadcast <- message:
	default:
	}
}

// PushStatus broadcasts a progress line.
func (s *Server) PushStatus(status string) {
	select {
	case s.broadcast <- append([]byte{Status}, status...):
	default:
	}
}

// Close notifies viewers that the render has finished.
func (s *Server) Close() {
	select {
	case s.broadcast <- []byte{Closing}:
	default:
	}
}
