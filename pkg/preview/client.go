package preview

import (
	"github.com/gorilla/websocket"
)

type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
}

// readPump drains the connection until it closes. Viewers never send
// meaningful data; the pump exists to observe disconnects.
func (c *client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
