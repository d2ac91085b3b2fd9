package preview

// Type identifies a server-to-client message. Every websocket message
// begins with one Type byte.
type Type = uint8

const (
	// Hello carries the frame geometry and sample rate: four uint16s
	// (width, height) followed by a uint32 (sample rate), little endian.
	Hello Type = iota
	// Frame carries one full RGBA frame.
	Frame
	// FrameRepeat signals that the previous frame is unchanged.
	FrameRepeat
	// Status carries a UTF-8 progress line.
	Status
	// Closing signals that the render has finished and the server is
	// shutting down.
	Closing
)
