package emulator

import "fmt"

// SongPosition is the driver's pattern cursor, read from emulated RAM.
// It keys the loop-detection map, so the whole value participates in
// equality.
type SongPosition struct {
	Ended bool
	Frame uint8
	Row   uint8
}

func (p SongPosition) String() string {
	if p.Ended {
		return "end"
	}
	return fmt.Sprintf("%02X:%02X", p.Frame, p.Row)
}
