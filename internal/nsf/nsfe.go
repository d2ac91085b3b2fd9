package nsf

import (
	"encoding/binary"
	"fmt"
)

// Track holds the optional per-track NSFe metadata. Duration and fade-out
// are converted from milliseconds to whole frames at parse time.
type Track struct {
	Label    string
	Author   string
	Duration int
	Fadeout  int

	HasLabel    bool
	HasAuthor   bool
	HasDuration bool
	HasFadeout  bool
}

// Metadata is the aggregate of every recognized NSFe chunk. Track indices
// are 1-based, matching the NSF starting-song convention.
type Metadata struct {
	Title     string
	Artist    string
	Copyright string
	Ripper    string
	Text      string

	Playlist    []int
	VRC7Patches []uint8

	tracks map[int]*Track
}

// TrackInfo returns the metadata for a 1-based track index, or nil.
func (m *Metadata) TrackInfo(index int) *Track {
	return m.tracks[index]
}

func (m *Metadata) track(index int) *Track {
	t, ok := m.tracks[index]
	if !ok {
		t = &Track{}
		m.tracks[index] = t
	}
	return t
}

type chunk struct {
	fourCC string
	data   []byte
}

func splitChunks(data []byte) ([]chunk, error) {
	var chunks []chunk
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("truncated chunk header: %d bytes left", len(data))
		}
		length := int(binary.LittleEndian.Uint32(data))
		fourCC := string(data[4:8])
		data = data[8:]
		if length > len(data) {
			return nil, fmt.Errorf("chunk %q is %d bytes short", fourCC, length-len(data))
		}
		chunks = append(chunks, chunk{fourCC: fourCC, data: data[:length]})
		data = data[length:]
	}
	return chunks, nil
}

func chunkStrings(data []byte) []string {
	var out []string
	for len(data) > 0 {
		end := 0
		for end < len(data) && data[end] != 0 {
			end++
		}
		out = append(out, string(data[:end]))
		if end < len(data) {
			end++
		}
		data = data[end:]
	}
	return out
}

func chunkInt32s(data []byte) ([]int32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("i32 array has invalid length %d", len(data))
	}
	out := make([]int32, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		out = append(out, int32(binary.LittleEndian.Uint32(data[i:])))
	}
	return out, nil
}

func chunkUint16s(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("u16 array has invalid length %d", len(data))
	}
	out := make([]uint16, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		out = append(out, binary.LittleEndian.Uint16(data[i:]))
	}
	return out, nil
}

// millisecondsToFrames converts an NSFe millisecond field to whole frames.
func millisecondsToFrames(ms int32) int {
	return int(float64(ms) * Framerate / 1000)
}

func parseMetadata(data []byte) (*Metadata, error) {
	chunks, err := splitChunks(data)
	if err != nil {
		return nil, err
	}

	m := &Metadata{tracks: make(map[int]*Track)}
	for _, c := range chunks {
		switch c.fourCC {
		case "NEND":
			return m, nil
		case "auth":
			fields := chunkStrings(c.data)
			get := func(i int) string {
				if i < len(fields) {
					return fields[i]
				}
				return ""
			}
			m.Title, m.Artist, m.Copyright, m.Ripper = get(0), get(1), get(2), get(3)
		case "text":
			if fields := chunkStrings(c.data); len(fields) > 0 {
				m.Text = fields[0]
			}
		case "plst":
			for _, t := range c.data {
				m.Playlist = append(m.Playlist, int(t)+1)
			}
		case "time":
			times, err := chunkInt32s(c.data)
			if err != nil {
				return nil, fmt.Errorf("time chunk: %w", err)
			}
			for i, ms := range times {
				t := m.track(i + 1)
				t.Duration = millisecondsToFrames(ms)
				t.HasDuration = true
			}
		case "fade":
			fades, err := chunkInt32s(c.data)
			if err != nil {
				return nil, fmt.Errorf("fade chunk: %w", err)
			}
			for i, ms := range fades {
				t := m.track(i + 1)
				t.Fadeout = millisecondsToFrames(ms)
				t.HasFadeout = true
			}
		case "tlbl":
			for i, label := range chunkStrings(c.data) {
				t := m.track(i + 1)
				t.Label = label
				t.HasLabel = true
			}
		case "taut":
			for i, author := range chunkStrings(c.data) {
				t := m.track(i + 1)
				t.Author = author
				t.HasAuthor = true
			}
		case "VRC7":
			if len(c.data) >= 129 {
				m.VRC7Patches = append([]uint8(nil), c.data[9:129]...)
			}
		}
	}
	return m, nil
}

// nsfeToNSF2 repacks an NSFe image as an NSF2 image: fixed header built
// from the INFO chunk, program bytes from DATA, and the remaining metadata
// chunks appended after the program.
func nsfeToNSF2(data []byte) ([]byte, error) {
	chunks, err := splitChunks(data[4:])
	if err != nil {
		return nil, err
	}

	find := func(fourCC string) []byte {
		for _, c := range chunks {
			if c.fourCC == fourCC {
				return c.data
			}
		}
		return nil
	}

	info := find("INFO")
	if len(info) < 9 {
		return nil, fmt.Errorf("missing or short INFO chunk")
	}
	program := find("DATA")
	if program == nil {
		return nil, fmt.Errorf("missing DATA chunk")
	}

	bankInit := make([]uint8, 8)
	copy(bankInit, find("BANK"))

	var title, artist, copyright string
	if fields := chunkStrings(find("auth")); len(fields) > 0 {
		get := func(i int) string {
			if i < len(fields) {
				return fields[i]
			}
			return ""
		}
		title, artist, copyright = get(0), get(1), get(2)
	}

	rateNTSC, ratePAL := uint16(16639), uint16(19997)
	if rates, err := chunkUint16s(find("RATE")); err == nil {
		if len(rates) > 0 {
			rateNTSC = rates[0]
		}
		if len(rates) > 1 {
			ratePAL = rates[1]
		}
	}

	var nsf2Flags uint8
	if flags := find("NSF2"); len(flags) > 0 {
		nsf2Flags = flags[0]
	}

	startingSong := uint8(1)
	if len(info) > 9 {
		startingSong = info[9] + 1
	}

	headerField := func(s string) []byte {
		b := []byte(s)
		if len(b) > 0x1F {
			b = b[:0x1F]
		}
		return append(b, make([]byte, 0x20-len(b))...)
	}

	out := make([]byte, 0, headerLength+len(program))
	out = append(out, magicNSF...)
	out = append(out, 2)            // version
	out = append(out, info[8])      // total songs
	out = append(out, startingSong)
	out = append(out, info[0:6]...) // load/init/play addresses
	out = append(out, headerField(title)...)
	out = append(out, headerField(artist)...)
	out = append(out, headerField(copyright)...)
	out = binary.LittleEndian.AppendUint16(out, rateNTSC)
	out = append(out, bankInit...)
	out = binary.LittleEndian.AppendUint16(out, ratePAL)
	out = append(out, info[6])         // PAL/NTSC bits
	out = append(out, info[7])         // expansion audio bits
	out = append(out, nsf2Flags|0x80)  // metadata follows the program
	programLength := uint32(len(program))
	out = append(out, uint8(programLength), uint8(programLength>>8), uint8(programLength>>16))

	out = append(out, program...)

	for _, c := range chunks {
		switch c.fourCC {
		case "INFO", "DATA", "BANK", "NSF2":
			continue
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c.data)))
		out = append(out, c.fourCC...)
		out = append(out, c.data...)
	}

	return out, nil
}
