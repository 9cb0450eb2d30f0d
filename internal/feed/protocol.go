// Package feed streams published frames to local viewer processes over a
// Unix domain socket (TCP on localhost under Windows).
package feed

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"dark-forest/internal/host"
	"dark-forest/internal/sim"
)

const (
	// DefaultSocketPath is the Unix socket path of the feed
	DefaultSocketPath = "/tmp/dark-forest.sock"

	// DefaultTCPPort is used instead of a socket on Windows
	DefaultTCPPort = "127.0.0.1:9877"

	// Message types
	MsgTypeFrame byte = 0x01
	MsgTypePing  byte = 0x02
	MsgTypePong  byte = 0x03
	MsgTypeHello byte = 0x04

	// ProtocolVersion is checked on every header
	ProtocolVersion uint16 = 1

	MaxMessageSize = 4 * 1024 * 1024
	WriteTimeout   = 50 * time.Millisecond
	PingInterval   = time.Second
	// ReadTimeout exceeds PingInterval so a silent peer means a dead peer
	ReadTimeout    = 3 * PingInterval
	ReconnectDelay = 500 * time.Millisecond
)

// FrameMessage is one published frame
type FrameMessage struct {
	Sequence  uint64
	Timestamp int64 // Unix nano
	Seed      uint32
	Snapshot  sim.Snapshot
	Controls  sim.Controls
	Civs      []host.CivFrame
	Stars     []host.StarFrame
}

// HelloMessage is sent to each subscriber when it connects
type HelloMessage struct {
	Seed          uint32
	Params        sim.Params
	MaxFrameCivs  int
	MaxFrameStars int
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

// FrameFromHost copies a host frame into a message
func FrameFromHost(f *host.Frame) *FrameMessage {
	return &FrameMessage{
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp.UnixNano(),
		Seed:      f.Seed,
		Snapshot:  f.Snapshot,
		Controls:  f.Controls,
		Civs:      append([]host.CivFrame(nil), f.Civs...),
		Stars:     append([]host.StarFrame(nil), f.Stars...),
	}
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// WriteMessage writes a framed message. A nil data writes an empty body.
func WriteMessage(w io.Writer, msgType byte, data interface{}) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	// Header placeholder, patched once the body length is known
	buf.Write(make([]byte, HeaderSize))
	if data != nil {
		if err := gob.NewEncoder(buf).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}

	out := buf.Bytes()
	length := len(out) - HeaderSize
	if length > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", length, MaxMessageSize)
	}

	binary.LittleEndian.PutUint16(out[0:2], ProtocolVersion)
	out[2] = msgType
	out[3] = 0
	binary.LittleEndian.PutUint32(out[4:8], uint32(length))

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}

	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}

	return header.Type, body, nil
}

// DecodeFrame decodes a frame body
func DecodeFrame(data []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode frame: %w", err)
	}
	return &msg, nil
}

// DecodeHello decodes a hello body
func DecodeHello(data []byte) (*HelloMessage, error) {
	var msg HelloMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode hello: %w", err)
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
