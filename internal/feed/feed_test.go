package feed

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"dark-forest/internal/host"
	"dark-forest/internal/sim"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	msg := &FrameMessage{
		Sequence: 7,
		Seed:     42,
		Snapshot: sim.Snapshot{Step: 3, Alive: 2, TotalCivs: 3},
		Controls: sim.DefaultControls(),
		Civs:     []host.CivFrame{{Index: 1, X: 0.5, Strat: sim.StrategyCautious, Alive: true}},
		Stars:    []host.StarFrame{{X: 1, Lum: 0.8}},
	}
	if err := WriteMessage(&buf, MsgTypeFrame, msg); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := WriteMessage(&buf, MsgTypePing, nil); err != nil {
		t.Fatalf("WriteMessage(ping) failed: %v", err)
	}

	msgType, body, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgTypeFrame {
		t.Fatalf("Expected frame type, got %d", msgType)
	}
	got, err := DecodeFrame(body)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if got.Sequence != 7 || got.Snapshot.TotalCivs != 3 || len(got.Civs) != 1 || got.Civs[0].Strat != sim.StrategyCautious {
		t.Errorf("Frame did not survive framing: %+v", got)
	}

	msgType, body, err = ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage(ping) failed: %v", err)
	}
	if msgType != MsgTypePing || len(body) != 0 {
		t.Errorf("Expected empty ping, got type %d with %d bytes", msgType, len(body))
	}
}

func TestReadMessageRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
	}{
		{"wrong version", []byte{9, 0, MsgTypePing, 0, 0, 0, 0, 0}},
		{"oversized", []byte{1, 0, MsgTypeFrame, 0, 0xff, 0xff, 0xff, 0x7f}},
		{"short", []byte{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadMessage(bytes.NewReader(tt.header)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

type staticSource struct {
	frame host.Frame
}

func (s *staticSource) Frame(fn func(f *host.Frame)) {
	fn(&s.frame)
}

func TestPublisherSubscriberRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "feed.sock")

	pub := NewPublisher(socket)
	pub.SetHello(HelloMessage{Seed: 42, Params: sim.DefaultParams(), MaxFrameCivs: 10})
	if err := pub.Start(); err != nil {
		t.Fatalf("Publisher start failed: %v", err)
	}
	defer pub.Stop()

	src := &staticSource{frame: host.Frame{
		Sequence:  5,
		Timestamp: time.Now(),
		Seed:      42,
		Snapshot:  sim.Snapshot{Step: 12, Alive: 1, TotalCivs: 1},
		Civs:      []host.CivFrame{{Index: 0, Alive: true}},
	}}
	pub.StartPump(src, 50)

	frames := make(chan *FrameMessage, 16)
	sub := NewSubscriber(socket)
	sub.OnFrame(func(f *FrameMessage) {
		select {
		case frames <- f:
		default:
		}
	})
	if err := sub.Start(); err != nil {
		t.Fatalf("Subscriber start failed: %v", err)
	}
	defer sub.Stop()

	hello := sub.WaitForHello(3 * time.Second)
	if hello == nil {
		t.Fatal("Timed out waiting for hello")
	}
	if hello.Seed != 42 || hello.MaxFrameCivs != 10 || hello.Params.MaxCivs != sim.DefaultParams().MaxCivs {
		t.Errorf("Unexpected hello %+v", hello)
	}

	select {
	case f := <-frames:
		if f.Sequence != 5 || f.Snapshot.Step != 12 || len(f.Civs) != 1 {
			t.Errorf("Unexpected frame %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for frame")
	}

	if latest := sub.GetLatestFrame(); latest == nil || latest.Sequence != 5 {
		t.Errorf("Expected latest frame sequence 5, got %+v", latest)
	}
	if received, _, _ := sub.GetStats(); received < 1 {
		t.Errorf("Expected at least one received frame, got %d", received)
	}
	if clients, sent, _ := pub.GetStats(); clients != 1 || sent < 1 {
		t.Errorf("Expected 1 client and sent frames, got %d clients, %d sent", clients, sent)
	}
}

func TestPublishWhenStoppedIsNoop(t *testing.T) {
	pub := NewPublisher(filepath.Join(t.TempDir(), "idle.sock"))
	pub.Publish(&FrameMessage{Sequence: 1})
	if _, _, dropped := pub.GetStats(); dropped != 0 {
		t.Errorf("Expected no drops on a stopped publisher, got %d", dropped)
	}
	pub.Stop()
}
