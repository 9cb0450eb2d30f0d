package feed

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber receives frames from a Publisher and reconnects on failure
type Subscriber struct {
	socketPath string
	conn       net.Conn
	connMu     sync.Mutex

	latestFrame atomic.Value // *FrameMessage

	hello   HelloMessage
	helloMu sync.RWMutex
	helloCh chan HelloMessage

	// Stats
	framesReceived int64 // atomic
	reconnects     int64 // atomic
	errors         int64 // atomic

	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onFrame      func(*FrameMessage)
	onHello      func(*HelloMessage)
	onConnect    func()
	onDisconnect func()
}

// NewSubscriber creates a subscriber. An empty path selects DefaultSocketPath.
func NewSubscriber(socketPath string) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Subscriber{
		socketPath: socketPath,
		helloCh:    make(chan HelloMessage, 1),
		stopCh:     make(chan struct{}),
	}
}

// OnFrame sets the frame callback. Call before Start.
func (s *Subscriber) OnFrame(fn func(*FrameMessage)) {
	s.onFrame = fn
}

// OnHello sets the hello callback. Call before Start.
func (s *Subscriber) OnHello(fn func(*HelloMessage)) {
	s.onHello = fn
}

// OnConnect sets the connect callback. Call before Start.
func (s *Subscriber) OnConnect(fn func()) {
	s.onConnect = fn
}

// OnDisconnect sets the disconnect callback. Call before Start.
func (s *Subscriber) OnDisconnect(fn func()) {
	s.onDisconnect = fn
}

// Start begins the connection loop
func (s *Subscriber) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 Feed subscriber started, connecting to %s", GetPlatformAddress(s.socketPath))
	return nil
}

// Stop closes the connection and waits for the loop to exit
func (s *Subscriber) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 Feed subscriber stopped")
}

// GetLatestFrame returns the most recent frame, or nil
func (s *Subscriber) GetLatestFrame() *FrameMessage {
	if val := s.latestFrame.Load(); val != nil {
		return val.(*FrameMessage)
	}
	return nil
}

// GetHello returns the last hello received
func (s *Subscriber) GetHello() HelloMessage {
	s.helloMu.RLock()
	defer s.helloMu.RUnlock()
	return s.hello
}

// WaitForHello blocks until a hello arrives or timeout
func (s *Subscriber) WaitForHello(timeout time.Duration) *HelloMessage {
	select {
	case hello := <-s.helloCh:
		return &hello
	case <-time.After(timeout):
		return nil
	case <-s.stopCh:
		return nil
	}
}

// GetStats returns subscriber statistics
func (s *Subscriber) GetStats() (received int64, reconnects int64, errors int64) {
	return atomic.LoadInt64(&s.framesReceived),
		atomic.LoadInt64(&s.reconnects),
		atomic.LoadInt64(&s.errors)
}

// IsConnected returns whether the subscriber is connected
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for atomic.LoadInt32(&s.running) == 1 {
		conn, err := ConnectPlatform(s.socketPath)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		s.connMu.Lock()
		if atomic.LoadInt32(&s.running) == 0 {
			s.connMu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.connMu.Unlock()

		log.Printf("✅ Connected to feed at %s", GetPlatformAddress(s.socketPath))
		if s.onConnect != nil {
			s.onConnect()
		}

		s.readLoop(conn)
		conn.Close()

		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()

		if s.onDisconnect != nil {
			s.onDisconnect()
		}

		atomic.AddInt64(&s.reconnects, 1)

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Subscriber) readLoop(conn net.Conn) {
	for atomic.LoadInt32(&s.running) == 1 {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))

		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Println("🔌 Feed closed by server")
				return
			}
			if atomic.LoadInt32(&s.running) == 1 {
				log.Printf("⚠️ Feed read error: %v", err)
				atomic.AddInt64(&s.errors, 1)
			}
			return
		}

		switch msgType {
		case MsgTypeFrame:
			s.handleFrame(data)
		case MsgTypeHello:
			s.handleHello(data)
		case MsgTypePing:
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			WriteMessage(conn, MsgTypePong, nil)
		}
	}
}

func (s *Subscriber) handleFrame(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode frame: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	s.latestFrame.Store(frame)
	atomic.AddInt64(&s.framesReceived, 1)

	if s.onFrame != nil {
		s.onFrame(frame)
	}
}

func (s *Subscriber) handleHello(data []byte) {
	hello, err := DecodeHello(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode hello: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	s.helloMu.Lock()
	s.hello = *hello
	s.helloMu.Unlock()

	select {
	case s.helloCh <- *hello:
	default:
	}

	if s.onHello != nil {
		s.onHello(hello)
	}
}
