package feed

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dark-forest/internal/host"
)

// FrameSource is satisfied by *host.Host
type FrameSource interface {
	Frame(fn func(f *host.Frame))
}

// Publisher pushes frames to connected viewer processes
type Publisher struct {
	socketPath string
	listener   net.Listener

	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex
	// sendMu serializes writes from the broadcast and ping loops
	sendMu sync.Mutex

	// Ring buffer behavior: the oldest queued frame is dropped when full
	frameCh chan *FrameMessage

	hello   HelloMessage
	helloMu sync.RWMutex

	// Stats
	clientCount   int32 // atomic
	framesSent    int64 // atomic
	droppedFrames int64 // atomic

	running int32 // atomic
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a publisher. An empty path selects DefaultSocketPath.
func NewPublisher(socketPath string) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Publisher{
		socketPath: socketPath,
		clients:    make(map[net.Conn]struct{}),
		frameCh:    make(chan *FrameMessage, 8),
		stopCh:     make(chan struct{}),
	}
}

// SetHello sets the message sent to subscribers on connect
func (p *Publisher) SetHello(hello HelloMessage) {
	p.helloMu.Lock()
	p.hello = hello
	p.helloMu.Unlock()
}

// Start listens and starts the accept, broadcast and ping loops
func (p *Publisher) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		atomic.StoreInt32(&p.running, 0)
		return err
	}
	p.listener = listener

	p.wg.Add(3)
	go p.acceptLoop()
	go p.broadcastLoop()
	go p.pingLoop()

	log.Printf("📡 Feed publisher started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop closes the listener and every client
func (p *Publisher) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}

	close(p.stopCh)

	if p.listener != nil {
		p.listener.Close()
	}

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	atomic.StoreInt32(&p.clientCount, 0)
	p.clientsMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 Feed publisher stopped")
}

// Publish queues a frame for broadcast without blocking
func (p *Publisher) Publish(msg *FrameMessage) {
	if atomic.LoadInt32(&p.running) == 0 {
		return
	}

	select {
	case p.frameCh <- msg:
	default:
		select {
		case <-p.frameCh:
			atomic.AddInt64(&p.droppedFrames, 1)
		default:
		}
		select {
		case p.frameCh <- msg:
		default:
		}
	}
}

// StartPump publishes the source's latest frame hz times per second,
// skipping frames already sent. It returns when the publisher stops.
func (p *Publisher) StartPump(src FrameSource, hz int) {
	if hz <= 0 {
		hz = 10
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Second / time.Duration(hz))
		defer ticker.Stop()

		var lastSeq uint64
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
			}

			if atomic.LoadInt32(&p.clientCount) == 0 {
				continue
			}

			var msg *FrameMessage
			src.Frame(func(f *host.Frame) {
				if f.Sequence != lastSeq {
					msg = FrameFromHost(f)
				}
			})
			if msg != nil {
				lastSeq = msg.Sequence
				p.Publish(msg)
			}
		}
	}()
}

// GetStats returns publisher statistics
func (p *Publisher) GetStats() (clients int, sent int64, dropped int64) {
	return int(atomic.LoadInt32(&p.clientCount)),
		atomic.LoadInt64(&p.framesSent),
		atomic.LoadInt64(&p.droppedFrames)
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for atomic.LoadInt32(&p.running) == 1 {
		conn, err := p.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&p.running) == 0 {
				return
			}
			log.Printf("⚠️ Feed accept error: %v", err)
			continue
		}

		p.addClient(conn)
	}
}

func (p *Publisher) addClient(conn net.Conn) {
	p.helloMu.RLock()
	hello := p.hello
	p.helloMu.RUnlock()

	// Hello goes out before the client can receive any frame
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := WriteMessage(conn, MsgTypeHello, hello); err != nil {
		log.Printf("⚠️ Failed to send hello to viewer: %v", err)
		conn.Close()
		return
	}

	p.clientsMu.Lock()
	if atomic.LoadInt32(&p.running) == 0 {
		p.clientsMu.Unlock()
		conn.Close()
		return
	}
	p.clients[conn] = struct{}{}
	count := atomic.AddInt32(&p.clientCount, 1)
	p.clientsMu.Unlock()

	log.Printf("✅ Viewer connected to feed (total: %d)", count)

	p.wg.Add(1)
	go p.readLoop(conn)
}

// readLoop consumes pongs; a read failure or a missed pong drops the client
func (p *Publisher) readLoop(conn net.Conn) {
	defer p.wg.Done()
	defer p.removeClient(conn)

	for atomic.LoadInt32(&p.running) == 1 {
		conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		if _, _, err := ReadMessage(conn); err != nil {
			return
		}
	}
}

func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	if _, ok := p.clients[conn]; ok {
		delete(p.clients, conn)
		conn.Close()
		count := atomic.AddInt32(&p.clientCount, -1)
		p.clientsMu.Unlock()
		log.Printf("🔌 Viewer disconnected from feed (remaining: %d)", count)
		return
	}
	p.clientsMu.Unlock()
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case msg := <-p.frameCh:
			if p.send(MsgTypeFrame, msg) {
				atomic.AddInt64(&p.framesSent, 1)
			}
		}
	}
}

func (p *Publisher) pingLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.send(MsgTypePing, nil)
		}
	}
}

// send writes to every client, dropping those that fail. Reports whether
// at least one client received the message.
func (p *Publisher) send(msgType byte, data interface{}) bool {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	delivered := false
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteMessage(conn, msgType, data); err != nil {
			p.removeClient(conn)
			continue
		}
		delivered = true
	}
	return delivered
}
