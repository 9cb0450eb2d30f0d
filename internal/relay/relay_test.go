package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"dark-forest/internal/sim"
)

func TestConnectDisabled(t *testing.T) {
	r, err := Connect(Config{})
	if err != nil {
		t.Fatalf("Expected no error without URL, got %v", err)
	}
	if r != nil {
		t.Fatal("Expected nil relay without URL")
	}
	// Nil relay methods are no-ops
	if err := r.Publish(context.Background(), 1, sim.Snapshot{}); err != nil {
		t.Errorf("Expected nil-relay publish to succeed, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Expected nil-relay close to succeed, got %v", err)
	}
}

func TestConnectBadURL(t *testing.T) {
	if _, err := Connect(Config{URL: "not-a-redis-url"}); err == nil {
		t.Error("Expected error for malformed URL")
	}
}

func TestChannelDefault(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	if got := New(client, "").Channel(); got != DefaultChannel {
		t.Errorf("Expected %q, got %q", DefaultChannel, got)
	}
	if got := New(client, "custom").Channel(); got != "custom" {
		t.Errorf("Expected custom channel, got %q", got)
	}
}

// published is one PUBLISH seen by the test server
type published struct {
	channel string
	payload string
}

// startRESPServer serves just enough of the Redis protocol for Connect and
// Publish: PING answers PONG, PUBLISH is captured, anything else is an error
// reply (which go-redis tolerates during its connection handshake).
func startRESPServer(t *testing.T) (addr string, got <-chan published) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan published, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveRESP(conn, out)
		}
	}()
	return ln.Addr().String(), out
}

func serveRESP(conn net.Conn, out chan<- published) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		var reply string
		switch strings.ToUpper(args[0]) {
		case "PING":
			reply = "+PONG\r\n"
		case "PUBLISH":
			if len(args) != 3 {
				reply = "-ERR wrong number of arguments\r\n"
				break
			}
			out <- published{channel: args[1], payload: args[2]}
			reply = ":1\r\n"
		default:
			reply = "-ERR unknown command\r\n"
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

// readCommand reads one RESP array of bulk strings
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '*' {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array length %q", line)
	}
	args := make([]string, n)
	for i := range args {
		hdr, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(hdr) < 2 || hdr[0] != '$' {
			return nil, fmt.Errorf("unexpected bulk header %q", hdr)
		}
		size, err := strconv.Atoi(hdr[1:])
		if err != nil || size < 0 {
			return nil, fmt.Errorf("bad bulk length %q", hdr)
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func TestPublishSendsSnapshot(t *testing.T) {
	addr, got := startRESPServer(t)

	r, err := Connect(Config{URL: "redis://" + addr, Channel: "survey:test"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer r.Close()

	snap := sim.Snapshot{Step: 12, Radius: 1.5, Alive: 3, TotalCivs: 4, TotalKills: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Publish(ctx, 42, snap); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-got:
		if msg.channel != "survey:test" {
			t.Errorf("Expected channel survey:test, got %q", msg.channel)
		}
		var decoded Message
		if err := json.Unmarshal([]byte(msg.payload), &decoded); err != nil {
			t.Fatalf("Payload is not JSON: %v", err)
		}
		if decoded.Seed != 42 || decoded.Snapshot != snap {
			t.Errorf("Unexpected message %+v", decoded)
		}
		if decoded.SentAt == 0 {
			t.Error("Expected SentAt to be set")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for PUBLISH")
	}
}
