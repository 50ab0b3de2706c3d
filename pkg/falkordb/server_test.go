package falkordb

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServer speaks just enough RESP for the client: PING, GRAPH.QUERY and
// MONITOR. Every other command gets an error reply.
type fakeServer struct {
	ln net.Listener

	mu       sync.Mutex
	commands [][]string

	// queryReply is the raw RESP reply sent for GRAPH.QUERY.
	queryReply string
	// onMonitor takes over the connection after MONITOR is received.
	onMonitor func(conn net.Conn)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, queryReply: "*0\r\n"}
	t.Cleanup(func() { _ = ln.Close() })

	go s.acceptLoop()
	return s
}

func (s *fakeServer) URI() string {
	return "redis://" + s.ln.Addr().String()
}

func (s *fakeServer) SetQueryReply(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryReply = reply
}

func (s *fakeServer) SetOnMonitor(fn func(conn net.Conn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMonitor = fn
}

// Received returns the commands named name, in arrival order.
func (s *fakeServer) Received(name string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]string
	for _, args := range s.commands {
		if strings.EqualFold(args[0], name) {
			out = append(out, args)
		}
	}
	return out
}

func (s *fakeServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	for {
		args, err := readRESPCommand(rd)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, args)
		queryReply := s.queryReply
		onMonitor := s.onMonitor
		s.mu.Unlock()

		var reply string
		switch strings.ToUpper(args[0]) {
		case "PING":
			reply = "+PONG\r\n"
		case "GRAPH.QUERY":
			reply = queryReply
		case "MONITOR":
			if onMonitor != nil {
				onMonitor(conn)
				return
			}
			reply = "+OK\r\n"
		default:
			reply = fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
		}

		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

func readRESPCommand(rd *bufio.Reader) ([]string, error) {
	header, err := rd.ReadString('\n')
	if err != nil {
		return nil, err
	}
	header = strings.TrimRight(header, "\r\n")
	if !strings.HasPrefix(header, "*") {
		return nil, fmt.Errorf("unexpected header %q", header)
	}
	n, err := strconv.Atoi(header[1:])
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		size, err := rd.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size = strings.TrimRight(size, "\r\n")
		if !strings.HasPrefix(size, "$") {
			return nil, fmt.Errorf("unexpected bulk header %q", size)
		}
		length, err := strconv.Atoi(size[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, length+2)
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:length]))
	}
	return args, nil
}
