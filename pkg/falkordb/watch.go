package falkordb

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"
)

// connWatch is a go-redis hook that records the first read failure on any
// connection the client dials. go-redis keeps reading MONITOR output in a
// background goroutine and never reports when that connection dies, so the
// monitor stream watches its own socket instead.
type connWatch struct {
	once sync.Once
	done chan struct{}
	err  error
}

var _ redis.Hook = (*connWatch)(nil)

func newConnWatch() *connWatch {
	return &connWatch{done: make(chan struct{})}
}

// Done is closed after the first read failure.
func (w *connWatch) Done() <-chan struct{} {
	return w.done
}

// Err returns the read failure. Only valid once Done is closed.
func (w *connWatch) Err() error {
	return w.err
}

func (w *connWatch) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

func (w *connWatch) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &watchedConn{Conn: conn, watch: w}, nil
	}
}

func (w *connWatch) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (w *connWatch) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

type watchedConn struct {
	net.Conn
	watch *connWatch
}

func (c *watchedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			c.watch.fail(err)
		}
	}
	return n, err
}
