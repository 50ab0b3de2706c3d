// Package falkordb connects to FalkorDB (or any server speaking the Redis
// protocol with the graph module loaded) for capture and replay.
package falkordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/entrhq/graphsync/pkg/command"
	"github.com/entrhq/graphsync/pkg/logging"
)

// monitorBuffer lets the go-redis reader run slightly ahead of the consumer.
const monitorBuffer = 256

// schemeAliases maps FalkorDB URI schemes onto the ones go-redis understands.
var schemeAliases = map[string]string{
	"falkor://":  "redis://",
	"falkors://": "rediss://",
}

// Options controls connection establishment.
type Options struct {
	// Retries is the number of additional connection attempts after the first.
	Retries int
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
	// DialTimeout bounds each TCP dial. Zero keeps the go-redis default.
	DialTimeout time.Duration

	Logger *logging.Logger
}

// Client is a single connection scope to a graph database. Acquire it with
// Connect and release it with Close.
type Client struct {
	rdb       *redis.Client
	logger    *logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// ParseURI converts a connection URI into go-redis options. redis://,
// rediss://, unix://, falkor:// and falkors:// are accepted.
func ParseURI(uri string) (*redis.Options, error) {
	normalized := uri
	for alias, scheme := range schemeAliases {
		if strings.HasPrefix(strings.ToLower(uri), alias) {
			normalized = scheme + uri[len(alias):]
			break
		}
	}

	opt, err := redis.ParseURL(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid connection uri: %w", err)
	}
	return opt, nil
}

// Connect opens a connection and verifies it with PING, retrying with
// exponential backoff. Authentication failures are not retried.
func Connect(ctx context.Context, uri string, opts Options) (*Client, error) {
	redisOpts, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	// Queries and MONITOR both block until the server answers.
	redisOpts.ReadTimeout = -1
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	c := &Client{
		rdb:    redis.NewClient(redisOpts),
		logger: logger,
	}

	if err := c.ping(ctx, opts); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) ping(ctx context.Context, opts Options) error {
	b := backoff.NewExponentialBackOff()
	if opts.RetryDelay > 0 {
		b.InitialInterval = opts.RetryDelay
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		res, err := c.rdb.Ping(ctx).Result()
		if err == nil {
			return res, nil
		}
		if isAuthError(err) {
			return "", backoff.Permanent(err)
		}
		if attempt <= retries {
			c.logger.Warnf("Connection attempt %d/%d failed: %v", attempt, retries+1, err)
		}
		return "", err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(retries+1)))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH") ||
		strings.HasPrefix(msg, "NOPERM")
}

// Query runs GRAPH.QUERY against graph and waits for the reply.
func (c *Client) Query(ctx context.Context, graph, query string) error {
	if err := c.rdb.Do(ctx, command.QueryCommand, graph, query, "--compact").Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	return nil
}

// Monitor starts MONITOR on a dedicated connection and returns the command
// stream. The stream stops when ctx is cancelled or Stop is called, and
// reports ErrMonitorClosed if the server drops the connection.
func (c *Client) Monitor(ctx context.Context) *MonitorSource {
	opts := *c.rdb.Options()
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	opts.ConnMaxIdleTime = -1

	watch := newConnWatch()
	mon := redis.NewClient(&opts)
	mon.AddHook(watch)

	ch := make(chan string, monitorBuffer)
	cmd := mon.Monitor(ctx, ch)
	cmd.Start()

	return newMonitorSource(ch, watch, func() {
		cmd.Stop()
		if err := mon.Close(); err != nil {
			c.logger.Debugf("Failed to close monitor connection: %v", err)
		}
	}, c.logger)
}

// Close releases the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rdb.Close()
	})
	return c.closeErr
}
