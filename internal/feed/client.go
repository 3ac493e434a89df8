package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"novelrank/pkg/logger"
)

const DefaultRetry = time.Second

// Client tails a TCP feed and redials whenever the connection drops.
type Client struct {
	Addr  string
	Retry time.Duration // minimum gap between two dials

	log *zap.Logger
}

func NewClient(addr string, log *zap.Logger) *Client {
	return &Client{Addr: addr, Retry: DefaultRetry, log: logger.OrNop(log).Named("feed-client")}
}

// Subscribe hands every decoded event to fn until ctx ends, which is the
// only way it returns.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) error {
	retry := c.Retry
	if retry <= 0 {
		retry = DefaultRetry
	}
	lim := rate.NewLimiter(rate.Every(retry), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return ctx.Err()
		}
		err := c.tail(ctx, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("feed disconnected", zap.String("addr", c.Addr), zap.Error(err))
	}
}

func (c *Client) tail(ctx context.Context, fn func(Event)) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	c.log.Info("feed connected", zap.String("addr", c.Addr))

	dec := json.NewDecoder(conn)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(ev)
	}
}
