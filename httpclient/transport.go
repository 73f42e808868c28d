package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// TransportConfig 连接层参数
type TransportConfig struct {
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	ReadWriteTimeout    time.Duration // 单次 Read/Write 的 deadline，0 不限制
}

func defaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:         3 * time.Second,
		KeepAlive:           60 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ReadWriteTimeout:    5 * time.Second,
	}
}

func buildTransport(tc TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer(tc),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConnsPerHost,
		IdleConnTimeout:       tc.IdleConnTimeout,
		TLSHandshakeTimeout:   tc.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// deadlineConn 每次读写前刷新 deadline
type deadlineConn struct {
	net.Conn
	rw time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	_ = c.SetReadDeadline(time.Now().Add(c.rw))
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	_ = c.SetWriteDeadline(time.Now().Add(c.rw))
	return c.Conn.Write(b)
}

func dialer(tc TransportConfig) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: tc.DialTimeout, KeepAlive: tc.KeepAlive}
	if tc.ReadWriteTimeout <= 0 {
		return d.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &deadlineConn{Conn: conn, rw: tc.ReadWriteTimeout}, nil
	}
}
