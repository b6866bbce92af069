package websocket

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Default option values.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultMaxMessageSize   = 32 << 20
	DefaultReadBufferSize   = 4096
)

// Options configures a Server. The zero value is usable; unset fields
// take the defaults above.
type Options struct {
	// HandshakeTimeout bounds reading the upgrade request and writing
	// the response.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds the read of each frame, starting with its header.
	// Zero means connections may stay idle forever.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// CloseTimeout is how long a closing connection waits for the
	// peer's close frame before the stream is torn down.
	CloseTimeout time.Duration

	// MaxMessageSize is the largest message, after reassembly, that is
	// accepted. Larger messages close the connection with StatusMessageTooBig.
	MaxMessageSize int64

	// ReadBufferSize is the size of the per connection read buffer. It
	// also bounds the length of a single handshake line.
	ReadBufferSize int

	// AcceptRate limits how many connections are accepted per second.
	// Zero means no limit.
	AcceptRate rate.Limit
	// AcceptBurst is the burst allowed by AcceptRate. Defaults to 1.
	AcceptBurst int

	// Logger receives the server's logs. Defaults to the logrus
	// standard logger.
	Logger *logrus.Entry

	// Metrics, if set, is updated as connections and frames come and go.
	Metrics *Metrics
}

func (o *Options) withDefaults() *Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.AcceptBurst <= 0 {
		opts.AcceptBurst = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &opts
}

func (o *Options) acceptLimiter() *rate.Limiter {
	if o.AcceptRate <= 0 || o.AcceptRate == rate.Inf {
		return nil
	}
	return rate.NewLimiter(o.AcceptRate, o.AcceptBurst)
}
