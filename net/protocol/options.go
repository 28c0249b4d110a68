package protocol

import (
	"time"

	"golang.org/x/sys/unix"
)

// AcceptFilter decides whether an accepted peer may stay connected.
type AcceptFilter func(sa unix.Sockaddr) error

// Options 服务配置
type Options struct {
	net NetWorkAndAddressAndOption

	NumEvents      int
	MaxPeers       int
	RecvBufferSize int
	MaxMessageSize int
	IdleTime       time.Duration
	acceptFilter   AcceptFilter

	tick      time.Duration
	wheelSize int64
	codeImp   ICodec
}

// Option ...
type Option func(*Options)

func (this *Options) GetNet() NetWorkAndAddressAndOption {
	return this.net
}

func (this *Options) GetTick() time.Duration {
	return this.tick
}

func (this *Options) GetWheelSize() int64 {
	return this.wheelSize
}

// GetCode may return nil; the consumer falls back to its own default codec.
func (this *Options) GetCode() ICodec {
	return this.codeImp
}

func (this *Options) GetAcceptFilter() AcceptFilter {
	return this.acceptFilter
}

func NewOptions(opt ...Option) *Options {
	opts := Options{}
	for _, o := range opt {
		o(&opts)
	}

	if len(opts.net.Network) == 0 {
		opts.net.Network = "tcp"
	}
	if len(opts.net.Address) == 0 {
		opts.net.Address = "127.0.0.1:58800"
	}
	if opts.net.Backlog <= 0 {
		opts.net.Backlog = 128
	}
	if opts.NumEvents <= 0 {
		opts.NumEvents = DefaultNumEvents
	}
	if opts.MaxPeers <= 0 {
		opts.MaxPeers = MaxPeers
	}
	if opts.RecvBufferSize <= 0 {
		opts.RecvBufferSize = 64 * 1024
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 16 * 1024 * 1024
	}
	if opts.IdleTime < 0 {
		opts.IdleTime = 0
	}
	if opts.tick == 0 {
		opts.tick = 1 * time.Millisecond
	}
	if opts.wheelSize == 0 {
		opts.wheelSize = 1000
	}
	return &opts
}

// ReusePort 设置 SO_REUSEPORT
func ReusePort(reusePort bool) Option {
	return func(o *Options) {
		o.net.ReusePort = reusePort
	}
}

func Network(n string) Option {
	return func(o *Options) {
		o.net.Network = n
	}
}

// Address server 监听地址
func Address(a string) Option {
	return func(o *Options) {
		o.net.Address = a
	}
}

func Backlog(n int) Option {
	return func(o *Options) {
		o.net.Backlog = n
	}
}

// NumEvents is the multiplexer capacity in descriptors. Keep it above
// MaxPeer, or connections past the capacity fail with ErrMuxCapacity.
func NumEvents(n int) Option {
	return func(o *Options) {
		o.NumEvents = n
	}
}

// MaxPeer caps concurrent connections per listener, within [1, MaxPeers].
func MaxPeer(n int) Option {
	return func(o *Options) {
		o.MaxPeers = n
	}
}

func RecvBufferSize(n int) Option {
	return func(o *Options) {
		o.RecvBufferSize = n
	}
}

func MaxMessageSize(n int) Option {
	return func(o *Options) {
		o.MaxMessageSize = n
	}
}

// IdleTime 最大空闲时间; 0 disables the idle timeout.
func IdleTime(t time.Duration) Option {
	return func(o *Options) {
		o.IdleTime = t
	}
}

func Filter(f AcceptFilter) Option {
	return func(o *Options) {
		o.acceptFilter = f
	}
}

func Tick(d time.Duration) Option {
	return func(o *Options) {
		o.tick = d
	}
}

func WheelSize(n int64) Option {
	return func(o *Options) {
		o.wheelSize = n
	}
}

func CodeImp(codeImp ICodec) Option {
	return func(o *Options) {
		o.codeImp = codeImp
	}
}
