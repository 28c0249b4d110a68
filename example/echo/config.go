package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/zput/zput_reactor/net/log"
	"github.com/zput/zput_reactor/net/protocol"
	"github.com/zput/zput_reactor/net/tcpaccept"
)

// Config of the echo daemon, read from the environment after the env files
// are loaded. Variables already set win over the files.
type Config struct {
	Address   string
	LogLevel  log.Level
	MaxPeers  int
	IdleTime  time.Duration
	RunTime   time.Duration // 0 runs until interrupted
	AllowAny  bool          // accept peers other than localhost
	ReusePort bool
	Pprof     string // listen address of net/http/pprof, empty to disable
}

func loadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	var (
		cfg = Config{Address: "127.0.0.1:58810", LogLevel: log.LevelInfo, MaxPeers: protocol.MaxPeers}
		err error
	)
	if v, ok := lookup("ECHO_ADDRESS"); ok {
		cfg.Address = v
	}
	if v, ok := lookup("ECHO_LOG_LEVEL"); ok {
		if cfg.LogLevel, err = log.ParseLevel(v); err != nil {
			return nil, err
		}
	}
	if v, ok := lookup("ECHO_MAX_PEERS"); ok {
		if cfg.MaxPeers, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrapf(err, "ECHO_MAX_PEERS[%s]", v)
		}
		if cfg.MaxPeers <= 0 || cfg.MaxPeers > protocol.MaxPeers {
			return nil, errors.Wrapf(protocol.ErrInvalidMaxPeers, "ECHO_MAX_PEERS[%s]", v)
		}
	}
	if cfg.IdleTime, err = seconds("ECHO_IDLE_SECONDS"); err != nil {
		return nil, err
	}
	if cfg.RunTime, err = seconds("ECHO_RUN_SECONDS"); err != nil {
		return nil, err
	}
	if cfg.AllowAny, err = boolean("ECHO_ALLOW_ANY"); err != nil {
		return nil, err
	}
	if cfg.ReusePort, err = boolean("ECHO_REUSE_PORT"); err != nil {
		return nil, err
	}
	cfg.Pprof, _ = lookup("ECHO_PPROF")
	return &cfg, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func seconds(key string) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return 0, errors.Errorf("%s[%s]: want non-negative seconds", key, v)
	}
	return time.Duration(n * float64(time.Second)), nil
}

func boolean(key string) (bool, error) {
	v, ok := lookup(key)
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "%s[%s]", key, v)
	}
	return b, nil
}

// Options turns the config into server options.
func (this *Config) Options() []protocol.Option {
	opts := []protocol.Option{
		protocol.Network("tcp"),
		protocol.Address(this.Address),
		protocol.MaxPeer(this.MaxPeers),
		protocol.IdleTime(this.IdleTime),
		protocol.ReusePort(this.ReusePort),
	}
	if this.AllowAny {
		opts = append(opts, protocol.Filter(tcpaccept.FilterAny))
	}
	return opts
}
