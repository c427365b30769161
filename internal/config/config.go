// Package config holds the relay session configuration and its loading from
// CLI flags with environment-variable fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Role represents the CLI's chosen role.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
	RoleList   Role = "list"
)

// ChannelKind selects the underlying message channel to the relay.
type ChannelKind string

const (
	ChannelWebSocket ChannelKind = "ws"
	ChannelWebRTC    ChannelKind = "rtc"
)

// Defaults applied when neither a flag nor an environment variable is set.
const (
	DefaultRelayAddress     = "127.0.0.1"
	DefaultRelayPort        = 4296
	DefaultMaxServerPlayers = 10
	DefaultServerName       = "My awesome server!"
	DefaultExtraServerData  = "Cool Map 1"
)

// Config stores every recognized relay session option.
type Config struct {
	RelayAddress  string // host name or IP of the relay
	RelayPort     uint16
	RelayPassword string // empty if the relay has none
	Secure        bool   // use TLS (wss) towards the relay
	Channel       ChannelKind

	MaxServerPlayers int
	ServerName       string
	ExtraServerData  string // arbitrary metadata shown in the room directory
	ShowOnServerList bool   // false makes the room private (unlisted)
}

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		RelayAddress:     DefaultRelayAddress,
		RelayPort:        DefaultRelayPort,
		Channel:          ChannelWebSocket,
		MaxServerPlayers: DefaultMaxServerPlayers,
		ServerName:       DefaultServerName,
		ExtraServerData:  DefaultExtraServerData,
		ShowOnServerList: true,
	}
}

// FromEnv returns Default overridden by any DARKRELAY_* environment variables.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.RelayAddress = getEnv("DARKRELAY_ADDRESS", cfg.RelayAddress)
	cfg.RelayPassword = getEnv("DARKRELAY_PASSWORD", cfg.RelayPassword)
	cfg.ServerName = getEnv("DARKRELAY_SERVER_NAME", cfg.ServerName)
	cfg.ExtraServerData = getEnv("DARKRELAY_EXTRA_DATA", cfg.ExtraServerData)
	cfg.Channel = ChannelKind(getEnv("DARKRELAY_CHANNEL", string(cfg.Channel)))

	var err error
	if v := os.Getenv("DARKRELAY_PORT"); v != "" {
		port, perr := strconv.ParseUint(v, 10, 16)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("DARKRELAY_PORT: %w", perr))
		} else {
			cfg.RelayPort = uint16(port)
		}
	}
	if v := os.Getenv("DARKRELAY_MAX_PLAYERS"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("DARKRELAY_MAX_PLAYERS: %w", perr))
		} else {
			cfg.MaxServerPlayers = n
		}
	}
	if v := os.Getenv("DARKRELAY_LISTED"); v != "" {
		listed, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("DARKRELAY_LISTED: %w", perr))
		} else {
			cfg.ShowOnServerList = listed
		}
	}
	if v := os.Getenv("DARKRELAY_SECURE"); v != "" {
		secure, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("DARKRELAY_SECURE: %w", perr))
		} else {
			cfg.Secure = secure
		}
	}

	return cfg, err
}

// RegisterFlags binds the relay options to fs, using cfg's current values as
// defaults. Values are written back into cfg when fs is parsed.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.RelayAddress, "relay", cfg.RelayAddress, "Relay host name or IP")
	fs.Func("port", fmt.Sprintf("Relay port (default %d)", cfg.RelayPort), func(s string) error {
		port, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return err
		}
		cfg.RelayPort = uint16(port)
		return nil
	})
	fs.StringVar(&cfg.RelayPassword, "password", cfg.RelayPassword, "Relay password, if the relay has one")
	fs.BoolVar(&cfg.Secure, "secure", cfg.Secure, "Use TLS (wss) towards the relay")
	fs.Func("channel", fmt.Sprintf("Relay channel: ws or rtc (default %s)", cfg.Channel), func(s string) error {
		cfg.Channel = ChannelKind(s)
		return nil
	})
	fs.IntVar(&cfg.MaxServerPlayers, "max", cfg.MaxServerPlayers, "Maximum players in a hosted room")
	fs.StringVar(&cfg.ServerName, "name", cfg.ServerName, "Display name of a hosted room")
	fs.StringVar(&cfg.ExtraServerData, "extra", cfg.ExtraServerData, "Extra metadata of a hosted room")
	fs.BoolFunc("unlisted", "Hide a hosted room from the room directory", func(s string) error {
		unlisted, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		cfg.ShowOnServerList = !unlisted
		return nil
	})
}

// Validate reports option values that cannot be used.
func (cfg Config) Validate() error {
	var errs []error
	if strings.TrimSpace(cfg.RelayAddress) == "" {
		errs = append(errs, errors.New("relay address is empty"))
	}
	if cfg.RelayPort == 0 {
		errs = append(errs, errors.New("relay port must be 1~65535"))
	}
	if cfg.MaxServerPlayers < 1 {
		errs = append(errs, fmt.Errorf("max players must be positive, got %d", cfg.MaxServerPlayers))
	}
	switch cfg.Channel {
	case ChannelWebSocket, ChannelWebRTC:
	default:
		errs = append(errs, fmt.Errorf("unknown channel %q: must be 'ws' or 'rtc'", cfg.Channel))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
