// Package config holds the per-connection configuration of the engine and
// loads it from YAML, TOML or JSON files with IRC_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/matt0x6f/irc-engine/internal/codec"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/sasl"
	"github.com/matt0x6f/irc-engine/internal/validation"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "IRC_"

// Duration is a time.Duration written as "30s" in config files
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// TLS controls transport security
type TLS struct {
	Enabled        bool `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	AllowInvalid   bool `yaml:"allow_invalid" toml:"allow_invalid" json:"allow_invalid" env:"ALLOW_INVALID"`
	AllowPlaintext bool `yaml:"allow_plaintext" toml:"allow_plaintext" json:"allow_plaintext" env:"ALLOW_PLAINTEXT"`
}

// Identity is what we register with
type Identity struct {
	Nick     string `yaml:"nick" toml:"nick" json:"nick" env:"NICK"`
	AltNick  string `yaml:"alt_nick" toml:"alt_nick" json:"alt_nick" env:"ALT_NICK"`
	Username string `yaml:"username" toml:"username" json:"username" env:"USERNAME"`
	Realname string `yaml:"realname" toml:"realname" json:"realname" env:"REALNAME"`
}

// SASL is disabled unless Enabled is set
type SASL struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED"`
	Mechanism string `yaml:"mechanism" toml:"mechanism" json:"mechanism" env:"MECHANISM"`
	Authcid   string `yaml:"authcid" toml:"authcid" json:"authcid" env:"AUTHCID"`
	Password  string `yaml:"password" toml:"password" json:"password" env:"PASSWORD"`
}

// ClientCert is an opaque PKCS#12 (or PEM) blob. The host fills Data,
// usually from Path.
type ClientCert struct {
	Path     string `yaml:"path" toml:"path" json:"path" env:"PATH"`
	Password string `yaml:"password" toml:"password" json:"password" env:"PASSWORD"`
	Data     []byte `yaml:"-" toml:"-" json:"-"`
}

// Present reports whether a certificate was supplied
func (c ClientCert) Present() bool {
	return len(c.Data) > 0 || c.Path != ""
}

// Timeouts bound connection phases
type Timeouts struct {
	Connect   Duration `yaml:"connect" toml:"connect" json:"connect" env:"CONNECT"`
	Handshake Duration `yaml:"handshake" toml:"handshake" json:"handshake" env:"HANDSHAKE"`
	Read      Duration `yaml:"read" toml:"read" json:"read" env:"READ"`
	Ping      Duration `yaml:"ping" toml:"ping" json:"ping" env:"PING"`
}

// Flood limits outbound lines per second; zero Rate disables the limit
type Flood struct {
	Rate  float64 `yaml:"rate" toml:"rate" json:"rate" env:"RATE"`
	Burst int     `yaml:"burst" toml:"burst" json:"burst" env:"BURST"`
}

// Config is one connection attempt's configuration. It is never mutated
// once an attempt starts.
type Config struct {
	Host           string     `yaml:"host" toml:"host" json:"host" env:"HOST"`
	Port           int        `yaml:"port" toml:"port" json:"port" env:"PORT"`
	TLS            TLS        `yaml:"tls" toml:"tls" json:"tls" envPrefix:"TLS_"`
	Identity       Identity   `yaml:"identity" toml:"identity" json:"identity"`
	ServerPassword string     `yaml:"server_password" toml:"server_password" json:"server_password" env:"SERVER_PASSWORD"`
	SASL           SASL       `yaml:"sasl" toml:"sasl" json:"sasl" envPrefix:"SASL_"`
	ClientCert     ClientCert `yaml:"client_cert" toml:"client_cert" json:"client_cert" envPrefix:"CLIENT_CERT_"`
	Caps           Caps       `yaml:"caps" toml:"caps" json:"caps" envPrefix:"CAP_"`
	AutoJoin       []string   `yaml:"autojoin" toml:"autojoin" json:"autojoin" env:"AUTOJOIN" envSeparator:","`
	Timeouts       Timeouts   `yaml:"timeouts" toml:"timeouts" json:"timeouts" envPrefix:"TIMEOUT_"`
	Encoding       string     `yaml:"encoding" toml:"encoding" json:"encoding" env:"ENCODING"`
	Bouncer        bool       `yaml:"bouncer" toml:"bouncer" json:"bouncer" env:"BOUNCER"`

	CTCPVersion  string `yaml:"ctcp_version" toml:"ctcp_version" json:"ctcp_version" env:"CTCP_VERSION"`
	HistoryLimit int    `yaml:"history_limit" toml:"history_limit" json:"history_limit" env:"HISTORY_LIMIT"`
	// Proxy is a socks5:// URL
	Proxy       string `yaml:"proxy" toml:"proxy" json:"proxy" env:"PROXY"`
	Flood       Flood  `yaml:"flood" toml:"flood" json:"flood" envPrefix:"FLOOD_"`
	QuitMessage string `yaml:"quit_message" toml:"quit_message" json:"quit_message" env:"QUIT_MESSAGE"`
}

// Default returns a TLS configuration with every capability enabled
func Default() Config {
	return Config{
		Port:     6697,
		TLS:      TLS{Enabled: true},
		Caps:     AllCaps(),
		Encoding: codec.Auto,
		Timeouts: Timeouts{
			Connect:   Duration(constants.DefaultConnectTimeout),
			Handshake: Duration(constants.DefaultHandshakeTimeout),
			Read:      Duration(constants.DefaultReadTimeout),
			Ping:      Duration(constants.DefaultPingTimeout),
		},
		SASL:         SASL{Mechanism: sasl.Plain},
		CTCPVersion:  "irc-engine",
		HistoryLimit: constants.DefaultHistoryLimit,
		Flood:        Flood{Burst: 5},
		QuitMessage:  "Leaving",
	}
}

// Load reads a config file over Default, applies IRC_* environment
// overrides and fills derived defaults. The format follows the extension.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from IRC_* environment variables. Unset
// variables leave fields untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Normalize fills fields derived from others
func (c *Config) Normalize() {
	c.Host = strings.TrimSpace(c.Host)
	if c.Identity.Username == "" {
		c.Identity.Username = c.Identity.Nick
	}
	if c.Identity.Realname == "" {
		c.Identity.Realname = c.Identity.Nick
	}
	if c.SASL.Authcid == "" {
		c.SASL.Authcid = c.Identity.Nick
	}
	if c.SASL.Mechanism == "" {
		c.SASL.Mechanism = sasl.Plain
	}
	c.SASL.Mechanism = strings.ToUpper(c.SASL.Mechanism)
	if c.Encoding == "" {
		c.Encoding = codec.Auto
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = constants.DefaultHistoryLimit
	}
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = Duration(constants.DefaultConnectTimeout)
	}
	if c.Timeouts.Handshake <= 0 {
		c.Timeouts.Handshake = Duration(constants.DefaultHandshakeTimeout)
	}
	if c.Timeouts.Read <= 0 {
		c.Timeouts.Read = Duration(constants.DefaultReadTimeout)
	}
	if c.Timeouts.Ping <= 0 {
		c.Timeouts.Ping = Duration(constants.DefaultPingTimeout)
	}
}

// Validate reports the first configuration error
func (c Config) Validate() error {
	if err := validation.ValidateServerAddress(c.Host, c.Port); err != nil {
		return err
	}
	if err := validation.ValidateIdentity(c.Identity.Nick, c.Identity.Username, c.Identity.Realname); err != nil {
		return err
	}
	if c.Identity.AltNick != "" {
		if err := validation.ValidateNickname(c.Identity.AltNick); err != nil {
			return fmt.Errorf("alt nick: %w", err)
		}
	}
	if !c.TLS.Enabled && !c.TLS.AllowPlaintext {
		return fmt.Errorf("TLS is disabled but plaintext connections are not allowed")
	}
	if strings.ContainsAny(c.ServerPassword, "\r\n\x00") {
		return fmt.Errorf("server password contains invalid characters")
	}
	if c.SASL.Enabled {
		if !sasl.Supported(c.SASL.Mechanism) {
			return fmt.Errorf("unsupported SASL mechanism %q", c.SASL.Mechanism)
		}
		if strings.EqualFold(c.SASL.Mechanism, sasl.External) {
			if !c.ClientCert.Present() {
				return fmt.Errorf("SASL EXTERNAL requires a client certificate")
			}
			if !c.TLS.Enabled {
				return fmt.Errorf("SASL EXTERNAL requires TLS")
			}
		} else if c.SASL.Authcid == "" || c.SASL.Password == "" {
			return fmt.Errorf("SASL %s requires an account name and password", c.SASL.Mechanism)
		}
	}
	if err := codec.Validate(c.Encoding); err != nil {
		return err
	}
	for _, entry := range c.AutoJoin {
		channel, _, _ := strings.Cut(strings.TrimSpace(entry), " ")
		if err := validation.ValidateChannelName(channel); err != nil {
			return fmt.Errorf("autojoin %q: %w", entry, err)
		}
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		if u.Scheme != "socks5" && u.Scheme != "socks5h" {
			return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}
	if c.Flood.Rate < 0 || c.Flood.Burst < 0 {
		return fmt.Errorf("flood limits must not be negative")
	}
	return nil
}

// Address returns host:port
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
