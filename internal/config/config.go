// Package config provides configuration management for the POP3 client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config is the top-level configuration: a list of accounts to poll, plus
// process-wide settings.
type Config struct {
	LogLevel string        `toml:"log_level"`
	Accounts []Account     `toml:"account"`
	Metrics  MetricsConfig `toml:"metrics"`
}

// Account is one `[[account]]` stanza of spec §6: a POP3 mailbox plus its
// TLS trust policy and cache locations.
type Account struct {
	Name string `toml:"name"`
	// URL is pop[s]://[user[:pass]@]host[:port][/]; default port 110 for
	// pop, 995 for pops; any path component is discarded.
	URL string `toml:"url"`

	PopCheckInterval  string `toml:"pop_check_interval"`
	PopLast           bool   `toml:"pop_last"`
	PopDelete         string `toml:"pop_delete"` // yes|no|ask-yes|ask-no
	PopHost           string `toml:"pop_host"`
	MessageCacheClean bool   `toml:"message_cache_clean"`
	MarkOld           bool   `toml:"mark_old"`

	SSL SSLConfig `toml:"ssl"`

	CertificateFile string `toml:"certificate_file"`
	EntropyFile     string `toml:"entropy_file"`

	CachePath string `toml:"cache_path"`
	SpoolPath string `toml:"spool_path"`
}

// SSLConfig is the `ssl_*` family of options of spec §6.
type SSLConfig struct {
	UseSSLv2            bool   `toml:"use_sslv2"`
	UseSSLv3            bool   `toml:"use_sslv3"`
	UseTLSv1            bool   `toml:"use_tlsv1"`
	UseTLSv11           bool   `toml:"use_tlsv11"`
	VerifyPartialChains bool   `toml:"verify_partial_chains"`
	Ciphers             string `toml:"ciphers"`
	ClientCert          string `toml:"client_cert"`
	UseSystemCerts      bool   `toml:"use_system_certs"`

	// UseTLSv12, VerifyHost and VerifyDates default to true, so a plain
	// bool can't distinguish "absent from this config file" from
	// "explicitly disabled"; *bool carries that third state.
	UseTLSv12   *bool `toml:"use_tlsv12"`
	VerifyHost  *bool `toml:"verify_host"`
	VerifyDates *bool `toml:"verify_dates"`
}

func boolDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// TLSv12 reports whether TLS 1.2 is enabled, defaulting to true.
func (s SSLConfig) TLSv12() bool { return boolDefault(s.UseTLSv12, true) }

// HostVerification reports whether hostname verification is enabled,
// defaulting to true.
func (s SSLConfig) HostVerification() bool { return boolDefault(s.VerifyHost, true) }

// DateVerification reports whether not-before/not-after checks are
// enabled, defaulting to true.
func (s SSLConfig) DateVerification() bool { return boolDefault(s.VerifyDates, true) }

// MetricsConfig holds configuration for the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values and no accounts
// (accounts must come from a config file or flags).
func Default() Config {
	return Config{
		LogLevel: "info",
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9101",
			Path:    "/metrics",
		},
	}
}

// DefaultAccount returns an Account with the spec's default option values
// applied, for merging over a parsed `[[account]]` stanza.
func DefaultAccount() Account {
	return Account{
		PopCheckInterval: "1m",
		PopDelete:        "no",
	}
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return errors.New("at least one account is required")
	}
	for i := range c.Accounts {
		if err := c.Accounts[i].Validate(); err != nil {
			return fmt.Errorf("account %d: %w", i, err)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	return nil
}

// Validate checks a single account's configuration.
func (a *Account) Validate() error {
	if a.URL == "" {
		return errors.New("url is required")
	}
	if _, err := a.ParsedURL(); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch a.PopDelete {
	case "", "yes", "no", "ask-yes", "ask-no":
	default:
		return fmt.Errorf("invalid pop_delete %q (valid: yes, no, ask-yes, ask-no)", a.PopDelete)
	}
	if a.PopCheckInterval != "" {
		if _, err := time.ParseDuration(a.PopCheckInterval); err != nil {
			return fmt.Errorf("invalid pop_check_interval: %w", err)
		}
	}
	return nil
}

// ParsedURL is the decomposed form of Account.URL (spec §6's "pop[s]://
// [user[:pass]@]host[:port][/]" grammar).
type ParsedURL struct {
	TLS      bool // scheme was "pops" (implicit TLS)
	User     string
	Password string
	Host     string
	Port     int
}

// ParsedURL parses a.URL per spec §6. Default ports: 110 for pop, 995 for
// pops. The path component, if any, is discarded (POP has no mailbox
// namespace).
func (a *Account) ParsedURL() (ParsedURL, error) {
	return parseAccountURL(a.URL)
}

func parseAccountURL(raw string) (ParsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURL{}, err
	}

	var isTLS bool
	switch u.Scheme {
	case "pop":
		isTLS = false
	case "pops":
		isTLS = true
	default:
		return ParsedURL{}, fmt.Errorf("unsupported scheme %q (want pop or pops)", u.Scheme)
	}

	if u.Host == "" {
		return ParsedURL{}, errors.New("missing host")
	}

	host := u.Hostname()
	portStr := u.Port()
	port := 110
	if isTLS {
		port = 995
	}
	if portStr != "" {
		p, perr := strconv.Atoi(portStr)
		if perr != nil {
			return ParsedURL{}, fmt.Errorf("invalid port: %w", perr)
		}
		port = p
	}

	password, _ := u.User.Password()
	return ParsedURL{
		TLS:      isTLS,
		User:     u.User.Username(),
		Password: password,
		Host:     host,
		Port:     port,
	}, nil
}

// Addr returns the "host:port" dial address.
func (p ParsedURL) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// CheckInterval returns PopCheckInterval as a time.Duration, defaulting to
// one minute if unset or invalid.
func (a *Account) CheckInterval() time.Duration {
	if a.PopCheckInterval == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(a.PopCheckInterval)
	if err != nil {
		return time.Minute
	}
	return d
}
