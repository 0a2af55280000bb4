package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/infodancer/msgstore"
	_ "github.com/infodancer/msgstore/maildir" // Register maildir storage backend
	"github.com/prometheus/client_golang/prometheus"

	"github.com/infodancer/popfetch/internal/cache"
	"github.com/infodancer/popfetch/internal/config"
	"github.com/infodancer/popfetch/internal/logging"
	"github.com/infodancer/popfetch/internal/mailbox"
	"github.com/infodancer/popfetch/internal/metrics"
	"github.com/infodancer/popfetch/internal/pop3"
	"github.com/infodancer/popfetch/internal/tlstrust"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	engine := tlstrust.NewEngine(logger)
	prompter := &tlstrust.StdioPrompter{R: os.Stdin, W: os.Stderr}
	confirmer := &mailbox.StdioConfirmer{R: os.Stdin, W: os.Stderr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics server started", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	logger.Info("starting popfetch", "accounts", len(cfg.Accounts))

	var wg sync.WaitGroup
	for _, acct := range cfg.Accounts {
		acct := acct
		wg.Add(1)
		go func() {
			defer wg.Done()
			runAccount(ctx, acct, logger, collector, engine, prompter, confirmer)
		}()
	}
	wg.Wait()

	logger.Info("popfetch stopped")
}

// runAccount polls one account until ctx is canceled, sleeping
// CheckInterval between passes (spec §4.3.7's re-check loop, driven here
// rather than inside the protocol engine since the ticker spans whole
// open/fetch/sync cycles, not individual commands).
func runAccount(ctx context.Context, acct config.Account, logger *slog.Logger, collector metrics.Collector, engine *tlstrust.Engine, prompter tlstrust.Prompter, confirmer mailbox.Confirmer) {
	log := logger.With("account", acct.Name)

	parsed, err := acct.ParsedURL()
	if err != nil {
		log.Error("invalid account url", "error", err)
		return
	}

	coordinator, err := openCache(acct)
	if err != nil {
		log.Error("error opening cache", "error", err)
		return
	}
	// coordinator is typed *cache.Coordinator; pop3.NewPopSession wants a
	// pop3.Cache interface, and a nil *Coordinator boxed directly into that
	// interface would be non-nil and panic on first use, so the no-cache
	// case is passed through as a genuinely nil interface value instead.
	var sessCache pop3.Cache
	if coordinator != nil {
		sessCache = coordinator
	}

	var agent msgstore.DeliveryAgent
	if acct.SpoolPath != "" {
		store, err := msgstore.Open(msgstore.StoreConfig{
			Type:     "maildir",
			BasePath: acct.SpoolPath,
		})
		if err != nil {
			log.Error("error opening spool", "error", err)
			return
		}
		agent = store
		log.Info("drain-to-spool enabled", "path", acct.SpoolPath)
	}

	openFunc := func(context.Context) (*pop3.Protocol, error) {
		mode := pop3.ModeSTARTTLS
		if parsed.TLS {
			mode = pop3.ModeTLS
		}
		return pop3.Dial(parsed.Addr(), pop3.DialOptions{
			Hostname:  parsed.Host,
			Mode:      mode,
			TLS:       sslConfig(acct.SSL, acct.CertificateFile),
			TLSEngine: engine,
			Prompter:  prompter,
		}, log)
	}

	password := accountPassword(acct, parsed)
	driver := &mailbox.Driver{
		Path:    parsed.Addr(),
		Session: pop3.NewPopSession(parsed.Host, sessCache),
		Open:    openFunc,
		OpenOptions: pop3.OpenOptions{
			Username: parsed.User,
			Password: password,
			UseAPOP:  true,
			SASL:     pop3.NewPlainSASL(parsed.User, password),
		},
		MarkOld:           acct.MarkOld,
		MessageCacheClean: acct.MessageCacheClean,
	}

	deleteMode := mailbox.ParseQuadOption(acct.PopDelete)

	ticker := time.NewTicker(acct.CheckInterval())
	defer ticker.Stop()

	poll := func() {
		collector.FetchStarted(acct.Name)
		mctx, err := driver.OpenMailbox(ctx)
		if err != nil {
			log.Error("error opening mailbox", "error", err)
			return
		}
		if parsed.TLS {
			collector.TLSHandshake(acct.Name)
		}
		collector.FetchCompleted(acct.Name, mctx.Fetch.New, mctx.Fetch.Lost)

		if agent != nil {
			result, err := mailbox.DrainToSpool(ctx, mctx.Protocol(), mctx.Session(), agent, mailbox.DrainOptions{
				Recipient: parsed.User,
				UseLast:   acct.PopLast,
				Delete:    deleteMode,
				Confirm:   confirmer,
			})
			if err != nil {
				log.Error("error draining to spool", "error", err)
			} else {
				log.Info("drained to spool", "delivered", result.Delivered, "deleted", result.Deleted)
				for i := 0; i < result.Deleted; i++ {
					collector.MessageDeleted(acct.Name)
				}
			}
		}

		if err := driver.Close(mctx); err != nil {
			log.Error("error closing mailbox", "error", err)
			return
		}
		collector.SyncCompleted(acct.Name)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func openCache(acct config.Account) (*cache.Coordinator, error) {
	if acct.CachePath == "" {
		return nil, nil
	}
	headers, err := cache.OpenBoltHeaderStore(acct.CachePath + "/headers.db")
	if err != nil {
		return nil, fmt.Errorf("opening header cache: %w", err)
	}
	bodies, err := cache.OpenMaildirBodyStore(acct.CachePath + "/bodies")
	if err != nil {
		return nil, fmt.Errorf("opening body cache: %w", err)
	}
	return cache.NewCoordinator(headers, bodies), nil
}

func sslConfig(ssl config.SSLConfig, certFile string) tlstrust.Config {
	return tlstrust.Config{
		Versions: tlstrust.ProtocolVersions{
			SSLv2:  ssl.UseSSLv2,
			SSLv3:  ssl.UseSSLv3,
			TLSv10: ssl.UseTLSv1,
			TLSv11: ssl.UseTLSv11,
			TLSv12: ssl.TLSv12(),
			TLSv13: true,
		},
		VerifyHost:          ssl.HostVerification(),
		VerifyDates:         ssl.DateVerification(),
		VerifyPartialChains: ssl.VerifyPartialChains,
		UseSystemCerts:      ssl.UseSystemCerts,
		TrustFilePath:       certFile,
	}
}

func accountPassword(acct config.Account, parsed config.ParsedURL) string {
	if parsed.Password != "" {
		return parsed.Password
	}
	return os.Getenv("POPFETCH_PASSWORD_" + acct.Name)
}
