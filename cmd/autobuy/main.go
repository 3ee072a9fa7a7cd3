package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/coreos/go-systemd/v22/daemon"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"

	"tms-autobuy/internal/autobuy"
	"tms-autobuy/internal/dotenv"
	"tms-autobuy/internal/jsonl"
	"tms-autobuy/internal/logging"
	"tms-autobuy/internal/metrics"
	"tms-autobuy/internal/symbols"
	"tms-autobuy/internal/tms"
)

func main() {
	if err := dotenv.Load(os.Getenv("ENV_FILE")); err != nil {
		logrus.Warnf("%v", err)
	}

	parsed, err := parseArgs(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	log, logCloser, err := logging.New(logging.Options{File: parsed.logFile, Level: parsed.logLevel})
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	os.Exit(run(parsed, log, logCloser))
}

func run(parsed args, log *logrus.Logger, logCloser io.Closer) int {
	defer func() {
		if err := logCloser.Close(); err != nil {
			logrus.Warnf("log close: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if parsed.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, parsed.deadline)
		defer cancel()
	}

	journal := jsonl.New(parsed.outFile)
	if journal != nil {
		log.Infof("Journal: %s (JSONL)", journal.Path())
		defer func() {
			if err := journal.Close(); err != nil {
				log.WithError(err).Warn("journal close failed")
			}
		}()
	}

	var m *metrics.Metrics
	if parsed.metricsAddr != "" {
		m = metrics.New()
		srv, err := serveMetrics(parsed.metricsAddr, m, log)
		if err != nil {
			log.WithError(err).Error("metrics listener")
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := tms.NewClient(parsed.host)
	if err != nil {
		log.WithError(err).Error("broker client")
		return 1
	}

	log.Infof("Autobuy -> %s", client.Host())
	log.Infof("Stocks: %s", symbols.Join(parsed.stocks))
	log.Infof("Market gate: %02d:00 %s", parsed.openHour, parsed.loc)

	orch, err := autobuy.New(client, autobuy.Config{
		Host:         client.Host(),
		Username:     parsed.username,
		Password:     parsed.password,
		Stocks:       parsed.stocks,
		Location:     parsed.loc,
		OpenHour:     parsed.openHour,
		Sentinel:     parsed.sentinel,
		PoolSize:     parsed.poolSize,
		TriggerFloor: decimal.NewNullDecimal(parsed.triggerFloor),
	},
		autobuy.WithLogger(log),
		autobuy.WithJournal(journal),
		autobuy.WithMetrics(m),
		autobuy.OnReady(func() { notify(log, daemon.SdNotifyReady) }),
	)
	if err != nil {
		log.WithError(err).Error("autobuy config")
		return 1
	}
	defer notify(log, daemon.SdNotifyStopping)

	rep, err := orch.Run(ctx)
	if parsed.printSummary {
		printSummary(rep, log)
	}
	if err != nil {
		log.WithError(err).Error("run aborted")
		return 1
	}
	for _, o := range rep.Failed() {
		log.WithField("symbol", o.Symbol).WithError(o.Err).Warnf("%s ended with %s", o.Symbol, o.Reason)
	}
	return 0
}

func serveMetrics(addr string, m *metrics.Metrics, log logrus.FieldLogger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	log.Infof("Metrics: http://%s/metrics", ln.Addr())
	return srv, nil
}

// notify is a no-op outside systemd.
func notify(log logrus.FieldLogger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.WithError(err).Debug("sd_notify failed")
	}
}

func printSummary(rep autobuy.Report, log logrus.FieldLogger) {
	b, err := json.Marshal(rep.Summary())
	if err != nil {
		log.WithError(err).Warn("encode summary")
		return
	}
	if _, err := os.Stdout.Write(pretty.Pretty(b)); err != nil {
		log.WithError(err).Warn("write summary")
	}
}
