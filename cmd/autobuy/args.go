package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tms-autobuy/internal/autobuy"
	"tms-autobuy/internal/symbols"
	"tms-autobuy/internal/tokenpool"
)

type args struct {
	host     string
	username string
	password string

	stocks   []symbols.Entry
	loc      *time.Location
	openHour int
	sentinel string

	poolSize     int
	triggerFloor decimal.Decimal

	logFile      string
	logLevel     string
	outFile      string
	metricsAddr  string
	deadline     time.Duration
	printSummary bool
}

const (
	defaultLogFile  = "logfile_multiple.txt"
	defaultTimezone = "Asia/Kathmandu"
)

// parseArgs reads flags from argv, falling back to environment variables
// for anything left unset.
func parseArgs(argv []string, getenv func(string) string, stderr io.Writer) (args, error) {
	fs := flag.NewFlagSet("autobuy", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var hostFlag string
	var usernameFlag string
	var passwordFlag string
	var stocksFlag string
	var stocksFileFlag string
	var tzFlag string
	var openHourFlag int
	var sentinelFlag string
	var poolSizeFlag int
	var triggerFloorFlag string
	var logFileFlag string
	var logLevelFlag string
	var outFlag string
	var metricsAddrFlag string
	var deadlineFlag time.Duration
	var printSummaryFlag bool

	openHourDefault := autobuy.DefaultOpenHour
	if env := strings.TrimSpace(getenv("OPEN_HOUR")); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid OPEN_HOUR %q: %w", env, err)
		}
		openHourDefault = v
	}

	fs.StringVar(&hostFlag, "broker-host", "", "TMS host, e.g. tms58.nepsetms.com.np (or TMS_HOST)")
	fs.StringVar(&usernameFlag, "username", "", "TMS username (or TMS_USERNAME)")
	fs.StringVar(&passwordFlag, "password", "", "TMS password (or TMS_PASSWORD)")
	fs.StringVar(&stocksFlag, "stocks", "", "Symbols and quantities, e.g. jhapa:300,sagar:350 (or STOCKS)")
	fs.StringVar(&stocksFileFlag, "stocks-file", "", "YAML file listing symbols and quantities (or STOCKS_FILE)")
	fs.StringVar(&tzFlag, "tz", "", "Exchange timezone (or EXCHANGE_TZ; default "+defaultTimezone+")")
	fs.IntVar(&openHourFlag, "open-hour", openHourDefault, "Exchange-local hour before which no loop starts (or OPEN_HOUR)")
	fs.StringVar(&sentinelFlag, "sentinel-symbol", "", "Symbol polled while waiting for the market (default: first stock)")
	fs.IntVar(&poolSizeFlag, "token-pool-size", tokenpool.DefaultSize, "Idempotency tokens per symbol")
	fs.StringVar(&triggerFloorFlag, "trigger-floor", autobuy.DefaultTriggerFloor.String(), "Initial trigger percent; the first order needs a percent change above it")
	fs.StringVar(&logFileFlag, "log-file", "", "Log file (or LOG_FILE; default "+defaultLogFile+")")
	fs.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (or LOG_LEVEL)")
	fs.StringVar(&outFlag, "out", "", "Optional JSONL journal of orders and outcomes (or OUT_FILE)")
	fs.StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102 (or METRICS_ADDR)")
	fs.DurationVar(&deadlineFlag, "deadline", 0, "Stop the run after this long (0 = no deadline)")
	fs.BoolVar(&printSummaryFlag, "print-summary", false, "Print the run summary as JSON to stdout when done")

	if err := fs.Parse(argv); err != nil {
		return args{}, err
	}
	if fs.NArg() > 0 {
		return args{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	out := args{
		host:         strings.TrimSpace(firstNonEmpty(hostFlag, getenv("TMS_HOST"))),
		username:     strings.TrimSpace(firstNonEmpty(usernameFlag, getenv("TMS_USERNAME"))),
		password:     firstNonEmpty(passwordFlag, getenv("TMS_PASSWORD")),
		openHour:     openHourFlag,
		sentinel:     strings.TrimSpace(sentinelFlag),
		poolSize:     poolSizeFlag,
		logFile:      strings.TrimSpace(firstNonEmpty(logFileFlag, getenv("LOG_FILE"), defaultLogFile)),
		logLevel:     strings.TrimSpace(firstNonEmpty(logLevelFlag, getenv("LOG_LEVEL"))),
		outFile:      strings.TrimSpace(firstNonEmpty(outFlag, getenv("OUT_FILE"))),
		metricsAddr:  strings.TrimSpace(firstNonEmpty(metricsAddrFlag, getenv("METRICS_ADDR"))),
		deadline:     deadlineFlag,
		printSummary: printSummaryFlag,
	}

	if out.host == "" {
		return args{}, errors.New("missing --broker-host (or TMS_HOST)")
	}
	if out.username == "" || out.password == "" {
		return args{}, errors.New("missing --username/--password (or TMS_USERNAME/TMS_PASSWORD)")
	}

	stocksRaw := strings.TrimSpace(firstNonEmpty(stocksFlag, getenv("STOCKS")))
	stocksFile := strings.TrimSpace(firstNonEmpty(stocksFileFlag, getenv("STOCKS_FILE")))
	switch {
	case stocksRaw != "" && stocksFile != "":
		return args{}, errors.New("use either --stocks or --stocks-file, not both")
	case stocksFile != "":
		list, err := symbols.LoadFile(stocksFile)
		if err != nil {
			return args{}, err
		}
		out.stocks = list
	case stocksRaw != "":
		list, err := symbols.ParseList(stocksRaw)
		if err != nil {
			return args{}, fmt.Errorf("invalid --stocks: %w", err)
		}
		out.stocks = list
	default:
		return args{}, errors.New("missing --stocks or --stocks-file (or STOCKS/STOCKS_FILE)")
	}

	tz := strings.TrimSpace(firstNonEmpty(tzFlag, getenv("EXCHANGE_TZ"), defaultTimezone))
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return args{}, fmt.Errorf("invalid --tz %q: %w", tz, err)
	}
	out.loc = loc

	if out.openHour < 0 || out.openHour > 23 {
		return args{}, fmt.Errorf("invalid --open-hour %d: want 0..23", out.openHour)
	}
	if out.poolSize <= 0 {
		return args{}, fmt.Errorf("invalid --token-pool-size %d: must be > 0", out.poolSize)
	}
	floor, err := decimal.NewFromString(strings.TrimSpace(triggerFloorFlag))
	if err != nil {
		return args{}, fmt.Errorf("invalid --trigger-floor %q: %w", triggerFloorFlag, err)
	}
	out.triggerFloor = floor
	if out.deadline < 0 {
		return args{}, fmt.Errorf("invalid --deadline %s", out.deadline)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
