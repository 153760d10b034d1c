// Command meshrouterd runs the indirect-transmission subsystem of a Thread
// mesh router: it drives a serial-attached radio co-processor, answers
// sleepy children's data polls, and advertises itself as a Thread Border
// Agent over mDNS. Flag handling and startup sequencing follow the
// teacher's src/kissutil.go: pflag for options, a --help/-h that prints
// usage and exits zero, then validate before doing anything that touches
// hardware.
package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/otmesh/meshrouter/config"
	"github.com/otmesh/meshrouter/mesh"
	"github.com/otmesh/meshrouter/metrics"
	"github.com/otmesh/meshrouter/platform/announce"
	"github.com/otmesh/meshrouter/platform/evloop"
	"github.com/otmesh/meshrouter/platform/iplink"
	"github.com/otmesh/meshrouter/platform/neighbors"
	"github.com/otmesh/meshrouter/platform/polltrace"
	"github.com/otmesh/meshrouter/platform/rcpwatch"
	"github.com/otmesh/meshrouter/platform/resetline"
	"github.com/otmesh/meshrouter/platform/serialmac"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "Path to router configuration file (YAML). If empty, built-in defaults are used.")
		simulate    = pflag.Bool("simulate-rcp", false, "Talk to a simulated, in-process RCP instead of a real serial device.")
		logLevel    = pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
		metricsAddr = pflag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address, e.g. :9100.")
		help        = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Thread mesh router indirect-transmission daemon.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "meshrouterd"})
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %s\n", *logLevel, err)
		os.Exit(1)
	}
	logger.SetLevel(level)

	var cfg config.Config
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		logger.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *simulate, *metricsAddr, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, simulate bool, metricsAddr string, logger *log.Logger) error {
	localExt, err := randomExtAddress()
	if err != nil {
		return fmt.Errorf("generate extended address: %w", err)
	}

	loop := evloop.New()
	go loop.Run()
	defer loop.Stop()

	var transport *serialmac.Transport
	if simulate {
		transport, _, err = serialmac.OpenSimulated()
	} else {
		transport, err = serialmac.Open(cfg.Serial.Device, cfg.Serial.BaudRate)
	}
	if err != nil {
		return fmt.Errorf("open serial transport: %w", err)
	}
	defer transport.Close()

	identity := serialmac.NewIdentity(localExt, cfg.PanID)
	radioTable := serialmac.NewRadioTable(cfg.MaxChildren)

	table := mesh.NewChildTable(cfg.MaxChildren)
	queue := &mesh.SendQueue{}
	children := neighbors.New()
	resolver := iplink.NewResolver(localExt)
	fragmenter := iplink.NewFragmenter(102)
	m := metrics.New()

	indirectCfg := mesh.Config{
		MaxChildren:                    cfg.MaxChildren,
		DropMessageOnFragmentTxFailure: cfg.DropMessageOnFragmentTxFailure,
		SupervisionMsgAckRequest:       cfg.SupervisionMsgAckRequest,
	}

	sender := mesh.NewIndirectSender(
		indirectCfg, table, queue, children, identity, resolver, fragmenter,
		radioTable, transport, nil, m, loop, logger,
	)
	transport.BindHandler(sender.DataPoll(), loop)
	sender.Start()
	defer sender.Stop()

	if cfg.Reset.Chip != "" {
		reset, err := resetline.Open(cfg.Reset.Chip, cfg.Reset.Line)
		if err != nil {
			logger.Warn("reset line unavailable, continuing without it", "err", err)
		} else {
			defer reset.Close()
		}
	}

	trace, err := polltrace.Open(cfg.PollTrace.Directory)
	if err != nil {
		logger.Warn("poll trace unavailable", "err", err)
	} else {
		sender.DataPoll().SetObserver(trace)
		defer trace.Close()
	}

	if cfg.Announce.InstanceName != "" {
		a, err := announce.Start(cfg.Announce.InstanceName, cfg.Announce.Port)
		if err != nil {
			logger.Warn("mDNS advertisement failed to start", "err", err)
		} else {
			defer a.Stop()
		}
	}

	watcher := rcpwatch.New()
	if node, found, err := watcher.Find(); err == nil && found {
		logger.Info("RCP device present", "devnode", node)
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	logger.Info("meshrouterd started", "max_children", cfg.MaxChildren, "pan_id", cfg.PanID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return nil
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func randomExtAddress() ([8]byte, error) {
	var addr [8]byte
	if _, err := rand.Read(addr[:]); err != nil {
		return addr, err
	}
	addr[0] |= 0x02 // locally administered, per EUI-64 convention
	return addr, nil
}
