package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"esdmd/internal/config"
	"esdmd/internal/daemon"
	"esdmd/internal/drng"
	"esdmd/internal/entropy"
	"esdmd/internal/health"
	"esdmd/internal/logging"
	"esdmd/internal/sources"
	"esdmd/internal/status"
)

var (
	runForeground bool
	runUID        int
	runGID        int
)

func RunCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Run the entropy manager daemon in the foreground or background",
		RunE:  runRun,
	}
	c.Flags().BoolVar(&runForeground, "foreground", false, "stay attached to the controlling terminal")
	c.Flags().IntVar(&runUID, "uid", -1, "drop privileges to this uid after binding sockets (unix only)")
	c.Flags().IntVar(&runGID, "gid", -1, "drop privileges to this gid after binding sockets (unix only)")
	root.AddCommand(c)
	return c
}

var _ = RunCmd(rootCmd)

func runRun(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if err := loader.Watch(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer loader.Close()

	log, err := logging.New(&logging.Config{
		Level:     mustParseLevel(cfg.Logging.Level),
		Format:    parseFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "esdmd",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	audit, err := logging.NewAuditLogger(logging.DefaultAuditConfig())
	if err != nil {
		return fmt.Errorf("init audit logger: %w", err)
	}
	defer audit.Close()

	if runUID >= 0 || runGID >= 0 {
		if err := dropPrivileges(runUID, runGID); err != nil {
			return fmt.Errorf("drop privileges: %w", err)
		}
	}
	if err := lockMemory(); err != nil {
		log.Warn("memory lock unavailable, seed material may be swappable", "error", err)
	}

	registry := buildRegistry(cfg)
	nodes, err := buildDRNGNodes()
	if err != nil {
		return fmt.Errorf("init DRNG backends: %w", err)
	}

	reg := prometheus.NewRegistry()
	publisher := status.NewPublisher(reg)

	// cpuRandomWord is left nil: no RDRAND/RDSEED read-instruction source
	// exists in this module (see internal/sources/kernel_amd64.go), so
	// the bootstrap seed falls back to the wall clock, exactly as
	// injectBootstrapSeed does for any platform lacking one.
	mgr := entropy.NewManager(registry, cfg.Policy.ToPolicy(), nodes, publisher, nil, log.Logger)
	mgr.SetMonitorConfig(entropy.MonitorConfig{
		Duration: time.Duration(cfg.Monitor.DurationSec) * time.Second,
		Quantum:  time.Duration(cfg.Monitor.QuantumMs) * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize entropy manager: %w", err)
	}
	defer mgr.Finalize()

	_ = audit.LogStartup(ctx, daemonVersion, map[string]interface{}{"sources": registry.Len()})

	// MonitorInitialize spawns its own goroutine and returns immediately.
	mgr.MonitorInitialize(ctx)

	checker := health.NewChecker()
	checker.RegisterFunc("entropy-manager", true, func(ctx context.Context) health.CheckResult {
		if mgr.StateOperational() {
			return health.CheckResult{Status: health.StatusHealthy, Message: "operational"}
		}
		if mgr.StateMinSeeded() {
			return health.CheckResult{Status: health.StatusDegraded, Message: "minimally seeded"}
		}
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "uninitialized"}
	})
	if cfg.Sources.TPM {
		checker.RegisterFunc("tpm-device", false, health.FileExistsCheck(cfg.Sources.TPMDevice))
	}
	checker.SetReady(true)

	metricsSrv := &http.Server{Addr: cfg.Status.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	defer metricsSrv.Close()

	healthMux := http.NewServeMux()
	healthMux.Handle("/livez", checker.LivenessHandler())
	healthMux.Handle("/readyz", checker.ReadinessHandler())
	healthMux.Handle("/healthz", checker.HealthHandler())
	healthSrv := &http.Server{Addr: cfg.Status.HealthAddr, Handler: healthMux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server stopped", "error", err)
		}
	}()
	defer healthSrv.Close()

	controlSrv, controlLn, err := newControlServer(cfg.IPC.SocketPath, mgr, registry, audit, log)
	if err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	go func() {
		if err := controlSrv.Serve(controlLn); err != nil && err != http.ErrServerClosed {
			log.Error("control server stopped", "error", err)
		}
	}()
	defer func() {
		controlSrv.Close()
		os.Remove(cfg.IPC.SocketPath)
	}()

	dm := daemon.NewManager(cfg.Daemon.PIDFile, configStateFile(cfg))
	if err := dm.WritePID(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer dm.Cleanup()
	_ = dm.WriteState(&daemon.State{PID: 0, StartedAt: time.Now(), Version: daemonVersion})

	log.WithSeedLevel(seedLevelLabel(mgr)).Info("esdmd started", "sources", registry.Len(), "nodes", len(nodes))

	err = daemon.Run(ctx, func() {
		newCfg, rerr := loader.Load()
		if rerr != nil {
			log.Error("config reload failed", "error", rerr)
			return
		}
		_ = audit.LogConfigChange(ctx, "full_config", "", "")
		_ = newCfg
		log.Info("config reloaded")
	})

	_ = audit.LogShutdown(ctx, "signal")
	log.Info("esdmd stopping")
	return err
}

func buildRegistry(cfg *config.Config) *entropy.Registry {
	var srcs []entropy.Source
	if cfg.Sources.Jitter {
		srcs = append(srcs, sources.NewJitterSource())
	}
	if cfg.Sources.Interrupt {
		srcs = append(srcs, sources.NewInterruptSource())
	}
	if cfg.Sources.Scheduler {
		srcs = append(srcs, sources.NewSchedulerSource())
	}
	if cfg.Sources.Kernel {
		srcs = append(srcs, sources.NewKernelSource())
	}
	if cfg.Sources.TPM {
		srcs = append(srcs, sources.NewTPMSource(cfg.Sources.TPMDevice))
	}
	// Aux is always present: it is the sink for the bootstrap seed
	// regardless of whether an operator disabled it for monitoring.
	srcs = append(srcs, sources.NewAuxSource())
	return entropy.NewRegistry(srcs)
}

func buildDRNGNodes() ([]entropy.DRNG, error) {
	fortuna, err := drng.NewFortunaNode()
	if err != nil {
		return nil, fmt.Errorf("fortuna: %w", err)
	}
	ctr, err := drng.NewCtrDrbgNode()
	if err != nil {
		return nil, fmt.Errorf("aes-ctr-drbg: %w", err)
	}
	chacha, err := drng.NewChaChaNode()
	if err != nil {
		return nil, fmt.Errorf("chacha: %w", err)
	}
	// fortuna is Nodes[0]: the designated init instance UnsetFullySeeded's
	// demotion cascade consults.
	return []entropy.DRNG{fortuna, ctr, chacha}, nil
}

func mustParseLevel(s string) logging.Level {
	lvl, err := logging.ParseLevel(s)
	if err != nil {
		return logging.LevelInfo
	}
	return lvl
}

func parseFormat(s string) logging.Format {
	if s == "text" {
		return logging.FormatText
	}
	return logging.FormatJSON
}

// seedLevelLabel reports the manager's current seed level as a string
// suitable for a log attribute; see logging.Logger.WithSeedLevel.
func seedLevelLabel(mgr *entropy.Manager) string {
	switch {
	case mgr.StateOperational():
		return "fully_seeded"
	case mgr.StateMinSeeded():
		return "min_seeded"
	default:
		return "unseeded"
	}
}

func configStateFile(cfg *config.Config) string {
	return cfg.Daemon.PIDFile + ".state.json"
}

const daemonVersion = "0.1.0"

// controlStatus is the JSON payload GET /control/status returns; the
// CLI's status subcommand and `esdmd status` share this shape.
type controlStatus struct {
	Operational bool `json:"operational"`
	FullySeeded bool `json:"fully_seeded"`
	MinSeeded   bool `json:"min_seeded"`
	AllNodeSeed bool `json:"all_nodes_seeded"`
	AvailBits   uint32 `json:"available_entropy_bits"`
}

// addEntropyRequest is the body POST /control/add-entropy expects.
type addEntropyRequest struct {
	DataHex string `json:"data_hex"`
	Bits    uint32 `json:"bits"`
}

// newControlServer builds the local operator control endpoint: status,
// reset-state, and add-entropy, all on one unix socket — deliberately
// not a generalized RPC transport. A stale socket file from a prior
// unclean exit is removed before binding.
func newControlServer(socketPath string, mgr *entropy.Manager, registry *entropy.Registry, audit *logging.AuditLogger, log *logging.Logger) (*http.Server, net.Listener, error) {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/control/status", func(w http.ResponseWriter, r *http.Request) {
		st := controlStatus{
			Operational: mgr.StateOperational(),
			FullySeeded: mgr.StateFullySeeded(),
			MinSeeded:   mgr.StateMinSeeded(),
			AllNodeSeed: mgr.AllNodesSeeded(),
			AvailBits:   mgr.AvailEntropy(mgr.AllNodesSeeded()),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("/control/reset-state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		mgr.ResetState()
		_ = audit.LogResetState(r.Context(), "operator request")
		if err := log.ForceRotate(); err != nil {
			log.Warn("log rotation after reset-state failed", "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/control/add-entropy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req addEntropyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := decodeHex(req.DataHex)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		aux, ok := auxSourceOf(registry)
		if !ok {
			http.Error(w, "no auxiliary source registered", http.StatusServiceUnavailable)
			return
		}
		aux.InsertAux(data, req.Bits)
		mgr.AddEntropy(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	return &http.Server{Handler: mux}, ln, nil
}

// auxSourceOf returns the registry's last (auxiliary) source as the
// lifecycle package's extended AuxSource capability.
func auxSourceOf(registry *entropy.Registry) (entropy.AuxSource, bool) {
	idx := registry.AuxIndex()
	if idx < 0 {
		return nil, false
	}
	s, err := registry.Get(idx)
	if err != nil {
		return nil, false
	}
	aux, ok := s.(entropy.AuxSource)
	return aux, ok
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("data_hex must not be empty")
	}
	return hex.DecodeString(s)
}
