package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("numpadmouse v%s\n", version)
	fmt.Println("Keypad-driven virtual mouse daemon for Linux input devices")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  numpadmouse [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Turns keypad 8/2/4/6 into continuous pointer movement through a uinput")
	fmt.Println("  virtual mouse. Movement accelerates the longer a key is held and is")
	fmt.Println("  suspended while the NumLock indicator is on.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -tick-interval-ms int")
	fmt.Printf("        Motion emission interval in ms (default %d)\n", defaultTickIntervalMS)
	fmt.Println()
	fmt.Println("  -min-step int / -max-step int")
	fmt.Printf("        Step bounds of the acceleration curve (default %d / %d)\n", defaultMinStep, defaultMaxStep)
	fmt.Println()
	fmt.Println("  -min-point int / -max-point int")
	fmt.Printf("        Hold ticks where acceleration starts / saturates (default %d / %d)\n", defaultMinPoint, defaultMaxPoint)
	fmt.Println()
	fmt.Println("  -keyboard string")
	fmt.Println("        Keyboard event device to read (repeatable; default: autodetect)")
	fmt.Println()
	fmt.Println("  -numlock-device string")
	fmt.Println("        Device used to query the initial NumLock state (default: autodetect)")
	fmt.Println()
	fmt.Println("  -uinput string")
	fmt.Printf("        uinput device path (default %q)\n", defaultUinputPath)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for state queries (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -no-ipc")
	fmt.Println("        Disable the IPC socket")
	fmt.Println()
	fmt.Println("  -status-addr string")
	fmt.Println("        Enable the status WebSocket server on this address (e.g. \"127.0.0.1:3002\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to /dev/input/event* and write access to /dev/uinput")
	fmt.Println("    (run as root or add user to the 'input' group with a uinput udev rule)")
	fmt.Println()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var keyboards stringList

	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		tickIntervalMS = flag.Int("tick-interval-ms", defaultTickIntervalMS, "Motion emission interval in milliseconds")
		minStep        = flag.Int("min-step", defaultMinStep, "Step while the hold is short")
		maxStep        = flag.Int("max-step", defaultMaxStep, "Saturated step")
		minPoint       = flag.Int("min-point", defaultMinPoint, "Hold ticks before acceleration starts")
		maxPoint       = flag.Int("max-point", defaultMaxPoint, "Hold ticks at which the step saturates")
		numLockDevice  = flag.String("numlock-device", "", "Device used to query the initial NumLock state")
		uinputPath     = flag.String("uinput", defaultUinputPath, "uinput device path")
		ipcSocketPath  = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for state queries")
		noIPC          = flag.Bool("no-ipc", false, "Disable the IPC socket")
		statusAddr     = flag.String("status-addr", "", "Enable the status WebSocket server on this address")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion    = flag.Bool("version", false, "Print version and exit")
		showHelp       = flag.Bool("help", false, "Print help message")
	)
	flag.Var(&keyboards, "keyboard", "Keyboard event device to read (repeatable)")

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return 0
	}
	if *showVersion {
		printVersion()
		return 0
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		cfg = loaded
	}

	// Only flags given on the command line override the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var o FlagOverrides
	if set["tick-interval-ms"] {
		o.TickIntervalMS = tickIntervalMS
	}
	if set["min-step"] {
		o.MinStep = minStep
	}
	if set["max-step"] {
		o.MaxStep = maxStep
	}
	if set["min-point"] {
		o.MinPoint = minPoint
	}
	if set["max-point"] {
		o.MaxPoint = maxPoint
	}
	o.Keyboards = keyboards
	if set["numlock-device"] {
		o.NumLockDevice = numLockDevice
	}
	if set["uinput"] {
		o.UinputPath = uinputPath
	}
	if set["ipc-socket"] {
		o.IPCSocketPath = ipcSocketPath
	}
	if set["no-ipc"] {
		o.IPCDisabled = noIPC
	}
	if set["status-addr"] {
		o.StatusAddr = statusAddr
	}
	if set["log-level"] {
		o.LogLevel = logLevelStr
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stdout)

	return runDaemon(cfg, logger)
}

// runDaemon discovers devices, creates the virtual pointer and runs the
// engine until a signal arrives or a fatal error occurs.
func runDaemon(cfg Config, logger *slog.Logger) int {
	prober := newDeviceProber(logger)

	kbdPaths := cfg.Devices.Keyboards
	if len(kbdPaths) == 0 {
		found, err := prober.findKeyboards()
		if err != nil {
			logger.Error("keyboard discovery failed", "error", err, "tip", "run as root or add user to 'input' group")
			return 1
		}
		kbdPaths = found
	}

	numLockOn := prober.queryNumLock(cfg.Devices.NumLockDevice)

	pointer, err := newUinputPointer(cfg.VirtualPointer.UinputPath, cfg.VirtualPointer.Name)
	if err != nil {
		logger.Error("failed to create virtual pointer", "error", err)
		return 1
	}
	defer func() {
		if err := pointer.Close(); err != nil {
			logger.Warn("failed to destroy virtual pointer", "error", err)
		}
	}()

	sources, err := openKeyboards(kbdPaths)
	if err != nil {
		logger.Error("failed to open keyboards", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bus *statusBus
	if cfg.Status.Enabled {
		bus = newStatusBus(256)
	}

	eng := newEngine(cfg.ToEngineConfig(numLockOn), pointer, bus, logger)

	// Status surfaces are best-effort; their failures are logged, not fatal.
	svcCtx, cancelServices := context.WithCancel(ctx)
	var wg sync.WaitGroup
	startServices(svcCtx, cfg, eng, bus, logger, &wg)

	logger.Debug("starting numpadmouse", "version", version)
	logger.Info("listening",
		"keyboards", kbdPaths,
		"numlock", numLockOn,
		"uinput", cfg.VirtualPointer.UinputPath,
		"tick_interval_ms", cfg.Motion.TickIntervalMS,
		"min_step", cfg.Motion.MinStep,
		"max_step", cfg.Motion.MaxStep,
		"min_point", cfg.Motion.MinPoint,
		"max_point", cfg.Motion.MaxPoint,
		"ipc_enabled", cfg.IPC.Enabled,
		"status_enabled", cfg.Status.Enabled)

	runErr := eng.run(ctx, sources)

	cancelServices()
	wg.Wait()

	// Both loops have joined; nothing else writes to the pointer now.
	if cfg.VirtualPointer.NeutralOnShutdown {
		if err := eng.emitNeutral(); err != nil {
			logger.Warn("final neutral motion failed", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("engine stopped", "error", runErr)
		return 1
	}

	logger.Info("shutting down")
	return 0
}

func startServices(ctx context.Context, cfg Config, eng *engine, bus *statusBus, logger *slog.Logger, wg *sync.WaitGroup) {
	if cfg.IPC.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runIPCServer(ctx, cfg.IPC.SocketPath, eng.state, logger); err != nil {
				logger.Error("IPC server error", "error", err)
			}
		}()
	}

	if cfg.Status.Enabled {
		status := NewStatusServer(logger, eng.state, HubConfig{})
		mux := http.NewServeMux()
		status.Register(mux, cfg.Status.Path)

		wg.Add(3)
		go func() {
			defer wg.Done()
			status.Hub().Run(ctx)
		}()
		go func() {
			defer wg.Done()
			RunBroadcaster(ctx, status.Hub(), bus.events(), logger)
		}()
		go func() {
			defer wg.Done()
			if err := runStatusServer(ctx, cfg.Status.ListenAddr, mux, logger); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()
	}
}
