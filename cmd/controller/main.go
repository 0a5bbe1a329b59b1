package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tigerbot-team/tigerbot/field-controller/pkg/config"
)

var CLI struct {
	Config string `help:"Path to the YAML config." default:"/cfg/field-controller.yaml" type:"path"`
	Debug  bool   `help:"Enable debug logging."`

	Run     RunCmd     `cmd:"" default:"1" help:"Drive the robot with the joystick, switching between teleop, auto and pause."`
	Sim     SimCmd     `cmd:"" help:"Run the autonomous waypoints against the simulator and print the trace."`
	Sensors SensorsCmd `cmd:"" help:"Print the tracked pose."`
	Wheels  WheelsCmd  `cmd:"" help:"Spin each wheel in turn and report odometry."`
	Joy     JoyCmd     `cmd:"" help:"Print joystick events."`
}

// Context is passed to every command's Run method.
type Context struct {
	Ctx    context.Context
	Log    *zap.SugaredLogger
	Config config.Config
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("field-controller"),
		kong.Description("Mecanum field controller."),
	)

	log := newLogger(CLI.Debug)
	defer func() { _ = log.Sync() }()
	log.Infow("---- Field controller ----", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(log, cancel)

	err := kctx.Run(&Context{
		Ctx:    ctx,
		Log:    log,
		Config: config.Load(CLI.Config, log.Named("config")),
	})
	kctx.FatalIfErrorf(err)
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	if debug {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger.Sugar()
}

func registerSignalHandlers(log *zap.SugaredLogger, cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Infow("Signal", "signal", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
