package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/util"
	"github.com/atlassian/statsagg/pkg/backends"
	"github.com/atlassian/statsagg/pkg/statsd"
	"github.com/atlassian/statsagg/pkg/web"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"
)

func main() {
	rand.Seed(time.Now().UnixNano())
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.Info("Starting server")
	s, err := constructServer(v, logrus.StandardLogger())
	if err != nil {
		return err
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("server error: %v", err)
	}
	return nil
}

func constructServer(v *viper.Viper, logger logrus.FieldLogger) (*statsd.Server, error) {
	startup := time.Now()
	hub := statsd.NewHub(logger)

	// Backends
	for _, backendName := range statsagg.SplitList(v.GetStringSlice(statsagg.ParamBackends)) {
		if err := backends.InitBackend(backendName, startup, v, logger, hub); err != nil {
			return nil, err
		}
	}

	// Percentiles
	pt, err := statsagg.ParsePercentThreshold(strings.Join(v.GetStringSlice(statsagg.ParamPercentThreshold), ","))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", statsagg.ParamPercentThreshold, err)
	}

	store := statsd.NewStore(startup, v.GetBool(statsagg.ParamDeleteCounters))
	s := statsd.NewServer(store, hub, logger)
	s.Startup = startup
	s.MetricsAddr = v.GetString(statsagg.ParamMetricsAddr)
	s.ConsoleAddr = v.GetString(statsagg.ParamConsoleAddr)
	s.FlushInterval = v.GetDuration(statsagg.ParamFlushInterval)
	s.PercentThreshold = pt
	s.MaxReaders = v.GetInt(statsagg.ParamMaxReaders)
	s.ConnPerReader = v.GetBool(statsagg.ParamConnPerReader)
	s.ReceiveBufferSize = v.GetInt(statsagg.ParamReceiveBufferSize)
	s.MaxConsoleConns = v.GetInt(statsagg.ParamMaxConsoleConns)
	s.KeyFlushInterval = v.GetDuration(statsagg.ParamKeyFlushInterval)
	s.KeyFlushPercent = v.GetInt(statsagg.ParamKeyFlushPercent)
	s.KeyFlushLog = v.GetString(statsagg.ParamKeyFlushLog)
	s.Debug = v.GetBool(statsagg.ParamDebug)
	s.DebugInterval = v.GetDuration(statsagg.ParamDebugInterval)
	s.DumpMessages = v.GetBool(statsagg.ParamDumpMessages)
	s.BadLinesPerMinute = v.GetInt(statsagg.ParamBadLinesPerMinute)

	// Web console
	if webAddr := v.GetString(statsagg.ParamWebAddr); webAddr != "" {
		hs, err := web.NewHttpServerFromViper(v, logger, webAddr, s.FlushInterval, startup, store, hub)
		if err != nil {
			return nil, err
		}
		s.Runnables = statsagg.MaybeAppendRunnable(s.Runnables, hs)
	}

	return s, nil
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	statsagg.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
