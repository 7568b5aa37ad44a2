package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/logxen/netrap"
	"github.com/logxen/netrap/internal/config"
	"github.com/logxen/netrap/internal/eventloop"
	"github.com/logxen/netrap/internal/logging"
)

var cmd Cmd

// Cmd is the command line arguments. Flags override the corresponding
// values loaded from ConfigPath (SPEC_FULL.md §12).
type Cmd struct {
	ConfigPath string
	Device     string
	Baud       int
	Port       int
	LogLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "netrapctl",
	Short: "Multiplex TCP clients and stdin onto a single serial device",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			var interrupted Interrupted
			if errors.As(err, &interrupted) {
				return
			}
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.Flags().StringVar(&cmd.Device, "device", "", "Serial device path, overrides the configuration file")
	rootCmd.Flags().IntVar(&cmd.Baud, "baud", 0, "Serial baud rate, overrides the configuration file")
	rootCmd.Flags().IntVar(&cmd.Port, "port", 0, "TCP listen port, overrides the configuration file")
	rootCmd.Flags().StringVar(&cmd.LogLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, cmd)

	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log, err := logging.Init(level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctrl, err := netrap.New(cfg, netrap.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Warnw("errors while closing controller", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		// The loop ending for any reason also ends the signal wait below.
		defer cancel()
		err := ctrl.Run(ctx)
		if eventloop.IsShutdown(err) {
			return nil
		}
		return err
	})
	wg.Go(func() error {
		sig, err := WaitInterrupted(ctx)
		if err != nil {
			// ctx is only canceled once the loop has returned, and the
			// loop's own result is what Wait reports.
			return nil
		}
		log.Infof("caught signal: %v", sig)
		ctrl.Interrupt()
		return Interrupted{Signal: sig}
	})

	return wg.Wait()
}

func applyOverrides(cfg *config.Config, cmd Cmd) {
	if cmd.Device != "" {
		cfg.Device.Path = cmd.Device
	}
	if cmd.Baud != 0 {
		cfg.Device.Baud = cmd.Baud
	}
	if cmd.Port != 0 {
		cfg.Listen.Port = cmd.Port
	}
	if cmd.LogLevel != "" {
		cfg.Log.Level = cmd.LogLevel
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.Set(s); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Interrupted distinguishes a clean operator-requested shutdown from a
// genuine failure.
type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until SIGINT or SIGTERM is received or ctx is
// canceled.
func WaitInterrupted(ctx context.Context) (os.Signal, error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
