package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/twpayne/go-vfs/v4"
	"github.com/urfave/cli/v2"
	"k8s.io/mount-utils"

	"github.com/rkeyd/rkeyd/blockdev"
	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/constants"
	"github.com/rkeyd/rkeyd/coordinator"
	"github.com/rkeyd/rkeyd/decrypt"
	"github.com/rkeyd/rkeyd/keymgr"
	"github.com/rkeyd/rkeyd/provider"
	"github.com/rkeyd/rkeyd/signals"
	"github.com/rkeyd/rkeyd/state"
	"github.com/rkeyd/rkeyd/types"
	"github.com/rkeyd/rkeyd/utils"
)

var Version = "v0.0.0-dev"

func main() {
	app := &cli.App{
		Name:    "rkeyd",
		Version: Version,
		Usage:   "unattended key broker for encrypted volumes during early boot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: constants.ConfigFile,
				Usage: "path to the yaml configuration",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: constants.EnvFile,
				Usage: "path to the env-style override file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level (trace, debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "shortcut for --log-level debug",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "do not log to the console",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "resolve keys for requested volumes until all are unlocked",
				Action: runAction,
			},
			{
				Name:   "kill",
				Usage:  "terminate a lingering rkeyd instance and clean up after it",
				Action: killAction,
			},
			{
				Name:      "state",
				Usage:     "print the broker runtime state, optionally filtered by a query",
				ArgsUsage: "[query]",
				Action:    stateAction,
			},
		},
		DefaultCommand: "run",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (types.RkeydLogger, *config.Config, *signals.Files, error) {
	level := c.String("log-level")
	if c.Bool("debug") {
		level = "debug"
	}
	logger := types.NewRkeydLogger("rkeyd", level, c.Bool("quiet"))

	cfg, err := config.Load(vfs.OSFS, c.String("config"), c.String("env-file"), logger)
	if err != nil {
		return logger, nil, nil, err
	}
	files := signals.NewFiles(vfs.OSFS, cfg.RunDir, logger)
	return logger, cfg, files, nil
}

func runAction(c *cli.Context) error {
	logger, cfg, files, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	if err := files.Bootstrap(cfg.Mountpoint); err != nil {
		return cli.Exit(err, 1)
	}

	registry, err := provider.NewRegistry(cfg, provider.Deps{
		FS:      vfs.OSFS,
		Mounter: mount.New(""),
		Paths:   blockdev.NewPaths(""),
		Log:     logger,
	})
	if err != nil {
		// still release the mountpoint we just created
		_ = files.Teardown(cfg.Mountpoint)
		return cli.Exit(err, 1)
	}

	coord := &coordinator.Coordinator{
		Registry:     registry,
		Decryptor:    &decrypt.Decryptor{FS: vfs.OSFS, KeyBase: cfg.KeyBase, Log: logger},
		KeyManager:   keymgr.NewZFS(utils.NewRunner(), logger),
		Files:        files,
		SignalPrompt: signals.SignalPrompt,
		Cfg:          cfg,
		Log:          logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := coord.Run(ctx)
	if runErr != nil {
		logger.Logger.Error().Err(runErr).Msg("unlock pass aborted")
	}
	if err := files.Teardown(cfg.Mountpoint); err != nil {
		logger.Logger.Error().Err(err).Msg("teardown failed")
		return cli.Exit(err, 1)
	}
	if runErr != nil {
		return cli.Exit(runErr, 1)
	}
	return nil
}

func killAction(c *cli.Context) error {
	logger, cfg, files, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	pid := files.ReadPID()
	if pid == 0 || pid == os.Getpid() {
		logger.Logger.Info().Msg("No running instance recorded")
		return nil
	}

	p := signals.FindProcess(pid, "rkeyd")
	if p == nil {
		logger.Logger.Info().Int("pid", pid).Msg("Recorded pid is not an rkeyd process, cleaning up")
		files.RemovePID()
		return nil
	}

	if err := p.Terminate(); err != nil {
		logger.Logger.Warn().Int("pid", pid).Err(err).Msg("SIGTERM failed")
	}

	// Give it a moment to exit on its own before escalating
	err = retry.Do(
		func() error {
			running, err := p.IsRunning()
			if err == nil && running {
				return fmt.Errorf("pid %d still running", pid)
			}
			return nil
		},
		retry.Attempts(10),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		logger.Logger.Warn().Int("pid", pid).Msg("Escalating to SIGKILL")
		_ = p.Kill()
	}

	files.RemovePID()
	if err := files.Teardown(cfg.Mountpoint); err != nil {
		return cli.Exit(err, 1)
	}
	logger.Logger.Info().Int("pid", pid).Msg("Instance terminated")
	return nil
}

func stateAction(c *cli.Context) error {
	_, cfg, files, err := setup(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	runtime := state.NewRuntime(files, cfg)
	if c.Args().Present() {
		res, err := runtime.Query(c.Args().First())
		if err != nil {
			return cli.Exit(err, 1)
		}
		fmt.Println(res)
		return nil
	}

	out, err := json.MarshalIndent(runtime, "", "  ")
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(string(out))
	return nil
}
