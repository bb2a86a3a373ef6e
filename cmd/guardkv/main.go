package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fystack/guardkv/pkg/auth"
	"github.com/fystack/guardkv/pkg/blobstore"
	"github.com/fystack/guardkv/pkg/config"
	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/eventconsumer"
	"github.com/fystack/guardkv/pkg/identity"
	"github.com/fystack/guardkv/pkg/lifecycle"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/messaging"
	"github.com/fystack/guardkv/pkg/node"
	"github.com/fystack/guardkv/pkg/stable"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"
)

const (
	ModeAuto    = "auto"
	ModeInstall = "install"
	ModeUpgrade = "upgrade"
)

// ErrLineageExists stops an install from replacing a persisted authorized set.
var ErrLineageExists = errors.New("stable storage already holds an authorized set snapshot")

func main() {
	app := &cli.Command{
		Name:  "guardkv",
		Usage: "Access-controlled blob store node",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a guardkv node",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Node name",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Value:   ModeAuto,
						Usage:   "Lifecycle entry point: auto, install or upgrade",
					},
					&cli.StringFlag{
						Name:  "initializer",
						Usage: "First authorized principal on install (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "force-install",
						Usage: "Install even if a snapshot exists, discarding every persisted grant",
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Config file (default ./config.yaml)",
					},
					&cli.BoolFlag{
						Name:    "prompt-credentials",
						Aliases: []string{"p"},
						Usage:   "Prompt for sensitive parameters",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "Enable debug logging",
					},
				},
				Action: runNode,
			},
			{
				Name:  "recover",
				Usage: "Restore a node database from encrypted backups",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "backup-dir",
						Aliases:  []string{"b"},
						Usage:    "Directory holding the encrypted backup files",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "recovery-path",
						Aliases:  []string{"r"},
						Usage:    "Where to write the restored database",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Node name the database belongs to",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing recovery path",
					},
				},
				Action: recoverDatabase,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runNode(ctx context.Context, c *cli.Command) error {
	nodeName := c.String("name")
	mode := c.String("mode")

	if err := config.InitViperConfig(c.String("config")); err != nil {
		return err
	}
	logger.Init(viper.GetString("environment"), c.Bool("debug"))

	if c.Bool("prompt-credentials") {
		if err := promptForSensitiveValues(); err != nil {
			return err
		}
	}
	if initializer := c.String("initializer"); initializer != "" {
		viper.Set("initializer", initializer)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.Debug("Loaded config", "config", cfg.MarshalJSONMask())

	storage, err := openStableStorage(cfg, nodeName)
	if err != nil {
		return err
	}
	defer storage.Close()

	registry := auth.NewRegistry()
	snapshots := stable.NewKVSnapshotStore(storage.kv, cfg.StableStorage.Key)
	controller := lifecycle.NewController(registry, snapshots)
	guardNode := node.NewNode(nodeName, registry, blobstore.NewMemoryStore())

	if err := enterLifecycle(ctx, controller, snapshots, mode, types.Principal(cfg.Initializer), c.Bool("force-install")); err != nil {
		return err
	}

	natsConn, err := GetNATSConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConn.Close()

	consumer := eventconsumer.NewRequestConsumer(
		guardNode,
		controller,
		identity.NewVerifier(),
		messaging.NewNATSRequestServer(natsConn),
		messaging.NewNATSPubSub(natsConn),
		cfg.Transport.SubjectPrefix,
	)
	if err := consumer.Run(); err != nil {
		return err
	}
	logger.Info("Node is running", "name", nodeName, "state", controller.State().String(), "principals", registry.Len())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Warn("Shutdown signal received, suspending node...")
	case <-ctx.Done():
	}

	if err := consumer.Close(); err != nil {
		logger.Error("Failed to close request consumer", err)
	}

	// The authorized set only survives the restart if this succeeds.
	if err := controller.PreUpgrade(context.Background()); err != nil {
		logger.Error("Pre-upgrade hook failed, authorized set not persisted", err)
		return err
	}

	if cfg.Backup.Enabled {
		if err := storage.backup(cfg, nodeName); err != nil {
			logger.Error("Backup failed", err)
		}
	}
	return nil
}

// enterLifecycle runs the install or upgrade hook. In auto mode a node with a
// persisted snapshot upgrades and any other node installs. Install refuses to
// start a new lineage over an existing snapshot unless forced.
func enterLifecycle(ctx context.Context, controller *lifecycle.Controller, snapshots stable.SnapshotStore, mode string, initializer types.Principal, force bool) error {
	var exists bool
	if mode == ModeAuto || mode == ModeInstall {
		var err error
		if exists, err = snapshots.Exists(ctx); err != nil {
			return fmt.Errorf("failed to probe stable storage: %w", err)
		}
	}

	if mode == ModeAuto {
		mode = ModeInstall
		if exists {
			mode = ModeUpgrade
		}
		logger.Info("Resolved lifecycle mode", "mode", mode)
	}

	switch mode {
	case ModeInstall:
		if exists {
			if !force {
				return fmt.Errorf("%w: use --mode upgrade, or --force-install to discard it", ErrLineageExists)
			}
			logger.Warn("Force install: the persisted authorized set will be replaced on the next pre-upgrade")
		}
		if err := initializer.Validate(); err != nil {
			return fmt.Errorf("install requires an initializer principal: %w", err)
		}
		return controller.Init(initializer)
	case ModeUpgrade:
		return controller.PostUpgrade(ctx)
	default:
		return fmt.Errorf("unknown mode %q (want %s, %s or %s)", mode, ModeAuto, ModeInstall, ModeUpgrade)
	}
}

func GetNATSConnection(cfg *config.AppConfig) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("guardkv-" + cfg.NodeName)}
	if cfg.NATs.Username != "" || cfg.NATs.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.NATs.Username, cfg.NATs.Password))
	}
	if cfg.Environment == constant.EnvProduction {
		opts = append(opts,
			nats.ClientCert(filepath.Join(".", "certs", "client-cert.pem"), filepath.Join(".", "certs", "client-key.pem")),
			nats.RootCAs(filepath.Join(".", "certs", "rootCA.pem")),
		)
	}
	return nats.Connect(cfg.NATs.URL, opts...)
}
