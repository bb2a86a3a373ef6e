package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/urfave/cli/v3"
)

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			Value:   "nats://127.0.0.1:4222",
			Sources: cli.EnvVars("NATS_URL"),
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Subject prefix the nodes serve under",
			Value: "guardkv",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
			Value: 3 * time.Second,
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "Caller private key file (.age files are decrypted)",
			Value:   "caller.key",
		},
		&cli.StringFlag{
			Name:    "algorithm",
			Aliases: []string{"a"},
			Usage:   "Caller key algorithm: ed25519 or p256",
			Value:   string(types.KeyTypeEd25519),
		},
		&cli.StringFlag{
			Name:  "kms-key-id",
			Usage: "Sign with this AWS KMS key instead of a key file (p256 only)",
		},
		&cli.StringFlag{
			Name:    "kms-region",
			Usage:   "AWS region of the KMS key",
			Sources: cli.EnvVars("AWS_REGION"),
		},
		&cli.StringFlag{
			Name:  "kms-endpoint",
			Usage: "Custom KMS endpoint (e.g. LocalStack)",
		},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "guardkv-cli",
		Usage: "guardkv caller and operator tools",
		Commands: []*cli.Command{
			{
				Name:  "generate-identity",
				Usage: "Generate a caller keypair and print its principal",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Value:   "caller",
						Usage:   "Base name for the key and identity files",
					},
					&cli.StringFlag{
						Name:    "algorithm",
						Aliases: []string{"a"},
						Value:   string(types.KeyTypeEd25519),
						Usage:   "Key algorithm: ed25519 or p256",
					},
					&cli.StringFlag{
						Name:    "output-dir",
						Aliases: []string{"o"},
						Value:   ".",
						Usage:   "Output directory for identity files",
					},
					&cli.BoolFlag{
						Name:    "encrypt",
						Aliases: []string{"e"},
						Usage:   "Encrypt private key with Age (recommended for production)",
					},
					&cli.BoolFlag{
						Name:    "overwrite",
						Aliases: []string{"f"},
						Usage:   "Overwrite identity files if they already exist",
					},
				},
				Action: generateIdentity,
			},
			{
				Name:  "store",
				Usage: "Store a blob at a path",
				Flags: append(clientFlags(),
					&cli.StringFlag{Name: "path", Required: true, Usage: "Blob path"},
					&cli.StringFlag{Name: "data", Usage: "Blob contents"},
					&cli.StringFlag{Name: "file", Usage: "Read blob contents from this file"},
				),
				Action: storeBlob,
			},
			{
				Name:  "retrieve",
				Usage: "Retrieve the blob at a path",
				Flags: append(clientFlags(),
					&cli.StringFlag{Name: "path", Required: true, Usage: "Blob path"},
					&cli.StringFlag{Name: "output", Usage: "Write contents to this file instead of stdout"},
				),
				Action: retrieveBlob,
			},
			{
				Name:  "add-user",
				Usage: "Authorize another principal to mutate the store",
				Flags: append(clientFlags(),
					&cli.StringFlag{Name: "principal", Required: true, Usage: "Principal to authorize"},
				),
				Action: addUser,
			},
			{
				Name:  "snapshot",
				Usage: "Inspect the persisted authorized set",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Decode the snapshot record of a stopped node's badger store",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "db",
								Usage:    "Path to the node's badger directory",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "name",
								Aliases:  []string{"n"},
								Usage:    "Node name (salts the badger key)",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "key",
								Usage: "Stable storage key of the record",
								Value: constant.DefaultSnapshotKey,
							},
							&cli.StringFlag{
								Name:    "badger-password",
								Usage:   "Badger password (prompted when empty)",
								Sources: cli.EnvVars("BADGER_PASSWORD"),
							},
						},
						Action: showSnapshot,
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
