package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fystack/guardkv/pkg/client"
	"github.com/fystack/guardkv/pkg/common/errors"
	"github.com/fystack/guardkv/pkg/messaging"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
)

// newSigner builds a KMS signer when --kms-key-id is set and a key file
// signer otherwise. Encrypted key files prompt for their passphrase.
func newSigner(c *cli.Command) (client.Signer, error) {
	keyType := types.KeyType(c.String("algorithm"))

	if keyID := c.String("kms-key-id"); keyID != "" {
		return client.NewKMSSigner(keyType, client.KMSSignerOptions{
			Region:      c.String("kms-region"),
			KeyID:       keyID,
			EndpointURL: c.String("kms-endpoint"),
		})
	}

	opts := client.LocalSignerOptions{KeyPath: c.String("key")}
	if strings.HasSuffix(opts.KeyPath, ".age") {
		passphrase, err := readSecret("Enter passphrase for " + opts.KeyPath + ": ")
		if err != nil {
			return nil, err
		}
		opts.Password = passphrase
	}
	return client.NewLocalSigner(keyType, opts)
}

func withClient(c *cli.Command, needsSigner bool, fn func(client.GuardClient) error) error {
	var signer client.Signer
	if needsSigner {
		var err error
		if signer, err = newSigner(c); err != nil {
			return errors.Wrap(err, "failed to load signer")
		}
	}

	natsConn, err := nats.Connect(c.String("nats-url"))
	if err != nil {
		return errors.Wrap(err, "failed to connect to NATS")
	}
	defer natsConn.Close()

	retry := messaging.DefaultRetryConfig()
	retry.Timeout = c.Duration("timeout")

	guardClient, err := client.NewGuardClient(client.Options{
		NatsConn:      natsConn,
		Signer:        signer,
		SubjectPrefix: c.String("prefix"),
		Retry:         retry,
	})
	if err != nil {
		return err
	}
	return fn(guardClient)
}

func storeBlob(ctx context.Context, c *cli.Command) error {
	contents := []byte(c.String("data"))
	if file := c.String("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", file)
		}
		contents = data
	}

	return withClient(c, true, func(gc client.GuardClient) error {
		if err := gc.Store(ctx, c.String("path"), contents); err != nil {
			return errors.Wrap(err, "store failed")
		}
		fmt.Printf("✅ Stored %d bytes at %s as %s\n", len(contents), c.String("path"), gc.Principal())
		return nil
	})
}

func retrieveBlob(ctx context.Context, c *cli.Command) error {
	return withClient(c, false, func(gc client.GuardClient) error {
		contents, err := gc.Retrieve(ctx, c.String("path"))
		if err != nil {
			return errors.Wrap(err, "retrieve failed")
		}
		if output := c.String("output"); output != "" {
			return os.WriteFile(output, contents, 0600)
		}
		_, err = os.Stdout.Write(contents)
		return err
	})
}

func addUser(ctx context.Context, c *cli.Command) error {
	principal := types.Principal(c.String("principal"))
	if _, _, err := principal.KeyMaterial(); err != nil {
		return errors.Wrap(err, "invalid principal")
	}

	return withClient(c, true, func(gc client.GuardClient) error {
		if err := gc.AddUser(ctx, principal); err != nil {
			return errors.Wrap(err, "add-user failed")
		}
		fmt.Printf("✅ %s authorized by %s\n", principal, gc.Principal())
		return nil
	})
}
