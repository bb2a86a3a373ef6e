package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fystack/guardkv/pkg/common/errors"
	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/security"
	"github.com/fystack/guardkv/pkg/stable"
	"github.com/urfave/cli/v3"
)

func showSnapshot(ctx context.Context, c *cli.Command) error {
	password := c.String("badger-password")
	if password == "" {
		var err error
		if password, err = readSecret("Enter Badger DB password: "); err != nil {
			return err
		}
	}
	return printSnapshot(os.Stdout, c.String("db"), c.String("name"), c.String("key"), []byte(password))
}

// printSnapshot decodes and verifies the snapshot record and writes it as JSON.
func printSnapshot(w io.Writer, dbPath, nodeName, key string, password []byte) error {
	if _, err := os.Stat(dbPath); err != nil {
		return errors.Wrapf(err, "badger directory %s", dbPath)
	}

	dbKey, err := kvstore.DeriveEncryptionKey(password, nodeName)
	security.ZeroBytes(password)
	if err != nil {
		return err
	}
	defer security.ZeroBytes(dbKey)

	kv, err := kvstore.NewBadgerKVStore(dbPath, dbKey)
	if err != nil {
		return errors.Wrap(err, "failed to open badger store (is the node still running?)")
	}
	defer kv.Close()

	data, err := kv.Get(key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return stable.ErrSnapshotNotFound
	}
	if err != nil {
		return err
	}

	record, err := stable.DecodeRecord(data)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
