package kvstore

import (
	"fmt"
	"strings"

	"github.com/fystack/guardkv/pkg/infra"
	"github.com/hashicorp/consul/api"
)

// ConsulKVStore keeps values under a key prefix in Consul's KV store, for nodes
// whose local disk does not survive a replacement.
type ConsulKVStore struct {
	consulKV infra.ConsulKV
	prefix   string
}

func NewConsulKVStore(consulKV infra.ConsulKV, prefix string) *ConsulKVStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ConsulKVStore{consulKV: consulKV, prefix: prefix}
}

func (c *ConsulKVStore) composeKey(key string) string {
	return c.prefix + key
}

func (c *ConsulKVStore) Put(key string, value []byte) error {
	pair := &api.KVPair{
		Key:   c.composeKey(key),
		Value: value,
	}
	if _, err := c.consulKV.Put(pair, nil); err != nil {
		return fmt.Errorf("failed to put %s to consul: %w", key, err)
	}
	return nil
}

func (c *ConsulKVStore) Get(key string) ([]byte, error) {
	pair, _, err := c.consulKV.Get(c.composeKey(key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from consul: %w", key, err)
	}
	if pair == nil {
		return nil, ErrKeyNotFound
	}
	return pair.Value, nil
}

func (c *ConsulKVStore) Delete(key string) error {
	if _, err := c.consulKV.Delete(c.composeKey(key), nil); err != nil {
		return fmt.Errorf("failed to delete %s from consul: %w", key, err)
	}
	return nil
}

// Close is a no-op; the consul client is owned by the caller.
func (c *ConsulKVStore) Close() error {
	return nil
}
