package infra

import (
	"fmt"
	"time"

	"github.com/fystack/guardkv/pkg/config"
	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/hashicorp/consul/api"
)

type ConsulKV interface {
	Put(kv *api.KVPair, options *api.WriteOptions) (*api.WriteMeta, error)
	Get(key string, options *api.QueryOptions) (*api.KVPair, *api.QueryMeta, error)
	Delete(key string, options *api.WriteOptions) (*api.WriteMeta, error)
	List(prefix string, options *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error)
}

// ConsulClientConfig builds the api config; credentials are only sent in production.
func ConsulClientConfig(environment string, cfg *config.ConsulConfig) *api.Config {
	consulConfig := api.DefaultConfig()
	if environment == constant.EnvProduction {
		consulConfig.Token = cfg.Token
		if cfg.Username != "" || cfg.Password != "" {
			consulConfig.HttpAuth = &api.HttpBasicAuth{
				Username: cfg.Username,
				Password: cfg.Password,
			}
		}
	}

	if cfg.Address != "" {
		consulConfig.Address = cfg.Address
	}
	consulConfig.WaitTime = 10 * time.Second
	return consulConfig
}

// GetConsulClient connects to Consul and checks that a leader is reachable.
func GetConsulClient(environment string, cfg *config.ConsulConfig) (*api.Client, error) {
	consulConfig := ConsulClientConfig(environment, cfg)

	logger.Info("Consul config",
		"environment", environment,
		"address", consulConfig.Address,
		"wait_time", consulConfig.WaitTime,
		"token_length", len(consulConfig.Token),
		"http_auth", consulConfig.HttpAuth != nil,
	)

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}
	return client, nil
}
