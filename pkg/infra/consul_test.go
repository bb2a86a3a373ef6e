package infra

import (
	"testing"
	"time"

	"github.com/fystack/guardkv/pkg/config"
	"github.com/fystack/guardkv/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsulClientConfig(t *testing.T) {
	cfg := &config.ConsulConfig{
		Address:  "consul.internal:8500",
		Username: "guard",
		Password: "secret",
		Token:    "token",
	}

	t.Run("production sends credentials", func(t *testing.T) {
		c := ConsulClientConfig(constant.EnvProduction, cfg)
		assert.Equal(t, "consul.internal:8500", c.Address)
		assert.Equal(t, "token", c.Token)
		require.NotNil(t, c.HttpAuth)
		assert.Equal(t, "guard", c.HttpAuth.Username)
		assert.Equal(t, 10*time.Second, c.WaitTime)
	})

	t.Run("development skips credentials", func(t *testing.T) {
		c := ConsulClientConfig(constant.EnvDevelopment, cfg)
		assert.Equal(t, "consul.internal:8500", c.Address)
		assert.Empty(t, c.Token)
		assert.Nil(t, c.HttpAuth)
	})

	t.Run("empty address keeps default", func(t *testing.T) {
		c := ConsulClientConfig(constant.EnvDevelopment, &config.ConsulConfig{})
		assert.NotEmpty(t, c.Address)
	})
}
