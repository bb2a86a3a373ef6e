package kvstore

import (
	"bytes"
	"testing"

	"github.com/fystack/guardkv/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBadgerLogger_TagsDatabaseAndHidesInfo(t *testing.T) {
	previous, level := logger.Log, zerolog.GlobalLevel()
	t.Cleanup(func() {
		logger.Log = previous
		zerolog.SetGlobalLevel(level)
	})

	var buf bytes.Buffer
	logger.Log = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := newBadgerLogger("/data/db/node0")
	l.Infof("Replaying file id: %d\n", 3)
	l.Debugf("compaction detail")
	assert.Empty(t, buf.String())

	l.Warningf("value log %s truncated\n", "000001.vlog")
	out := buf.String()
	assert.Contains(t, out, `"message":"[BADGER] value log 000001.vlog truncated"`)
	assert.Contains(t, out, `"db":"/data/db/node0"`)

	buf.Reset()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	l.Infof("Replaying file id: %d", 3)
	assert.Contains(t, buf.String(), "[BADGER] Replaying file id: 3")
}
