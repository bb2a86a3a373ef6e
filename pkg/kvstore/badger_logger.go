package kvstore

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/guardkv/pkg/logger"
)

// badgerLogger routes badger output through the node logger, tagged with the
// database directory. INFO and DEBUG only show with --debug.
type badgerLogger struct {
	dir string
}

func newBadgerLogger(dir string) badger.Logger {
	return &badgerLogger{dir: dir}
}

func (l *badgerLogger) message(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error("[BADGER] "+l.message(format, args...), nil, "db", l.dir)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn("[BADGER] "+l.message(format, args...), "db", l.dir)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug("[BADGER] "+l.message(format, args...), "db", l.dir)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug("[BADGER] "+l.message(format, args...), "db", l.dir)
}
