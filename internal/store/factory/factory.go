package factory

import (
	"errors"
	"strings"

	"github.com/loykin/crashwatch/internal/store"
	"github.com/loykin/crashwatch/internal/store/file"
	pg "github.com/loykin/crashwatch/internal/store/postgres"
	sq "github.com/loykin/crashwatch/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - sqlite:   "sqlite://<path>" or "sqlite://:memory:"
//   - file:     "file://<path>" or a bare filepath (one name per line)
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	if strings.HasPrefix(ld, "file://") {
		return file.New(d[len("file://"):])
	}
	if strings.Contains(d, "://") {
		return nil, errors.New("unsupported registry DSN: " + d)
	}
	// default to a line file
	return file.New(d)
}
