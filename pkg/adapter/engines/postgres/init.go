package postgres

import (
	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/adapter/registry"
)

func init() {
	// Register the PostgreSQL relational adapter
	registry.Register(core.EnginePostgres, New)
}
