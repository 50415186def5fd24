package mongodb

import (
	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/adapter/registry"
)

func init() {
	// Register the MongoDB document-store adapter
	registry.Register(core.EngineMongoDB, New)
}
