// Package polystore is a multi-tenant data access gateway that exposes one
// generic CRUD surface over heterogeneous storage engines.
//
// A request to /api/{tenant}/{entity}/{id} is resolved to the tenant's
// backing store, translated into a native operation by the engine's adapter
// and answered with a uniform JSON envelope. Consumers never learn which
// engine serves them: swapping a tenant from MongoDB to PostgreSQL is a
// routing change, not an API change.
//
// # Architecture
//
// The gateway is four layers:
//
// 1. HTTP surface (pkg/api): generic dispatch routes, middleware, the
// response envelope. A missing record is a success with null data, not a 404.
//
// 2. Tenant resolution (pkg/tenant): maps a tenant id to an engine and a
// tenant-specific connection string. Tenants are isolated by database name
// (MongoDB, PostgreSQL) or key namespace (Redis).
//
// 3. Connection registry (pkg/gateway): one lazily-connected adapter handle
// per tenant, with single-flight connects and invalidate-on-failure.
//
// 4. Engine adapters (pkg/adapter): the Adapter contract plus one
// implementation per engine, self-registered through the adapter registry.
//
// # Quick Start
//
// Run the gateway against a local MongoDB:
//
//	export MONGO_URI=mongodb://localhost:27017
//	polystore serve --config examples/config.yaml
//
// Then speak generic CRUD:
//
//	curl -X POST localhost:8080/api/acme/users -d '{"name":"Ada"}'
//	curl localhost:8080/api/acme/users/6864a23340b2d24f3ba80456
//	curl -X DELETE localhost:8080/api/acme/users/6864a23340b2d24f3ba80456
//
// # Adding an Engine
//
// Implement core.Adapter and register a factory from the package's init:
//
//	func init() {
//		registry.Register("cassandra", New)
//	}
//
// Blank-import the package from cmd/polystore and the engine becomes
// routable.
package polystore
