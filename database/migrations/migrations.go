// Package migrations registers the schema migrations. Each file calls
// migration.Register from init, so a blank import is enough to make them
// visible to `darcho migrate`.
package migrations
