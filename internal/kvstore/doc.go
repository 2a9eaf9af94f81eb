// Package kvstore adapts hierarchical key-value stores (Windows registry,
// SQLite file, directory tree, memory) to one path-addressed interface with
// subtree export/import for snapshot-based rollback.
package kvstore
