// Package repository implements per-type CRUD, queries and snapshot based
// transactions over a kvstore.Store.
//
// Each entity type lives in its own subtree; every entity is one leaf named
// by its id whose value is the codec encoding of the entity. Queries load
// the whole subtree and are evaluated in memory by package spec.
//
// Transactions are rollback points, not isolation: Begin exports the
// subtree, Rollback imports it back. Writes made between the two are
// visible to every reader of the store.
package repository
