// Package changelog records entity mutations as a hash-chained, in-memory
// trail that can be verified for tampering.
package changelog
