// Package store holds the authoritative record set.
//
// Store is the interface used by the generator and the query API. Two
// backends implement it:
//
//   - Memory: a mutex-guarded slice plus id index. Random selection is O(1),
//     queries copy and sort the matching rows.
//   - SQLite: a single-connection database/sql handle (in-memory by default),
//     with every select-and-act pair run inside one transaction.
//
// Every mutation is atomic with respect to every other mutation. Delete and
// mutate on an empty store return ok == false and change nothing.
package store
