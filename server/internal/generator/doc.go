// Package generator drives the record store with a randomized workload.
//
// Warmup inserts an initial dataset synchronously. Run then applies a batch
// of [0, MaxOps) operations on every tick, each one drawn by weight from
// insert, mutate and delete, and hands every applied mutation to the
// Broadcaster in the order it hit the store.
//
// A store error ends Run with an error naming the failed operation. The
// process treats it as fatal; there is no retry.
package generator
