// Package config provides the preferences consumed by the protocol
// core.
//
// The core never reaches into ambient global state: everything it
// needs (ban list, auto-accept policy, port search policy) is passed
// in as a Preferences value. Two implementations are provided: a
// YAML-backed FileStore that persists across runs, and a MemoryStore
// for tests and embedders with their own settings machinery.
package config
