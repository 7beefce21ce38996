// Package artifact provides concrete core.ArtifactStore backends.
//
// The ArtifactStore interface itself lives in the core package so that
// domain contracts stay central and implementation packages stay cycle
// free. This package ships the in-memory store used by tests, examples
// and single-process runs; durable backends (object stores, databases)
// slot in behind the same interface without touching calling code.
//
// Callers should depend on the core interface rather than the concrete
// types here so persistence can be swapped in tests or production.
package artifact
