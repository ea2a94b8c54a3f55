// Package storage provides the selection journal: a durable record of
// proxy selections and reported traffic outcomes. Two backends are
// available, an in-memory backend for tests and ephemeral deployments and
// a SQLite backend for single-instance deployments that need history to
// survive restarts.
package storage
