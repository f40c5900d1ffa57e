// Package repository provides PostgreSQL data access for ingested papers,
// content chunks, PDF acquisition jobs, and cached search results.
//
// All implementations accept the DBTX interface, so the same repository code
// runs against the connection pool directly or inside a transaction started
// with database.DB.WithTransaction. Methods return domain errors
// (domain.ErrNotFound, domain.ErrAlreadyExists, domain.ErrJobTransition)
// where the condition has business meaning, and wrapped driver errors
// otherwise.
package repository

import (
	"github.com/helixir/paper-discovery-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults clamps limit to [1, maxFilterLimit] and ensures
// offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
