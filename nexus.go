// Package nexus provides the minimal public API for embedding the
// database in a Go program: open a data directory, run Cypher-subset
// queries against it, and read back typed result sets.
//
// Most callers only need Open and Engine.Run/Engine.Query. Multi-statement
// transactions, custom procedures, and lower-level access go through the
// returned *Engine directly.
package nexus

import (
	"github.com/nexusdb/nexus/internal/engine"
	"github.com/nexusdb/nexus/internal/executor"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/value"
)

// Core types for embedding Nexus
type (
	Engine    = engine.Engine
	Tx        = engine.Tx
	Options   = engine.Options
	ResultSet = executor.ResultSet
	NodeView  = executor.NodeView
	RelView   = executor.RelView
	PathView  = executor.PathView
	Value     = value.Value
	Error     = nexuserr.Error
	ErrorKind = nexuserr.Kind
)

// Error kind constants (spec §6.2's error-envelope taxonomy)
const (
	KindSyntax             = nexuserr.KindSyntax
	KindPlan               = nexuserr.KindPlan
	KindType               = nexuserr.KindType
	KindNumericOverflow    = nexuserr.KindNumericOverflow
	KindDivisionByZero     = nexuserr.KindDivisionByZero
	KindNotFound           = nexuserr.KindNotFound
	KindConstraintViolated = nexuserr.KindConstraintViolated
	KindAuthentication     = nexuserr.KindAuthentication
	KindPermission         = nexuserr.KindPermission
	KindTimeout            = nexuserr.KindTimeout
	KindCancelled          = nexuserr.KindCancelled
	KindValidation         = nexuserr.KindValidation
	KindStorage            = nexuserr.KindStorage
	KindInternal           = nexuserr.KindInternal
)

// DefaultPageCacheMB is the page cache size Open uses when Options is
// left at its zero value.
const DefaultPageCacheMB = engine.DefaultPageCacheMB

// Open opens (creating if necessary) a Nexus database rooted at dataDir.
func Open(dataDir string, opts Options) (*Engine, error) {
	return engine.Open(dataDir, opts)
}
