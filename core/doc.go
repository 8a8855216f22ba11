// Package core contains the ingestion domain contracts, entities, and
// orchestration logic. Storage, transport, and linking adapters depend on this
// package; core must not depend on any of them.
package core
