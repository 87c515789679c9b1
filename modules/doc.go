// Package modules defines the shared entity types, wire contracts, and
// collaborator interfaces (MetadataStore, ChunkStore) that the mn and sn
// packages are built against. Nothing in this package depends on mn or sn,
// so it is safe for both to import it.
package modules
