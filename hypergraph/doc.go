// Package hypergraph defines the interface that sqlstore's entity store
// and loader depend on for materializing loaded atoms into a live
// in-memory hypergraph, plus a reference implementation good enough to
// drive the store's test suite. The spec treats the in-memory hypergraph
// container as an opaque external collaborator; this package is the
// concrete stand-in gazette-core's consumertest package plays for
// consumer.Store.
package hypergraph
