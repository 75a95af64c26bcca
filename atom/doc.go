// Package atom defines the value types of the typed hypergraph: Nodes,
// Links, Values, TruthValues, Valuations and Spaces. Types in this package
// carry no persistence behavior; they are the vocabulary that sqlstore
// serializes and hypergraph.Container holds in memory.
package atom
