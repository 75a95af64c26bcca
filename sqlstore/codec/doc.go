// Package codec implements spec §4.5: encoding and decoding of Values
// (FloatVector, StringVector, and recursive LinkVector) to and from
// Postgres-style array literals, VUID allocation, and cascading delete of
// LinkVector graphs.
package codec
