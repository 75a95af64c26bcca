// Package driver provides a uniform record-set interface over database/sql,
// the way the teacher's consumer.SQLStore and store-sqlite packages wrap
// database/sql for their own persistence needs. sqlstore/store depends only
// on Connection and RecordSet; it never imports database/sql or a specific
// driver directly.
package driver
