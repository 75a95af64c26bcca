package store

import "github.com/pkg/errors"

// ConnectError wraps a failure to open or acquire a database connection.
type ConnectError struct{ Cause error }

func (e *ConnectError) Error() string { return "store: connect: " + e.Cause.Error() }
func (e *ConnectError) Unwrap() error { return e.Cause }

// SqlExecError wraps a statement the driver rejected.
type SqlExecError struct {
	Stmt  string
	Cause error
}

func (e *SqlExecError) Error() string { return "store: exec: " + e.Cause.Error() }
func (e *SqlExecError) Unwrap() error { return e.Cause }

// SchemaError marks a missing or malformed row, including a LinkVector or
// outgoing reference to a VUID/EID that does not exist.
type SchemaError struct{ Cause error }

func (e *SchemaError) Error() string { return "store: schema: " + e.Cause.Error() }
func (e *SchemaError) Unwrap() error { return e.Cause }

// TypeMapError marks a database row carrying a type name unknown to this
// runtime.
type TypeMapError struct{ Cause error }

func (e *TypeMapError) Error() string { return "store: typemap: " + e.Cause.Error() }
func (e *TypeMapError) Unwrap() error { return e.Cause }

// SizeLimitError marks an entity exceeding the name or outgoing-set cap.
type SizeLimitError struct{ Cause error }

func (e *SizeLimitError) Error() string { return "store: size limit: " + e.Cause.Error() }
func (e *SizeLimitError) Unwrap() error { return e.Cause }

// IntegrityError marks an internal invariant violation, such as loading a
// link whose child row is absent.
type IntegrityError struct{ Cause error }

func (e *IntegrityError) Error() string { return "store: integrity: " + e.Cause.Error() }
func (e *IntegrityError) Unwrap() error { return e.Cause }

func wrapSizeLimit(format string, args ...interface{}) error {
	return &SizeLimitError{Cause: errors.Errorf(format, args...)}
}

func wrapIntegrity(format string, args ...interface{}) error {
	return &IntegrityError{Cause: errors.Errorf(format, args...)}
}

func wrapSchema(format string, args ...interface{}) error {
	return &SchemaError{Cause: errors.Errorf(format, args...)}
}

func wrapSqlExec(stmt string, err error) error {
	return &SqlExecError{Stmt: stmt, Cause: err}
}
