package catchup

// An InitializationError is returned when a catch-up component is constructed
// with invalid or missing arguments. It occurs before any lease traffic.
type InitializationError struct {
	Err error
}

// Error returns the error message.
func (e InitializationError) Error() string {
	return "initializing catch-up: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e InitializationError) Unwrap() error {
	return e.Err
}

// An AggregationError is returned when an aggregator fails while processing a
// batch. The cursor advance for that batch is aborted; updates already stored
// by earlier subscriptions within the same batch are not rolled back.
type AggregationError struct {
	Tag string
	Err error
}

// Error returns the error message.
func (e AggregationError) Error() string {
	return "aggregating batch (tag " + e.Tag + "): " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e AggregationError) Unwrap() error {
	return e.Err
}

// A QuerySourceError is returned when a stream query fails. The cursor is not
// advanced past unqueried data.
type QuerySourceError struct {
	Err error
}

// Error returns the error message.
func (e QuerySourceError) Error() string {
	return "querying stream: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e QuerySourceError) Unwrap() error {
	return e.Err
}

// A PersistenceError is returned when a fetch-and-save update fails. The
// update is discarded and the prior stored value is unchanged.
type PersistenceError struct {
	ID  any
	Err error
}

// Error returns the error message.
func (e PersistenceError) Error() string {
	return "persisting state: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e PersistenceError) Unwrap() error {
	return e.Err
}
