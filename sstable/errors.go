package sstable

import "fmt"

// WriteError wraps any filesystem or I/O fault encountered during an
// append, fsync, truncate, or rename against one of the writer's
// files. It is always fatal to the writer it came from.
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sstable: write error on %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func writeErr(path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &WriteError{Path: path, Cause: cause}
}

// accumulate runs step, chaining its error (if any) onto prev so every
// step in a multi-step pipeline executes regardless of earlier
// failures. This is the "result-accumulating function" the commit
// pipeline uses in place of an exception-based accumulator: each
// sink's prepare/commit/abort call happens no matter what came before,
// and every failure is preserved in the returned chain.
func accumulate(prev error, step func() error) error {
	err := step()
	if err == nil {
		return prev
	}
	if prev == nil {
		return err
	}
	return fmt.Errorf("%w; %v", prev, err)
}
