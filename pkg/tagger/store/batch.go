package store

// DefaultBatchSize is the number of rows per multi-row INSERT statement
const DefaultBatchSize = 500

// MaxBatchSize keeps the widest multi-row INSERT (three columns per recipe)
// under SQLite's limit of 32766 bound variables per statement.
const MaxBatchSize = 10000

// Batches calls fn for consecutive [lo, hi) windows of at most size items
func Batches(n, size int, fn func(lo, hi int) error) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}
