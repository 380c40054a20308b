//go:build sqlite

package storage

func openSQLite(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
