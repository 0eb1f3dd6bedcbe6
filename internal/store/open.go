package store

import "fmt"

const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Open returns the Store for driver. An empty badger path runs in memory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverBadger, "":
		return NewBadgerStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
