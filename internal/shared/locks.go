package shared

import "fmt"

// RecalcLockKey builds the redis key guarding balance recalculation of a period.
func RecalcLockKey(periodID int64) string {
	return fmt.Sprintf("ledger:period:%d:recalc:lock", periodID)
}
