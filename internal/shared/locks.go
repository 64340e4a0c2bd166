package shared

import "fmt"

// PeriodLockKey names the advisory lock serialising period creation for a business.
func PeriodLockKey(businessID int64) string {
	return fmt.Sprintf("ledger:business:%d:periods", businessID)
}

// AccountTreeLockKey names the advisory lock serialising re-parenting within a business chart.
func AccountTreeLockKey(businessID int64) string {
	return fmt.Sprintf("ledger:business:%d:accounts", businessID)
}
