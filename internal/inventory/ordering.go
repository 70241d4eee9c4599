package inventory

import (
	"gorm.io/gorm/clause"
)

func lockForUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// fefoOrder sorts expiring batches first. Portable across postgres and the
// sqlite test driver, neither of which agree on NULLS LAST syntax.
const fefoOrder = "CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END, expires_at ASC"
