// internal/services/helpers_test.go
package services

import (
	"github.com/netwarden/backend/internal/utils"
)

func paginationDefaults() utils.PaginationParams {
	return utils.PaginationParams{
		Page:  1,
		Limit: 20,
		Sort:  "created_at",
		Order: "desc",
	}
}
