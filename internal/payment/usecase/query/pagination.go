package query

const (
	defaultLimit = 10
	maxLimit     = 100
)

// page clamps limit to [1, maxLimit] and offset to >= 0
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
