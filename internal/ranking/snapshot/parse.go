package snapshot

import "strconv"

func parseProductID(member string) (int64, bool) {
	id, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
