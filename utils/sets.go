package utils

// Union merges ID slices, preserving first-seen order and dropping duplicates
// and empty strings.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Dedup removes duplicates and empty strings, preserving order.
func Dedup(ids []string) []string {
	return Union(ids)
}
