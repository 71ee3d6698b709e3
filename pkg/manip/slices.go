package manip

func SliceContains(ss []string, findStr string) bool {
	for _, s := range ss {
		if s == findStr {
			return true
		}
	}
	return false
}

func DowncastSlice(ss []string) (result []interface{}) {
	result = make([]interface{}, len(ss))
	for i, s := range ss {
		result[i] = s
	}
	return
}
