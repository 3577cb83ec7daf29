package normalize

// DuplicateThreshold is the similarity at or above which two names in the same
// location bucket are treated as one pharmacy.
const DuplicateThreshold = 0.8

// Similarity scores two names in [0,1]. Both names are normalized with Name;
// each character of a is matched against an unused equal character of b within
// one position of its index, and the match count is divided by the longer
// length. Either name empty scores 0.
func Similarity(a, b string) float64 {
	a, b = Name(a), Name(b)
	if a == "" || b == "" {
		return 0
	}

	used := make([]bool, len(b))
	matches := 0
	for i := 0; i < len(a); i++ {
		lo, hi := max(0, i-1), min(len(b), i+2)
		for j := lo; j < hi; j++ {
			if !used[j] && b[j] == a[i] {
				used[j] = true
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(max(len(a), len(b)))
}
