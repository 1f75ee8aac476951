package payload

// MinimumAuthorship is the share of non-nil authorship records a group needs
// before a dominant author is attributed.
const MinimumAuthorship = 0.5

// DominantAuthor picks the author with the most records among the images,
// grouping records by network address (by UUID when the address is unknown).
// Ties go to the author seen first. Returns nil when fewer than
// MinimumAuthorship of all records carry an author.
func DominantAuthor(images []Image) *Author {
	var (
		total  int
		counts = make(map[string]int)
		first  = make(map[string]*Author)
		order  []string
	)
	for _, img := range images {
		for _, a := range img.Authors() {
			total++
			if a == nil {
				continue
			}
			k := authorKey(a)
			if _, ok := first[k]; !ok {
				first[k] = a
				order = append(order, k)
			}
			counts[k]++
		}
	}

	authored := 0
	for _, c := range counts {
		authored += c
	}
	if authored == 0 || float64(authored) < float64(total)*MinimumAuthorship {
		return nil
	}

	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return first[best]
}

func authorKey(a *Author) string {
	if a.Address.IsValid() {
		return "ip:" + a.Address.String()
	}
	return "uuid:" + a.UUID
}
