package scan

// Share of the overall progress bar given to each phase.
const (
	ListingWeight  = 0.2
	LocatingWeight = 1 - ListingWeight
)

// progress folds the two phase-local ratios into one overall fraction that
// never decreases and stays within [0, 1].
type progress struct {
	last float64
}

// listing records phase one progress after pages of maxPages were fetched.
func (p *progress) listing(pages, maxPages int) float64 {
	if maxPages <= 0 {
		maxPages = 1
	}

	return p.advance(float64(pages) / float64(maxPages) * ListingWeight)
}

// locating records phase two progress after located of total servers.
func (p *progress) locating(located, total int) float64 {
	if total <= 0 {
		total = 1
	}

	return p.advance(ListingWeight + float64(located)/float64(total)*LocatingWeight)
}

// done pins the fraction to 1.
func (p *progress) done() float64 {
	return p.advance(1)
}

func (p *progress) advance(fraction float64) float64 {
	fraction = max(0, min(1, fraction))
	if fraction > p.last {
		p.last = fraction
	}

	return p.last
}
