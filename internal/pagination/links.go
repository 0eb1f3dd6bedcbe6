package pagination

import "strconv"

const (
	endSize = 1 // pages always shown at each end
	midSize = 2 // pages shown on each side of the current one
)

type Link struct {
	Page    int
	Label   string
	Current bool
	Gap     bool
	Rel     string // "prev", "next" or ""
}

// Links builds numbered pagination controls with prev/next and gaps. Nothing
// is returned when there is at most one page.
func Links(current, total int) []Link {
	if total < 2 {
		return nil
	}

	var links []Link
	if current > 1 && current <= total {
		links = append(links, Link{Page: current - 1, Label: "« Previous", Rel: "prev"})
	}

	gap := false
	for n := 1; n <= total; n++ {
		show := n <= endSize ||
			n > total-endSize ||
			(n >= current-midSize && n <= current+midSize)
		if !show {
			if !gap {
				links = append(links, Link{Label: "…", Gap: true})
				gap = true
			}
			continue
		}
		gap = false
		links = append(links, Link{Page: n, Label: strconv.Itoa(n), Current: n == current})
	}

	if current < total {
		links = append(links, Link{Page: current + 1, Label: "Next »", Rel: "next"})
	}
	return links
}
