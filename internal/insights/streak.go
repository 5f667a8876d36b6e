package insights

import (
	"sort"
	"time"

	"decylo/internal/domain"
)

// ActivityDates returns the distinct calendar days, in loc, on which the user
// created a decision, committed to one, or logged an outcome.
func ActivityDates(decisions []domain.Decision, outcomes []domain.Outcome, loc *time.Location) []string {
	seen := map[string]bool{}
	add := func(t time.Time) {
		if !t.IsZero() {
			seen[t.In(loc).Format(domain.DateLayout)] = true
		}
	}
	for _, d := range decisions {
		add(d.CreatedAt)
		if d.DecidedAt != nil {
			add(*d.DecidedAt)
		}
	}
	for _, o := range outcomes {
		add(o.CompletedAt)
	}
	out := make([]string, 0, len(seen))
	for day := range seen {
		out = append(out, day)
	}
	sort.Strings(out)
	return out
}

// Streak counts consecutive active days ending today. When today has no
// activity yet the streak may still end yesterday.
func Streak(dates []string, today time.Time) int {
	active := make(map[string]bool, len(dates))
	for _, d := range dates {
		active[d] = true
	}
	day := today
	if !active[day.Format(domain.DateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for active[day.Format(domain.DateLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}
