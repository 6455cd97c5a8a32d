package inspect

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RenderStores writes one line per store.
func RenderStores(w io.Writer, stores []StoreInfo) {
	if len(stores) == 0 {
		fmt.Fprintln(w, DimStyle.Render("no stores"))
		return
	}

	nameWidth := len("STORE")
	for _, s := range stores {
		nameWidth = max(nameWidth, len(s.Name))
	}

	fmt.Fprintln(w, HeaderStyle.Render(fmt.Sprintf("  %-*s  %7s", nameWidth, "STORE", "ENTRIES")))
	for _, s := range stores {
		marker := DimStyle.Render(StaleChar)
		if s.Current {
			marker = SuccessStyle.Render(CurrentChar)
		}
		fmt.Fprintf(w, "%s %-*s  %7d\n", marker, nameWidth, s.Name, s.Entries)
	}
}

// RenderEntries writes one line per entry, highlighting matched key
// characters. Keys are truncated to fit width.
func RenderEntries(w io.Writer, matches []EntryMatch, width int, now time.Time) {
	if len(matches) == 0 {
		fmt.Fprintln(w, DimStyle.Render("no entries"))
		return
	}

	// status, size, age and separators
	const fixed = 3 + 2 + 8 + 2 + 6 + 2
	keyWidth := max(width-fixed, 20)

	for _, m := range matches {
		status := statusStyle(m.Status).Render(fmt.Sprintf("%3d", m.Status))
		size := SubtleStyle.Render(fmt.Sprintf("%8s", formatSize(m.Size)))
		age := DimStyle.Render(fmt.Sprintf("%6s", formatAge(now.Sub(m.StoredAt))))
		fmt.Fprintf(w, "%s  %s  %s  %s\n", status, size, age, highlight(m.Key, m.MatchedIndexes, keyWidth))
	}
}

// highlight renders key with the matched byte positions styled, cut to width.
func highlight(key string, matched []int, width int) string {
	truncated := false
	if len(key) > width {
		key = key[:width-1]
		truncated = true
	}

	hit := make(map[int]bool, len(matched))
	for _, i := range matched {
		hit[i] = true
	}

	var b strings.Builder
	for i, r := range key {
		if hit[i] {
			b.WriteString(MatchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	if truncated {
		b.WriteString(DimStyle.Render("…"))
	}
	return b.String()
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
