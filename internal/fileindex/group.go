package fileindex

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
)

// Grouping is the result of clustering discovered files.
type Grouping struct {
	// All holds every cluster found, newest anchor first.
	All []Batch
	// Complete holds the subset of All with every required category present,
	// same order. Only these feed downstream processing.
	Complete []Batch
}

// Group partitions files into batches. The input order does not matter: files
// are sorted by embedded timestamp (ties broken by path for determinism)
// before the window walk. Within one window, a later file of an already-seen
// category replaces the earlier member, matching the "newest export wins"
// behavior of the session downloader.
func Group(files []SourceFile) Grouping {
	sorted := append([]SourceFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Path < sorted[j].Path
	})

	var batches []Batch
	var cur *Batch
	for _, f := range sorted {
		if cur == nil || f.Timestamp.Sub(cur.Anchor) > BatchWindow {
			batches = append(batches, Batch{Anchor: f.Timestamp, Members: map[Category]SourceFile{}})
			cur = &batches[len(batches)-1]
		}
		if prev, ok := cur.Members[f.Category]; ok {
			log.Printf("fileindex: group %s: replacing %s with newer %s",
				cur.Anchor.Format("2006-01-02-15"), filepath.Base(prev.Path), filepath.Base(f.Path))
		}
		cur.Members[f.Category] = f
	}

	for i := range batches {
		b := &batches[i]
		maxTS := b.Anchor
		sameHour := true
		for _, m := range b.Members {
			if m.Timestamp.After(maxTS) {
				maxTS = m.Timestamp
			}
			if !m.Timestamp.Equal(b.Anchor) {
				sameHour = false
			}
		}
		b.GroupID = fmt.Sprintf("%s_%02d", b.Anchor.Format("2006-01-02-15"), maxTS.Hour())
		log.Printf("fileindex: group %s: members=%d same_hour=%v complete=%v",
			b.GroupID, len(b.Members), sameHour, b.Complete())
	}

	// Newest anchor first for the public listing.
	for i, j := 0, len(batches)-1; i < j; i, j = i+1, j-1 {
		batches[i], batches[j] = batches[j], batches[i]
	}

	g := Grouping{All: batches}
	for _, b := range batches {
		if b.Complete() {
			g.Complete = append(g.Complete, b)
		}
	}
	return g
}
