package preset

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultRecentLimit is the number of presets kept in the recent index
const DefaultRecentLimit = 10

// RecentIndex maps preset names to file paths, oldest first.
// The newest entry is the most recently saved or opened preset.
type RecentIndex struct {
	Presets *orderedmap.OrderedMap[string, string] `json:"Presets"`
}

// NewRecentIndex creates an empty index
func NewRecentIndex() *RecentIndex {
	return &RecentIndex{Presets: orderedmap.New[string, string]()}
}

// Len returns the number of entries
func (r *RecentIndex) Len() int {
	return r.Presets.Len()
}

// Touch moves name to the most-recent position, pointing at path.
// Entries beyond limit are evicted from the oldest end and returned.
func (r *RecentIndex) Touch(name, path string, limit int) []string {
	r.Presets.Delete(name)
	r.Presets.Set(name, path)

	var evicted []string
	for limit > 0 && r.Presets.Len() > limit {
		oldest := r.Presets.Oldest()
		r.Presets.Delete(oldest.Key)
		evicted = append(evicted, oldest.Key)
	}
	return evicted
}

// Newest returns the most recent entry
func (r *RecentIndex) Newest() (name, path string, ok bool) {
	pair := r.Presets.Newest()
	if pair == nil {
		return "", "", false
	}
	return pair.Key, pair.Value, true
}

// Path returns the file recorded for name
func (r *RecentIndex) Path(name string) (string, bool) {
	return r.Presets.Get(name)
}

// Remove drops name from the index
func (r *RecentIndex) Remove(name string) bool {
	_, ok := r.Presets.Delete(name)
	return ok
}

// Entry is a single name/path pair of the index
type Entry struct {
	Name string
	Path string
}

// Entries lists the index oldest first
func (r *RecentIndex) Entries() []Entry {
	entries := make([]Entry, 0, r.Presets.Len())
	for pair := r.Presets.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{Name: pair.Key, Path: pair.Value})
	}
	return entries
}

// prune removes entries for which exists reports false and returns their names
func (r *RecentIndex) prune(exists func(path string) bool) []string {
	var stale []string
	for pair := r.Presets.Oldest(); pair != nil; pair = pair.Next() {
		if !exists(pair.Value) {
			stale = append(stale, pair.Key)
		}
	}
	for _, name := range stale {
		r.Presets.Delete(name)
	}
	return stale
}
