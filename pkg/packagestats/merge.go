package packagestats

import (
	"github.com/matzehuels/pkgpulse/pkg/registry"
	"github.com/matzehuels/pkgpulse/pkg/version"
)

// PrimaryCounts indexes the search source's per-version counts by normalized
// version. When two spellings normalize to the same key the later one wins.
func PrimaryCounts(md *Metadata) map[string]int64 {
	if md == nil {
		return nil
	}
	counts := make(map[string]int64, len(md.Versions))
	for _, v := range md.Versions {
		counts[version.Normalize(v.Version)] = v.Downloads
	}
	return counts
}

// MergeDownloads fills Downloads on every record that does not have a count
// yet and whose normalized version appears in counts. Records that already
// carry a count are left alone, so a later pass never overrides an earlier
// one. It returns the raw versions still missing a count, in record order.
func MergeDownloads(records []registry.VersionRecord, counts map[string]int64) (missing []string) {
	for i := range records {
		if records[i].Downloads != nil {
			continue
		}
		if n, ok := counts[version.Normalize(records[i].Version)]; ok {
			records[i].Downloads = &n
			continue
		}
		missing = append(missing, records[i].Version)
	}
	return missing
}

// DedupByKey keeps the first record for each normalized version.
func DedupByKey(records []registry.VersionRecord) []registry.VersionRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		key := version.Normalize(r.Version)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
