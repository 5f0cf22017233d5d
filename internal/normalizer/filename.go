package normalizer

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	dateSegmentRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(t[\d-]+)?$`)
	pageSegmentRegex = regexp.MustCompile(`^(p|page|pagina)?\d+$`)
)

// CategoryFromFilename reads the category hint scrapers encode in feed
// file names: "carrefour_lactate-si-oua_2024-05-01.jsonl" -> "lactate si oua".
// The shop prefix, dates and page numbers are dropped.
func CategoryFromFilename(shop, file string) string {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(file)))
	if base == "" || base == "." {
		return ""
	}
	for _, ext := range []string{".gz", ".jsonl", ".ndjson", ".json"} {
		base = strings.TrimSuffix(base, ext)
	}

	var kept []string
	for i, seg := range strings.Split(base, "_") {
		if seg == "" || (i == 0 && seg == strings.ToLower(shop)) {
			continue
		}
		if dateSegmentRegex.MatchString(seg) || pageSegmentRegex.MatchString(seg) {
			continue
		}
		kept = append(kept, strings.ReplaceAll(seg, "-", " "))
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}
