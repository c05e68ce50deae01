package ingestion

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
)

// Export filenames follow {ConstituencyId}_{YYYY-MM-DD}_{HHMM-HHMM}.<ext>.
var filenamePattern = regexp.MustCompile(`^([A-Za-z0-9]+)_(\d{4}-\d{2}-\d{2})_(\d{4})-(\d{4})$`)

// ExtractMetadata parses a file path into constituency id, date and hour
// range. When the path is nested at least four directories deep the
// Region/Election/ConstituencyName/ConstituencyId hierarchy fills the
// optional fields. Pure function of the path string.
func ExtractMetadata(path string) (*domain.FileMetadata, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, domain.MetadataError(base, "filename does not match {ConstituencyId}_{YYYY-MM-DD}_{HHMM-HHMM}")
	}

	date, err := time.Parse("2006-01-02", m[2])
	if err != nil {
		return nil, domain.MetadataError(base, "invalid date "+m[2])
	}
	if !validClockTime(m[3]) || !validClockTime(m[4]) {
		return nil, domain.MetadataError(base, "invalid hour range "+m[3]+"-"+m[4])
	}

	meta := &domain.FileMetadata{
		ConstituencyID: m[1],
		Date:           date,
		HourRange:      m[3] + "-" + m[4],
		Filename:       base,
	}

	// Directory names, innermost last: .../Region/Election/Name/Id/file
	dirs := splitDirs(path)
	if len(dirs) >= 4 {
		tail := dirs[len(dirs)-4:]
		if tail[3] == meta.ConstituencyID {
			meta.Region = tail[0]
			meta.ElectionName = tail[1]
			meta.ConstituencyName = tail[2]
		}
	}

	return meta, nil
}

// HourRangeWindow converts metadata's date and HHMM-HHMM range into an
// absolute [from,to) window in UTC. A zero-length range covers one hour.
func HourRangeWindow(meta *domain.FileMetadata) (time.Time, time.Time) {
	parse := func(hhmm string) time.Duration {
		h, _ := strconv.Atoi(hhmm[:2])
		m, _ := strconv.Atoi(hhmm[2:])
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	}
	parts := strings.SplitN(meta.HourRange, "-", 2)
	from := meta.Date.Add(parse(parts[0]))
	to := meta.Date.Add(parse(parts[1]))
	if !to.After(from) {
		to = from.Add(time.Hour)
	}
	return from, to
}

func validClockTime(hhmm string) bool {
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil || h > 23 {
		return false
	}
	m, err := strconv.Atoi(hhmm[2:])
	return err == nil && m <= 59
}

func splitDirs(path string) []string {
	dir := filepath.Dir(filepath.ToSlash(path))
	if dir == "." || dir == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}
