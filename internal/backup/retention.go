package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileInfo describes one archive file for listing and retention.
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
	Ticks     int       `json:"ticks"`
}

// RetentionPolicy decides which archives to keep. Input is newest-first.
type RetentionPolicy interface {
	Apply(files []FileInfo) (keep []FileInfo)
}

// CountPolicy keeps the N most recent archives.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(files []FileInfo) []FileInfo {
	if len(files) <= p.MaxCount {
		return files
	}
	return files[:p.MaxCount]
}

// AgePolicy keeps archives newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
}

func (p *AgePolicy) Apply(files []FileInfo) []FileInfo {
	cutoff := time.Now().Add(-p.MaxAge)
	var keep []FileInfo
	for _, f := range files {
		if f.CreatedAt.After(cutoff) {
			keep = append(keep, f)
		}
	}
	return keep
}

// SizePolicy keeps archives, newest first, while their total size stays
// under MaxTotalBytes. The newest archive is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

func (p *SizePolicy) Apply(files []FileInfo) []FileInfo {
	var keep []FileInfo
	var total int64
	for _, f := range files {
		if total+f.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, f)
		total += f.Size
	}
	return keep
}

// CompositePolicy keeps an archive if any sub-policy keeps it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

func (p *CompositePolicy) Apply(files []FileInfo) []FileInfo {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, f := range policy.Apply(files) {
			kept[f.Path] = true
		}
	}

	var result []FileInfo
	for _, f := range files {
		if kept[f.Path] {
			result = append(result, f)
		}
	}
	return result
}

// LatestPerRunPolicy keeps only the newest archive of each run, so
// re-exporting a run supersedes its older archives. Archives whose header
// could not be read carry no run id and are all kept. Then, when set, is
// applied to the survivors.
type LatestPerRunPolicy struct {
	Then RetentionPolicy
}

func (p *LatestPerRunPolicy) Apply(files []FileInfo) []FileInfo {
	seen := make(map[string]bool)
	var keep []FileInfo
	for _, f := range files {
		if f.RunID != "" {
			if seen[f.RunID] {
				continue
			}
			seen[f.RunID] = true
		}
		keep = append(keep, f)
	}
	if p.Then != nil {
		return p.Then.Apply(keep)
	}
	return keep
}

// List returns the archives in dir, newest first. Files with an unreadable
// header are listed without run details. A missing dir is not an error.
func List(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		fi := FileInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if h, err := ReadHeader(fi.Path); err == nil {
			fi.RunID = h.RunID
			fi.Ticks = h.Ticks
			if !h.CreatedAt.IsZero() {
				fi.CreatedAt = h.CreatedAt
			}
		}
		files = append(files, fi)
	}

	// Timestamp is embedded in the name.
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i].Path) > filepath.Base(files[j].Path)
	})
	return files, nil
}

// ApplyRetention deletes the archives in dir that policy does not keep.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	files, err := List(dir)
	if err != nil {
		return nil, err
	}

	keepSet := make(map[string]bool)
	for _, f := range policy.Apply(files) {
		keepSet[f.Path] = true
	}

	for _, f := range files {
		if keepSet[f.Path] {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(f.Path), err)
		}
		deleted = append(deleted, f.Path)
	}
	return deleted, nil
}

func isArchiveFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt)
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", s[len(s)-1:], s)
	}
}

// ParseSize parses sizes like "500KB", "100MB" or "1GB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longest suffix first so "MB" is not read as "B".
	for _, unit := range []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if !strings.HasSuffix(s, unit.suffix) {
			continue
		}
		num, err := strconv.ParseInt(strings.TrimSuffix(s, unit.suffix), 10, 64)
		if err != nil || num < 0 {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		return num * unit.multiplier, nil
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
