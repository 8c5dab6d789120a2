package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the image types the engine reads.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ExpandDir builds one job per image file directly inside in, writing to the
// same file name under out. format, when set, replaces the output extension.
// Jobs are sorted by input path.
func ExpandDir(in, out string, exts []string, format string) ([]Job, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}

	entries, err := os.ReadDir(in)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var jobs []Job
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !allowed[ext] {
			continue
		}
		outName := name
		if format != "" {
			outName = strings.TrimSuffix(name, filepath.Ext(name)) + "." + strings.ToLower(format)
		}
		jobs = append(jobs, Job{
			Input:  filepath.Join(in, name),
			Output: filepath.Join(out, outName),
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Input < jobs[j].Input })
	return jobs, nil
}

// SkipExisting drops jobs whose output file already exists, so a directory
// can be re-scanned and only new images get processed.
func SkipExisting(jobs []Job) []Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if _, err := os.Stat(j.Output); err == nil {
			continue
		}
		out = append(out, j)
	}
	return out
}
