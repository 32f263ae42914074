// Package scan walks a directory tree and reports the file paths that
// survive an include/exclude glob filter, plus a version-control
// fingerprint for the tree.
package scan

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one candidate file discovered by a scan.
type FileInfo struct {
	// Path is relative to the scan root, using "/" separators.
	Path    string
	AbsPath string
	ModTime int64 // nanoseconds since epoch
	Size    int64
}

// Options configures a directory walk.
type Options struct {
	IncludeGlobs []string
	ExcludeGlobs []string
}

// DefaultExcludeGlobs matches VCS and cache directories.
var DefaultExcludeGlobs = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/node_modules/**",
	"**/.rifflux/**",
	"**/.tmp/**",
}

// Walk scans root and returns every regular file whose path (relative to
// root) matches at least one include glob and no exclude glob (exclude
// wins on conflict).
func Walk(root string, opts Options) ([]FileInfo, error) {
	includes := opts.IncludeGlobs
	if len(includes) == 0 {
		includes = []string{"*.md"}
	}
	excludes := opts.ExcludeGlobs
	if excludes == nil {
		excludes = DefaultExcludeGlobs
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err // a missing or unreadable root is an error, not an empty scan
			}
			// Skip unreadable entries rather than aborting the whole scan.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if matchesExclude(rel+"/", excludes) {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesExclude(rel, excludes) {
			return nil
		}
		if !matchesInclude(rel, includes) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:    rel,
			AbsPath: path,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func matchesInclude(rel string, includes []string) bool {
	base := filepath.Base(rel)
	for _, pat := range includes {
		if MatchGlob(pat, rel) || MatchGlob(pat, base) {
			return true
		}
	}
	return false
}

func matchesExclude(rel string, excludes []string) bool {
	base := filepath.Base(strings.TrimSuffix(rel, "/"))
	for _, pat := range excludes {
		if MatchGlob(pat, rel) || MatchGlob(pat, base) {
			return true
		}
		// A trailing-slash directory candidate also matches a pattern
		// written without one (e.g. "**/node_modules" for "node_modules/").
		if strings.HasSuffix(rel, "/") && MatchGlob(pat, strings.TrimSuffix(rel, "/")) {
			return true
		}
	}
	return false
}

// GitFingerprint returns an implementation-defined fingerprint for the
// git worktree containing root, if any: the resolved HEAD commit id, with
// "-dirty" appended when isDirty reports local modification. ok is
// false when root is not inside a git worktree.
//
// This reports a single root's fingerprint; a caller reindexing multiple
// roots keeps the first non-empty one it sees.
func GitFingerprint(root string) (fingerprint string, ok bool) {
	gitDir, found := findGitDir(root)
	if !found {
		return "", false
	}

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", false
	}

	headStr := strings.TrimSpace(string(head))
	var commit string
	if strings.HasPrefix(headStr, "ref: ") {
		refPath := strings.TrimPrefix(headStr, "ref: ")
		commit = resolveRef(gitDir, refPath)
	} else {
		commit = headStr
	}
	if commit == "" {
		return "", false
	}

	if isDirty(gitDir) {
		commit += "-dirty"
	}
	return commit, true
}

// findGitDir walks upward from root looking for a ".git" directory or
// worktree pointer file.
func findGitDir(root string) (string, bool) {
	dir, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".git")
		if info, statErr := os.Stat(candidate); statErr == nil {
			if info.IsDir() {
				return candidate, true
			}
			// Worktree: .git is a file containing "gitdir: <path>".
			if data, readErr := os.ReadFile(candidate); readErr == nil {
				line := strings.TrimSpace(string(data))
				if strings.HasPrefix(line, "gitdir: ") {
					return strings.TrimPrefix(line, "gitdir: "), true
				}
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func resolveRef(gitDir, refPath string) string {
	if data, err := os.ReadFile(filepath.Join(gitDir, refPath)); err == nil {
		return strings.TrimSpace(string(data))
	}
	// Fall back to packed-refs.
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, " "+refPath) {
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}
	return ""
}

// isDirty is a best-effort, dependency-free check: it treats an index file
// modified more recently than HEAD as a signal of local modification.
// It never fails the fingerprint computation; ambiguity resolves to clean.
func isDirty(gitDir string) bool {
	headInfo, err := os.Stat(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return false
	}
	indexInfo, err := os.Stat(filepath.Join(gitDir, "index"))
	if err != nil {
		return false
	}
	return indexInfo.ModTime().After(headInfo.ModTime())
}
