package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// desiredLinks maps link names to target paths for a source library's root
// folders, one link per root. Basename collisions between roots are
// disambiguated with a numeric suffix so no root is silently dropped.
func desiredLinks(sourcePaths []string) map[string]string {
	out := make(map[string]string, len(sourcePaths))
	for _, p := range sourcePaths {
		name := filepath.Base(p)
		if _, taken := out[name]; taken {
			for i := 2; ; i++ {
				candidate := fmt.Sprintf("%s-%d", name, i)
				if _, taken := out[candidate]; !taken {
					name = candidate
					break
				}
			}
		}
		out[name] = p
	}
	return out
}

// applyLinks makes the symlinks in dir match desired, touching only
// entries the engine manages: links are created where missing, managed
// links whose name left the desired set are removed, and anything else in
// the directory is left alone. A name occupied by an unmanaged entry is
// reported as a conflict and skipped.
//
// Returns the new managed-name set (sorted), the number of filesystem
// writes performed, and the conflicting names.
func applyLinks(dir string, desired map[string]string, managed []string) (names []string, writes int, conflicts []string, err error) {
	managedSet := make(map[string]bool, len(managed))
	for _, name := range managed {
		managedSet[name] = true
	}

	ordered := make([]string, 0, len(desired))
	for name := range desired {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		target := desired[name]
		path := filepath.Join(dir, name)

		info, lerr := os.Lstat(path)
		switch {
		case errors.Is(lerr, fs.ErrNotExist):
			if serr := os.Symlink(target, path); serr != nil {
				return nil, writes, conflicts, fmt.Errorf("failed to create link %q: %w", name, serr)
			}
			writes++
			names = append(names, name)

		case lerr != nil:
			return nil, writes, conflicts, fmt.Errorf("failed to stat %q: %w", name, lerr)

		case info.Mode()&os.ModeSymlink != 0:
			current, rerr := os.Readlink(path)
			if rerr != nil {
				return nil, writes, conflicts, fmt.Errorf("failed to read link %q: %w", name, rerr)
			}
			if current == target {
				names = append(names, name)
				continue
			}
			if !managedSet[name] {
				conflicts = append(conflicts, name)
				continue
			}
			if rerr := os.Remove(path); rerr != nil {
				return nil, writes, conflicts, fmt.Errorf("failed to replace link %q: %w", name, rerr)
			}
			if serr := os.Symlink(target, path); serr != nil {
				return nil, writes, conflicts, fmt.Errorf("failed to replace link %q: %w", name, serr)
			}
			writes++
			names = append(names, name)

		default:
			// A regular file or directory holds the name; not ours to touch.
			conflicts = append(conflicts, name)
		}
	}

	// Remove managed links whose name is no longer desired. Only symlinks
	// are removed; anything a user put in their place stays.
	for _, name := range managed {
		if _, still := desired[name]; still {
			continue
		}
		path := filepath.Join(dir, name)

		info, lerr := os.Lstat(path)
		if errors.Is(lerr, fs.ErrNotExist) {
			continue
		}
		if lerr != nil {
			return nil, writes, conflicts, fmt.Errorf("failed to stat %q: %w", name, lerr)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		if rerr := os.Remove(path); rerr != nil {
			return nil, writes, conflicts, fmt.Errorf("failed to remove link %q: %w", name, rerr)
		}
		writes++
	}

	sort.Strings(names)
	return names, writes, conflicts, nil
}

// sameNames reports whether two sorted name sets are identical.
func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
