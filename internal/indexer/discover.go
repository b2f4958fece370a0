package indexer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/codeatlas/codeatlas/internal/analyzer"
	"github.com/codeatlas/codeatlas/internal/config"
)

// discoverFiles walks the project tree and returns the relative paths of
// every indexable source file, sorted for deterministic processing.
// Gitignore rules, configured exclude patterns, hidden directories, and
// oversized files are all skipped.
func discoverFiles(cfg *config.Config) ([]string, error) {
	var gitignore *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(cfg.Root, ".gitignore")); err == nil {
		gitignore = gi
	}

	var files []string
	err := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(cfg.Root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || name == config.DataDirName {
				return filepath.SkipDir
			}
			// Match with a sentinel child so "**/vendor/**" prunes the
			// vendor directory itself.
			if excluded(cfg, rel+"/x") {
				return filepath.SkipDir
			}
			if gitignore != nil && gitignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !analyzer.IsSourceFile(path) {
			return nil
		}
		if excluded(cfg, rel) {
			return nil
		}
		if gitignore != nil && gitignore.MatchesPath(rel) {
			return nil
		}
		if len(cfg.Index.IncludePatterns) > 0 && !included(cfg, rel) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > cfg.Index.MaxFileSize {
			return nil
		}

		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func excluded(cfg *config.Config, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range cfg.Index.ExcludePatterns {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

func included(cfg *config.Config, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range cfg.Index.IncludePatterns {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}
