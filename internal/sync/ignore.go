package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/vaultlink/vaultlink/internal/utils"
)

// IgnoreFileName is an optional per-vault pattern file in the metadata dir.
const IgnoreFileName = "syncignore"

var defaultIgnoreLines = []string{
	// vaultlink
	IgnoreFileName,
	"**/*.vl.tmp.*",
	// editors
	"*.swp",
	"*.swx",
	"*~",
	".vscode",
	".idea",
	// general excludes
	".git",
	"*.tmp",
	"*.log",
	// OS noise
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"Icon\r",
}

// IgnoreList filters editor and OS junk out of both sync directions. It
// layers under the path policy: the policy decides intent, this catches
// noise.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

// NewIgnoreList creates a list with the built-in rules. Load layers the
// vault's own syncignore file on top.
func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open syncignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading syncignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded syncignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

func (l *IgnoreList) ShouldIgnore(path string) bool {
	return l.ignore.MatchesPath(path)
}
