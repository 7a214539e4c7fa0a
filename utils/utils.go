// Package utils holds small helpers shared by the commands and readers.
package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

var frontmatter = regexp.MustCompile(`(?s)\A---\r?\n.*?\r?\n---\r?\n`)

// RemoveFrontmatter drops a leading YAML frontmatter block.
func RemoveFrontmatter(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("---")) {
		return content
	}
	if loc := frontmatter.FindIndex(content); loc != nil {
		return content[loc[1]:]
	}
	return content
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return path
	}
	return expanded
}

// ReadableExtensions are the file types readaloud can open.
var ReadableExtensions = []string{
	"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "*.txt",
}

// IsReadableFile reports whether name has a readable extension.
func IsReadableFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, pattern := range ReadableExtensions {
		if "*"+ext == pattern {
			return true
		}
	}
	return false
}
