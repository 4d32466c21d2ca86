package domain

import (
	"path/filepath"
	"strings"
)

// languagesByExtension maps file extensions to language names used by the
// structural analyzer and prompts.
var languagesByExtension = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".hpp":   "cpp",
	".go":    "go",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".cs":    "csharp",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sql":   "sql",
	".sh":    "bash",
	".yml":   "yaml",
	".yaml":  "yaml",
	".json":  "json",
	".xml":   "xml",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".md":    "markdown",
}

// DetectLanguage returns the language for a filename, or "unknown".
func DetectLanguage(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if lang, ok := languagesByExtension[ext]; ok {
		return lang
	}
	return "unknown"
}
