package scanner

import "path/filepath"

// languageMap maps file extensions (and a few exact filenames) to language
// identifiers recorded on content points.
var languageMap = map[string]string{
	// Go
	".go": "go",

	// JavaScript/TypeScript
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	// Python
	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	// Web
	".html": "html",
	".css":  "css",
	".scss": "scss",

	// Docs
	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",

	// Shell
	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",

	// Ruby
	".rb": "ruby",

	// Rust
	".rs": "rust",

	// Java/Kotlin
	".java": "java",
	".kt":   "kotlin",

	// C/C++
	".c":   "c",
	".h":   "c",
	".cpp": "cpp",
	".hpp": "cpp",
	".cc":  "cpp",

	// C#
	".cs": "csharp",

	// Swift
	".swift": "swift",

	// PHP
	".php": "php",

	// Scala
	".scala": "scala",

	// Elixir/Erlang
	".ex":  "elixir",
	".exs": "elixir",
	".erl": "erlang",

	// Misc code
	".lua":    "lua",
	".sql":    "sql",
	".proto":  "protobuf",
	".vue":    "vue",
	".svelte": "svelte",

	// Exact filenames
	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
}

// DetectLanguage detects the language from a file path.
// Returns "" for files codetrawl does not index.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	if lang, ok := languageMap[filepath.Ext(path)]; ok {
		return lang
	}
	return ""
}

// IsBinaryContent checks if content appears to be binary by looking for
// null bytes in the first 512 bytes.
func IsBinaryContent(content []byte) bool {
	checkLen := 512
	if len(content) < checkLen {
		checkLen = len(content)
	}
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
