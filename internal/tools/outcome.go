package tools

// Category is a closed classification of tool effects. The conversation
// engine branches on categories, never on tool-name strings, so adding
// a tool means assigning it a category here or at registration.
type Category int

const (
	// CategoryOther is the default for tools with no tracked side effect.
	CategoryOther Category = iota
	// CategoryWrite marks tools that create or modify a target file.
	// Successful calls are recorded as implemented files.
	CategoryWrite
	// CategoryRead marks tools that read files for dependency analysis.
	CategoryRead
	// CategoryAnalysis marks static/error analysis tools.
	CategoryAnalysis
	// CategoryReport marks tools that emit evaluation reports.
	CategoryReport
)

// String returns the category name for logs.
func (c Category) String() string {
	switch c {
	case CategoryWrite:
		return "write"
	case CategoryRead:
		return "read"
	case CategoryAnalysis:
		return "analysis"
	case CategoryReport:
		return "report"
	default:
		return "other"
	}
}

// DefaultCategories maps well-known tool names to categories. Used when
// building registries over external tool servers whose definitions do
// not carry a category.
var DefaultCategories = map[string]Category{
	"write_file":        CategoryWrite,
	"edit_file":         CategoryWrite,
	"create_directory":  CategoryWrite,
	"read_file":         CategoryRead,
	"read_code_mem":     CategoryRead,
	"search_code":       CategoryRead,
	"static_analysis":   CategoryAnalysis,
	"analyze_errors":    CategoryAnalysis,
	"run_linter":        CategoryAnalysis,
	"generate_report":   CategoryReport,
	"evaluation_report": CategoryReport,
}

// CategoryFor looks up a tool name in [DefaultCategories].
func CategoryFor(name string) Category {
	if c, ok := DefaultCategories[name]; ok {
		return c
	}
	return CategoryOther
}

// PathArgKeys are the argument names, in precedence order, that carry
// the target file path for write/read category tools.
var PathArgKeys = []string{"file_path", "path", "target_file"}

// PathFromArgs extracts the target file path from tool arguments, or ""
// when none of the known keys is present.
func PathFromArgs(args map[string]any) string {
	for _, key := range PathArgKeys {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
