// Package autocomplete suggests completions for Python source using
// string-pattern heuristics. It is stateless: every call stands alone.
package autocomplete

import (
	"regexp"
	"strings"
)

var (
	indentRe   = regexp.MustCompile(`^(\s*)`)
	openCallRe = regexp.MustCompile(`\w+\([^)]*$`)
	listCompRe = regexp.MustCompile(`\[.*for.*$`)
	dictCompRe = regexp.MustCompile(`\{.*for.*$`)
)

type pattern struct {
	suffix     string
	suggestion string
}

// Ordered: more specific suffixes first ("elif " before "if ").
var patterns = []pattern{
	{"async def ", "function_name():\n    return"},
	{"def ", "function_name():\n    pass"},
	{"class ", "ClassName:\n    def __init__(self):\n        pass"},
	{"elif ", "condition:\n    pass"},
	{"if ", "condition:\n    pass"},
	{"else:", "\n    pass"},
	{"for ", "item in iterable:\n    pass"},
	{"while ", "condition:\n    pass"},
	{"try:", "\n    pass\nexcept Exception as e:\n    pass"},
	{"with ", "open('file.txt') as f:\n    pass"},
	{"import ", "os"},
	{"from ", "module import "},
	{"lambda ", "x: x"},
	{"return ", "value"},
	{"yield ", "value"},
	{"raise ", "Exception('message')"},
	{"assert ", "condition, 'message'"},
	{"@", "decorator\n"},
}

// Bare-keyword fallbacks keyed on the last word of the line.
var keywordSuggestions = map[string]string{
	"if":      " condition:\n    pass",
	"elif":    " condition:\n    pass",
	"else":    ":",
	"for":     " item in iterable:\n    pass",
	"while":   " condition:\n    pass",
	"def":     " function_name():\n    pass",
	"class":   " ClassName:\n    def __init__(self):\n        pass",
	"try":     ":",
	"except":  " Exception as e:\n    pass",
	"finally": ":",
	"with":    " open('file.txt') as f:\n    pass",
	"import":  " os",
	"from":    " module import ",
	"return":  " value",
	"yield":   " value",
	"raise":   " Exception('message')",
	"assert":  " condition, 'message'",
}

// Suggest returns a completion for the code at cursor, or an empty string
// when nothing sensible applies.
func Suggest(code string, cursor int) string {
	if cursor < 0 || cursor > len(code) {
		cursor = len(code)
	}

	lines := strings.Split(code[:cursor], "\n")
	currentLine := lines[len(lines)-1]
	lineNum := len(lines) - 1
	indent := indentRe.FindString(currentLine)

	if s := detect(currentLine); s != "" {
		return applyIndent(s, indent)
	}

	words := strings.Fields(currentLine)
	if len(words) == 0 {
		if lineNum == 0 {
			return "def main():\n    pass\n\nif __name__ == '__main__':\n    main()"
		}
		return "# Add your code here"
	}

	if s, ok := keywordSuggestions[strings.ToLower(words[len(words)-1])]; ok {
		return applyIndent(s, indent)
	}

	return ""
}

// detect inspects the tail of the current line for an incomplete construct.
func detect(line string) string {
	stripped := strings.TrimRight(line, " \t")
	if stripped == "" {
		return ""
	}

	// unbalanced closers
	switch {
	case strings.HasSuffix(stripped, "(") && !strings.HasSuffix(stripped, "()"):
		return ")"
	case strings.HasSuffix(stripped, "[") && !strings.HasSuffix(stripped, "[]"):
		return "]"
	case strings.HasSuffix(stripped, "{") && !strings.HasSuffix(stripped, "{}"):
		return "}"
	}

	// dangling quotes
	if strings.Count(stripped, `"`)%2 == 1 && !strings.HasSuffix(stripped, `\"`) {
		return `"`
	}
	if strings.Count(stripped, `'`)%2 == 1 && !strings.HasSuffix(stripped, `\'`) {
		return `'`
	}

	for _, p := range patterns {
		if strings.HasSuffix(line, p.suffix) || stripped == strings.TrimRight(p.suffix, " ") {
			return p.suggestion
		}
	}

	if listCompRe.MatchString(stripped) {
		return " in iterable]"
	}
	if dictCompRe.MatchString(stripped) {
		return " in iterable}"
	}

	if openCallRe.MatchString(stripped) {
		return ")"
	}

	if strings.HasSuffix(stripped, "=") &&
		!strings.HasSuffix(stripped, "==") && !strings.HasSuffix(stripped, "!=") {
		return " value"
	}

	if strings.HasSuffix(line, "and ") || strings.HasSuffix(line, "or ") {
		return "condition"
	}

	return ""
}

// applyIndent re-indents the continuation lines of a multi-line suggestion
// to match the line it completes.
func applyIndent(suggestion, indent string) string {
	if !strings.Contains(suggestion, "\n") || indent == "" {
		return suggestion
	}
	lines := strings.Split(suggestion, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = indent + lines[i]
	}
	return strings.Join(lines, "\n")
}
