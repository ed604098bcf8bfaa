package remote

import (
	"regexp"
	"strings"
)

// shellEscapeRegex matches every byte that is not safe to leave
// unescaped in a single POSIX shell word.
var shellEscapeRegex = regexp.MustCompile("[^A-Za-z0-9_.,:/\\@-\U0010FFFF\n-]")

// ShellEscape escapes str for safe inclusion as a single shell word in a
// remote command line.
func ShellEscape(str string) string {
	safe := shellEscapeRegex.ReplaceAllString(str, `\$0`)
	return strings.Replace(safe, "\n", "'\n'", -1)
}
