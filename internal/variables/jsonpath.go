package variables

import (
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// lookup evaluates a JSONPath expression against the decoded body.
// Wildcard, slice, filter and deep-scan expressions yield a []any of every match.
func lookup(doc any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if doc == nil || !strings.HasPrefix(path, "$") {
		return nil, false
	}
	value, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, false
	}
	return value, true
}
