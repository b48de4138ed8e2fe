package templates

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// splitFrontMatter separates a leading YAML block fenced by "---" lines from
// the template body. Files without front matter yield a nil map and the
// whole input as body.
func splitFrontMatter(src []byte) (map[string]interface{}, []byte, error) {
	first, rest, ok := cutLine(src)
	if !ok || string(bytes.TrimRight(first, " \t\r")) != frontMatterDelim {
		return nil, src, nil
	}

	var header []byte
	for {
		line, remaining, found := cutLine(rest)
		if string(bytes.TrimRight(line, " \t\r")) == frontMatterDelim {
			meta := map[string]interface{}{}
			if err := yaml.Unmarshal(header, &meta); err != nil {
				return nil, nil, fmt.Errorf("parsing front matter: %w", err)
			}
			return meta, remaining, nil
		}
		if !found {
			return nil, nil, fmt.Errorf("front matter is not terminated by %q", frontMatterDelim)
		}
		header = append(header, line...)
		header = append(header, '\n')
		rest = remaining
	}
}

// cutLine splits b at the first newline. found is false when b holds no
// newline, in which case line is all of b.
func cutLine(b []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, false
}
