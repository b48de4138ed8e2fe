package templates

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var builtinNames = []string{
	"ifequal", "ifpage", "unlesspage", "repeat",
	"markdown", "code", "upper", "lower", "titlecase",
}

func isBuiltinHelper(name string) bool {
	for _, n := range builtinNames {
		if n == name {
			return true
		}
	}
	return false
}

// builtinHelpers returns the helpers available to every template while
// rendering page.
func builtinHelpers(page string) map[string]interface{} {
	return map[string]interface{}{
		// {{#ifequal a b}}...{{else}}...{{/ifequal}}
		"ifequal": func(a, b interface{}, options *raymond.Options) raymond.SafeString {
			if raymond.Str(a) == raymond.Str(b) {
				return raymond.SafeString(options.Fn())
			}
			return raymond.SafeString(options.Inverse())
		},
		// {{#ifpage "index,about"}} renders only on the listed pages.
		"ifpage": func(pages interface{}, options *raymond.Options) raymond.SafeString {
			if pageListed(page, raymond.Str(pages)) {
				return raymond.SafeString(options.Fn())
			}
			return raymond.SafeString(options.Inverse())
		},
		"unlesspage": func(pages interface{}, options *raymond.Options) raymond.SafeString {
			if !pageListed(page, raymond.Str(pages)) {
				return raymond.SafeString(options.Fn())
			}
			return raymond.SafeString(options.Inverse())
		},
		"repeat": func(count interface{}, options *raymond.Options) raymond.SafeString {
			n, err := strconv.Atoi(raymond.Str(count))
			if err != nil || n < 0 {
				panic(fmt.Errorf("helper repeat: invalid count %q", raymond.Str(count)))
			}
			return raymond.SafeString(strings.Repeat(options.Fn(), n))
		},
		"markdown": func(options *raymond.Options) raymond.SafeString {
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(dedent(options.Fn())), &buf); err != nil {
				panic(fmt.Errorf("helper markdown: %w", err))
			}
			return raymond.SafeString(buf.String())
		},
		"code": func(lang interface{}, options *raymond.Options) raymond.SafeString {
			body := strings.Trim(options.Fn(), "\n")
			return raymond.SafeString(fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`,
				html.EscapeString(raymond.Str(lang)), html.EscapeString(body)))
		},
		"upper": func(s interface{}) string {
			return cases.Upper(language.Und).String(textArg("upper", s))
		},
		"lower": func(s interface{}) string {
			return cases.Lower(language.Und).String(textArg("lower", s))
		},
		"titlecase": func(s interface{}) string {
			return cases.Title(language.English).String(textArg("titlecase", s))
		},
	}
}

// textArg returns v as a string. Called without an argument, raymond hands
// the helper its options instead, which fails the render. Panics carrying an
// error are returned from Exec by raymond.
func textArg(helper string, v interface{}) string {
	if _, ok := v.(*raymond.Options); ok {
		panic(fmt.Errorf("helper %s: missing argument", helper))
	}
	return raymond.Str(v)
}

// fileHelper turns a helper template into a block helper. The template sees
// the call's hash arguments plus "content", the rendered block body. Render
// failures are passed to fail since helpers cannot return errors.
func fileHelper(name, src string, page string, fail func(error)) interface{} {
	return func(options *raymond.Options) raymond.SafeString {
		tpl, err := raymond.Parse(src)
		if err != nil {
			fail(fmt.Errorf("helper %s: %w", name, err))
			return ""
		}
		tpl.RegisterHelpers(builtinHelpers(page))

		ctx := map[string]interface{}{}
		for k, v := range options.Hash() {
			ctx[k] = v
		}
		ctx["content"] = raymond.SafeString(options.Fn())

		out, err := tpl.Exec(ctx)
		if err != nil {
			fail(fmt.Errorf("helper %s: %w", name, err))
			return ""
		}
		return raymond.SafeString(out)
	}
}

func pageListed(page, list string) bool {
	for _, p := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ' ' }) {
		if p == page {
			return true
		}
	}
	return false
}

// dedent strips the indentation shared by every non-blank line so that
// markdown nested inside indented markup is not read as a code block.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= prefix {
			lines[i] = l[prefix:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
