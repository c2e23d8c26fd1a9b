package richtext

import (
	"fmt"
	"html"
	"strings"
)

// ErrorPlaceholder is emitted when a document cannot be parsed. Email
// delivery must not be blocked by one malformed historical document,
// so rendering degrades to this fixed fragment instead of failing.
const ErrorPlaceholder = `<p style="color:#999">[content could not be displayed]</p>`

// Render converts a stored rich-text document into an HTML string.
// It is pure and deterministic: the same document always yields the
// same bytes. It never returns an error; malformed input renders as
// ErrorPlaceholder.
func Render(doc []byte) string {
	if len(doc) == 0 {
		return ErrorPlaceholder
	}
	root, err := ParseDocument(doc)
	if err != nil {
		return ErrorPlaceholder
	}
	var sb strings.Builder
	renderChildren(&sb, root.Children)
	return sb.String()
}

func renderChildren(sb *strings.Builder, nodes []Node) {
	for i := range nodes {
		renderNode(sb, &nodes[i])
	}
}

func renderNode(sb *strings.Builder, n *Node) {
	switch n.Kind {
	case KindDoc:
		renderChildren(sb, n.Children)

	case KindParagraph:
		openBlock(sb, "p", n.TextAlign)
		renderChildren(sb, n.Children)
		sb.WriteString("</p>")

	case KindHeading:
		level := n.Level
		if level < 1 || level > 6 {
			level = 1
		}
		tag := fmt.Sprintf("h%d", level)
		openBlock(sb, tag, n.TextAlign)
		renderChildren(sb, n.Children)
		sb.WriteString("</" + tag + ">")

	case KindBulletList:
		sb.WriteString("<ul>")
		renderChildren(sb, n.Children)
		sb.WriteString("</ul>")

	case KindOrderedList:
		sb.WriteString("<ol>")
		renderChildren(sb, n.Children)
		sb.WriteString("</ol>")

	case KindListItem:
		sb.WriteString("<li>")
		renderChildren(sb, n.Children)
		sb.WriteString("</li>")

	case KindBlockquote:
		sb.WriteString("<blockquote>")
		renderChildren(sb, n.Children)
		sb.WriteString("</blockquote>")

	case KindCodeBlock:
		sb.WriteString("<pre><code")
		if n.Language != "" {
			sb.WriteString(` class="language-` + html.EscapeString(n.Language) + `"`)
		}
		sb.WriteString(">")
		renderChildren(sb, n.Children)
		sb.WriteString("</code></pre>")

	case KindImage:
		sb.WriteString(`<img src="` + html.EscapeString(n.Src) + `"`)
		if n.Alt != "" {
			sb.WriteString(` alt="` + html.EscapeString(n.Alt) + `"`)
		}
		sb.WriteString(` style="max-width:100%">`)

	case KindAIImage:
		// Generated images carry their prompt as alt text.
		sb.WriteString(`<img src="` + html.EscapeString(n.Src) + `"`)
		if n.Prompt != "" {
			sb.WriteString(` alt="` + html.EscapeString(n.Prompt) + `"`)
		}
		sb.WriteString(` style="max-width:100%">`)

	case KindHardBreak:
		sb.WriteString("<br>")

	case KindText:
		renderText(sb, n)

	case KindUnknown:
		// Forward compatibility: render children inside a neutral
		// container rather than dropping them.
		sb.WriteString("<div>")
		renderChildren(sb, n.Children)
		sb.WriteString("</div>")
	}
}

func openBlock(sb *strings.Builder, tag, align string) {
	sb.WriteString("<" + tag)
	if align != "" {
		sb.WriteString(` style="text-align: ` + html.EscapeString(align) + `"`)
	}
	sb.WriteString(">")
}

// renderText writes the escaped text wrapped by its marks, first mark
// outermost.
func renderText(sb *strings.Builder, n *Node) {
	var open, close strings.Builder
	for _, m := range n.Marks {
		switch m.Kind {
		case MarkBold:
			open.WriteString("<strong>")
			close = prepend(close, "</strong>")
		case MarkItalic:
			open.WriteString("<em>")
			close = prepend(close, "</em>")
		case MarkUnderline:
			open.WriteString("<u>")
			close = prepend(close, "</u>")
		case MarkStrike:
			open.WriteString("<s>")
			close = prepend(close, "</s>")
		case MarkCode:
			open.WriteString("<code>")
			close = prepend(close, "</code>")
		case MarkLink:
			open.WriteString(`<a href="` + html.EscapeString(m.Href) + `"`)
			if m.Target != "" {
				open.WriteString(` target="` + html.EscapeString(m.Target) + `"`)
			}
			open.WriteString(">")
			close = prepend(close, "</a>")
		}
	}
	sb.WriteString(open.String())
	sb.WriteString(html.EscapeString(n.Text))
	sb.WriteString(close.String())
}

func prepend(b strings.Builder, s string) strings.Builder {
	var out strings.Builder
	out.WriteString(s)
	out.WriteString(b.String())
	return out
}
