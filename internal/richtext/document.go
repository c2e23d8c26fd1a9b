// Package richtext renders the structured rich-text document stored on
// a broadcast into transport-ready HTML. The node tree is a closed set
// of kinds plus an explicit unknown variant so documents written by a
// newer editor still render their children instead of failing.
package richtext

import "encoding/json"

// NodeKind identifies one of the supported node types.
type NodeKind string

const (
	KindDoc         NodeKind = "doc"
	KindParagraph   NodeKind = "paragraph"
	KindHeading     NodeKind = "heading"
	KindBulletList  NodeKind = "bulletList"
	KindOrderedList NodeKind = "orderedList"
	KindListItem    NodeKind = "listItem"
	KindBlockquote  NodeKind = "blockquote"
	KindCodeBlock   NodeKind = "codeBlock"
	KindImage       NodeKind = "image"
	KindHardBreak   NodeKind = "hardBreak"
	KindText        NodeKind = "text"
	KindAIImage     NodeKind = "aiImage"
	// KindUnknown covers node types this renderer does not know about.
	// Their children render inside a neutral container.
	KindUnknown NodeKind = "unknown"
)

var knownKinds = map[NodeKind]bool{
	KindDoc: true, KindParagraph: true, KindHeading: true,
	KindBulletList: true, KindOrderedList: true, KindListItem: true,
	KindBlockquote: true, KindCodeBlock: true, KindImage: true,
	KindHardBreak: true, KindText: true, KindAIImage: true,
}

// MarkKind identifies an inline mark.
type MarkKind string

const (
	MarkBold      MarkKind = "bold"
	MarkItalic    MarkKind = "italic"
	MarkUnderline MarkKind = "underline"
	MarkStrike    MarkKind = "strike"
	MarkCode      MarkKind = "code"
	MarkLink      MarkKind = "link"
)

// Mark is an inline wrapper applied to a text node. Marks nest in the
// order they appear on the node.
type Mark struct {
	Kind   MarkKind
	Href   string
	Target string
}

// Node is one node of the rich-text tree.
type Node struct {
	Kind NodeKind
	// RawType preserves the original type string for unknown nodes.
	RawType string

	// Text and Marks are set for text nodes.
	Text  string
	Marks []Mark

	// Attributes for the block kinds that carry them.
	Level     int    // heading: 1-6
	Language  string // codeBlock
	TextAlign string // paragraph/heading
	Src       string // image / aiImage resolved URL
	Alt       string // image
	Prompt    string // aiImage

	Children []Node
}

type rawMark struct {
	Type  string `json:"type"`
	Attrs struct {
		Href   string `json:"href"`
		Target string `json:"target"`
	} `json:"attrs"`
}

type rawNode struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Attrs struct {
		Level     int    `json:"level"`
		Language  string `json:"language"`
		TextAlign string `json:"textAlign"`
		Src       string `json:"src"`
		Alt       string `json:"alt"`
		Prompt    string `json:"prompt"`
		ImageURL  string `json:"imageUrl"`
	} `json:"attrs"`
	Marks   []rawMark `json:"marks"`
	Content []rawNode `json:"content"`
}

// UnmarshalJSON decodes a node, mapping unrecognized types to
// KindUnknown instead of erroring.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = fromRaw(raw)
	return nil
}

func fromRaw(raw rawNode) Node {
	kind := NodeKind(raw.Type)
	if !knownKinds[kind] {
		kind = KindUnknown
	}

	n := Node{
		Kind:      kind,
		RawType:   raw.Type,
		Text:      raw.Text,
		Level:     raw.Attrs.Level,
		Language:  raw.Attrs.Language,
		TextAlign: raw.Attrs.TextAlign,
		Src:       raw.Attrs.Src,
		Alt:       raw.Attrs.Alt,
		Prompt:    raw.Attrs.Prompt,
	}
	// AI image nodes store their resolved URL under imageUrl.
	if n.Src == "" && raw.Attrs.ImageURL != "" {
		n.Src = raw.Attrs.ImageURL
	}

	for _, m := range raw.Marks {
		mark := Mark{Kind: MarkKind(m.Type), Href: m.Attrs.Href, Target: m.Attrs.Target}
		switch mark.Kind {
		case MarkBold, MarkItalic, MarkUnderline, MarkStrike, MarkCode, MarkLink:
			n.Marks = append(n.Marks, mark)
		default:
			// Unknown marks are dropped; the text still renders.
		}
	}

	for _, c := range raw.Content {
		n.Children = append(n.Children, fromRaw(c))
	}
	return n
}

// ParseDocument decodes a stored rich-text document into its root node.
func ParseDocument(data []byte) (*Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return &root, nil
}
