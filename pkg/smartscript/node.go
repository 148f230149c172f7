package smartscript

// Node is a document tree node. The set of node types is closed: a
// *DocumentNode, *TextNode, *EchoNode or *ForLoopNode.
//
// Children returns the ordered child nodes. Leaves return nil, parents a
// non-nil, possibly empty, slice.
type Node interface {
	Children() []Node
	node()
}

// DocumentNode is the root of a parsed document.
type DocumentNode struct {
	Nodes []Node
}

// TextNode holds literal output text, already unescaped.
type TextNode struct {
	Text string
}

// EchoNode holds the postfix expression of a {$= ... $} tag.
type EchoNode struct {
	Elements []Element
}

// ForLoopNode is a {$FOR var start end [step]$} ... {$END$} block. Start and
// End are never nil; Step is nil when the tag omits it.
type ForLoopNode struct {
	Variable VariableElement
	Start    Element
	End      Element
	Step     Element
	Body     []Node
}

func (*DocumentNode) node() {}
func (*TextNode) node()     {}
func (*EchoNode) node()     {}
func (*ForLoopNode) node()  {}

func (n *DocumentNode) Children() []Node { return n.Nodes }
func (n *TextNode) Children() []Node     { return nil }
func (n *EchoNode) Children() []Node     { return nil }
func (n *ForLoopNode) Children() []Node  { return n.Body }

// Walk calls fn for n and then, depth first, for each of its descendants.
// Returning false from fn skips the children of that node.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// Functions returns the distinct function names called by doc's echo tags,
// in order of first use.
func Functions(doc *DocumentNode) []string {
	seen := map[string]struct{}{}
	var names []string
	Walk(doc, func(n Node) bool {
		echo, ok := n.(*EchoNode)
		if !ok {
			return true
		}
		for _, el := range echo.Elements {
			fn, ok := el.(FunctionElement)
			if !ok {
				continue
			}
			if _, dup := seen[fn.Name]; !dup {
				seen[fn.Name] = struct{}{}
				names = append(names, fn.Name)
			}
		}
		return true
	})
	return names
}
