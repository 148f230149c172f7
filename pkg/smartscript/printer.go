package smartscript

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

var textEscaper = strings.NewReplacer(`\`, `\\`, `{`, `\{`)

// Format returns the canonical source of n. Parsing the result yields a tree
// equal to n, and formatting canonical source returns it unchanged.
func Format(n Node) string {
	var buf bytes.Buffer
	_ = Fprint(&buf, n)
	return buf.String()
}

// Fprint writes the canonical source of n to w.
func Fprint(w io.Writer, n Node) error {
	var buf bytes.Buffer
	printNode(&buf, n)
	_, err := w.Write(buf.Bytes())
	return err
}

func printNode(buf *bytes.Buffer, n Node) {
	switch t := n.(type) {
	case *DocumentNode:
		for _, c := range t.Nodes {
			printNode(buf, c)
		}
	case *TextNode:
		buf.WriteString(textEscaper.Replace(t.Text))
	case *EchoNode:
		if len(t.Elements) == 0 {
			buf.WriteString("{$=$}")
			return
		}
		buf.WriteString("{$= ")
		writeElements(buf, t.Elements)
		buf.WriteString(" $}")
	case *ForLoopNode:
		buf.WriteString("{$ FOR ")
		buf.WriteString(t.Variable.Text())
		buf.WriteByte(' ')
		writeElements(buf, loopArgs(t))
		buf.WriteString(" $}")
		for _, c := range t.Body {
			printNode(buf, c)
		}
		buf.WriteString("{$END$}")
	}
}

func loopArgs(n *ForLoopNode) []Element {
	if n.Step == nil {
		return []Element{n.Start, n.End}
	}
	return []Element{n.Start, n.End, n.Step}
}

func writeElements(buf *bytes.Buffer, elements []Element) {
	for i, el := range elements {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(el.Text())
	}
}

// Dump returns an indented, line-oriented view of the tree under n.
func Dump(n Node) string {
	var buf bytes.Buffer
	dumpNode(&buf, 0, n)
	return buf.String()
}

func dumpNode(buf *bytes.Buffer, indent int, n Node) {
	buf.WriteString(strings.Repeat("  ", indent))
	switch t := n.(type) {
	case *DocumentNode:
		buf.WriteString("Document\n")
	case *TextNode:
		fmt.Fprintf(buf, "Text(%q)\n", t.Text)
	case *EchoNode:
		buf.WriteString("Echo(")
		writeElements(buf, t.Elements)
		buf.WriteString(")\n")
	case *ForLoopNode:
		fmt.Fprintf(buf, "For(%s ", t.Variable.Name)
		writeElements(buf, loopArgs(t))
		buf.WriteString(")\n")
	}
	for _, c := range n.Children() {
		dumpNode(buf, indent+1, c)
	}
}
