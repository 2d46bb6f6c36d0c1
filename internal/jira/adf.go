package jira

import (
	"fmt"
	"strings"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// ADFToText flattens an Atlassian Document Format tree into plain text
// suitable for a task description. Block nodes become paragraphs, lists
// keep their markers, code blocks keep their fences. Formatting marks
// are dropped except inline code and link targets.
func ADFToText(root *models.CommentNodeScheme) string {
	if root == nil {
		return ""
	}
	if root.Type == "doc" {
		return strings.Join(renderBlocks(root.Content, 0), "\n\n")
	}
	return renderBlock(root, 0)
}

func renderBlocks(nodes []*models.CommentNodeScheme, depth int) []string {
	var blocks []string
	for _, node := range nodes {
		if text := renderBlock(node, depth); text != "" {
			blocks = append(blocks, text)
		}
	}
	return blocks
}

func renderBlock(node *models.CommentNodeScheme, depth int) string {
	if node == nil {
		return ""
	}
	switch node.Type {
	case "paragraph", "heading":
		return inlineText(node.Content)
	case "codeBlock":
		return "```\n" + inlineText(node.Content) + "\n```"
	case "blockquote":
		inner := renderBlocks(node.Content, depth)
		return "> " + strings.Join(inner, "\n> ")
	case "bulletList":
		return renderList(node, depth, func(int) string { return "- " })
	case "orderedList":
		return renderList(node, depth, func(i int) string { return fmt.Sprintf("%d. ", i+1) })
	case "rule":
		return "---"
	case "table":
		return renderTable(node)
	case "mediaSingle", "mediaGroup":
		return "[attachment]"
	default:
		// Unknown blocks contribute their children rather than vanish.
		return strings.Join(renderBlocks(node.Content, depth), "\n\n")
	}
}

func renderList(list *models.CommentNodeScheme, depth int, marker func(int) string) string {
	indent := strings.Repeat("  ", depth)
	var lines []string
	for i, item := range list.Content {
		blocks := renderBlocks(item.Content, depth+1)
		lines = append(lines, indent+marker(i)+strings.Join(blocks, "\n"))
	}
	return strings.Join(lines, "\n")
}

func renderTable(table *models.CommentNodeScheme) string {
	var rows []string
	for _, row := range table.Content {
		if row == nil || row.Type != "tableRow" {
			continue
		}
		var cells []string
		for _, cell := range row.Content {
			if cell == nil {
				continue
			}
			cells = append(cells, strings.Join(renderBlocks(cell.Content, 0), " "))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}

func inlineText(nodes []*models.CommentNodeScheme) string {
	var b strings.Builder
	for _, node := range nodes {
		renderInline(&b, node)
	}
	return b.String()
}

func renderInline(b *strings.Builder, node *models.CommentNodeScheme) {
	if node == nil {
		return
	}
	switch node.Type {
	case "text":
		b.WriteString(markedText(node))
	case "hardBreak":
		b.WriteString("\n")
	case "mention":
		b.WriteString(attrString(node.Attrs, "text"))
	case "emoji":
		b.WriteString(attrString(node.Attrs, "shortName"))
	case "inlineCard":
		b.WriteString(attrString(node.Attrs, "url"))
	default:
		for _, child := range node.Content {
			renderInline(b, child)
		}
	}
}

// markedText keeps the two marks that carry meaning in plain text:
// inline code keeps its backticks, links keep their target.
func markedText(node *models.CommentNodeScheme) string {
	text := node.Text
	for _, mark := range node.Marks {
		if mark == nil {
			continue
		}
		switch mark.Type {
		case "code":
			text = "`" + text + "`"
		case "link":
			if href := attrString(mark.Attrs, "href"); href != "" && href != node.Text {
				text = text + " (" + href + ")"
			}
		}
	}
	return text
}

func attrString(attrs map[string]interface{}, key string) string {
	if attrs == nil {
		return ""
	}
	if value, ok := attrs[key].(string); ok {
		return value
	}
	return ""
}
