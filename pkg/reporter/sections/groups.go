package sections

import (
	"fmt"
	"strings"

	"github.com/pingcap/report-engine/pkg/engine"
	"github.com/pingcap/report-engine/pkg/reporter/formats"
)

// GroupsSection renders the group instances found in the report data
type GroupsSection struct{}

// NewGroupsSection creates a new groups section
func NewGroupsSection() *GroupsSection {
	return &GroupsSection{}
}

func (s *GroupsSection) Name() string {
	return "Groups"
}

func (s *GroupsSection) HasContent(result *engine.Result) bool {
	return len(result.Groups) > 0
}

func (s *GroupsSection) Render(format formats.Format, result *engine.Result, _ *formats.Options) (string, error) {
	var content strings.Builder
	var write func(insts []*engine.GroupInstance, depth int)
	switch format {
	case formats.TextFormat:
		content.WriteString("GROUPS:\n")
		write = func(insts []*engine.GroupInstance, depth int) {
			for _, g := range insts {
				content.WriteString(fmt.Sprintf("  %s[%s] %s: rows %d-%d (%d)\n",
					strings.Repeat("  ", depth), g.Group, formatKey(g.Key), g.Start, g.End-1, g.Rows()))
				write(g.Children, depth+1)
			}
		}
	case formats.MarkdownFormat:
		content.WriteString("## Groups\n\n")
		content.WriteString("| Group | Key | First Row | Last Row | Rows |\n")
		content.WriteString("|-------|-----|-----------|----------|------|\n")
		write = func(insts []*engine.GroupInstance, depth int) {
			for _, g := range insts {
				content.WriteString(fmt.Sprintf("| %s%s | %s | %d | %d | %d |\n",
					strings.Repeat("&nbsp;&nbsp;", depth), g.Group, formatKey(g.Key), g.Start, g.End-1, g.Rows()))
				write(g.Children, depth+1)
			}
		}
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	write(result.Groups, 0)
	return content.String(), nil
}
