package tmux

import (
	"fmt"
	"strings"
)

// LayoutNodeType is the node category in pane layout tree.
type LayoutNodeType string

const (
	LayoutLeaf  LayoutNodeType = "leaf"
	LayoutSplit LayoutNodeType = "split"
)

// SplitDirection is the pane split direction.
type SplitDirection string

const (
	// SplitHorizontal places children side by side.
	SplitHorizontal SplitDirection = "horizontal"
	// SplitVertical stacks children top to bottom.
	SplitVertical SplitDirection = "vertical"
)

// LayoutNode is a binary tree representation of a window's pane layout.
// Geometry fields are filled by applyLayout.
type LayoutNode struct {
	Type      LayoutNodeType `json:"type"`
	Direction SplitDirection `json:"direction,omitempty"`
	Ratio     float64        `json:"ratio,omitempty"`
	PaneID    int            `json:"pane_id"`
	Children  [2]*LayoutNode `json:"children,omitempty"`

	Width  int `json:"width"`
	Height int `json:"height"`
	Xoff   int `json:"xoff"`
	Yoff   int `json:"yoff"`
}

func newLeafLayout(paneID int) *LayoutNode {
	return &LayoutNode{
		Type:   LayoutLeaf,
		PaneID: paneID,
	}
}

func splitLayout(root *LayoutNode, targetPaneID int, direction SplitDirection, newPaneID int) (*LayoutNode, bool) {
	if root == nil {
		return nil, false
	}
	if root.Type == LayoutLeaf && root.PaneID == targetPaneID {
		return &LayoutNode{
			Type:      LayoutSplit,
			Direction: direction,
			Ratio:     0.5,
			Children: [2]*LayoutNode{
				newLeafLayout(targetPaneID),
				newLeafLayout(newPaneID),
			},
		}, true
	}
	if root.Type != LayoutSplit {
		return root, false
	}

	if next, ok := splitLayout(root.Children[0], targetPaneID, direction, newPaneID); ok {
		root.Children[0] = next
		return root, true
	}
	if next, ok := splitLayout(root.Children[1], targetPaneID, direction, newPaneID); ok {
		root.Children[1] = next
		return root, true
	}
	return root, false
}

// removePaneFromLayout removes one pane leaf, collapsing its parent split.
func removePaneFromLayout(root *LayoutNode, paneID int) (*LayoutNode, bool) {
	if root == nil {
		return nil, false
	}
	if root.Type == LayoutLeaf {
		if root.PaneID == paneID {
			return nil, true
		}
		return root, false
	}

	left, removedLeft := removePaneFromLayout(root.Children[0], paneID)
	right, removedRight := removePaneFromLayout(root.Children[1], paneID)
	if !removedLeft && !removedRight {
		return root, false
	}
	root.Children[0] = left
	root.Children[1] = right

	switch {
	case left == nil && right == nil:
		return nil, true
	case left == nil:
		return right, true
	case right == nil:
		return left, true
	default:
		return root, true
	}
}

// LayoutPreset identifies a named layout arrangement.
type LayoutPreset string

const (
	PresetEvenHorizontal LayoutPreset = "even-horizontal"
	PresetEvenVertical   LayoutPreset = "even-vertical"
	PresetMainVertical   LayoutPreset = "main-vertical"
	PresetMainHorizontal LayoutPreset = "main-horizontal"
	PresetTiled          LayoutPreset = "tiled"
)

// ParseLayoutPreset resolves a preset name.
func ParseLayoutPreset(name string) (LayoutPreset, bool) {
	switch p := LayoutPreset(name); p {
	case PresetEvenHorizontal, PresetEvenVertical, PresetMainVertical, PresetMainHorizontal, PresetTiled:
		return p, true
	}
	return "", false
}

// BuildPresetLayout creates a layout tree from a preset for the given pane IDs.
func BuildPresetLayout(preset LayoutPreset, paneIDs []int) *LayoutNode {
	if len(paneIDs) == 0 {
		return nil
	}
	if len(paneIDs) == 1 {
		return newLeafLayout(paneIDs[0])
	}
	switch preset {
	case PresetEvenVertical:
		return buildEvenSplit(paneIDs, SplitVertical)
	case PresetMainVertical:
		return buildMainSplit(paneIDs, SplitHorizontal, SplitVertical)
	case PresetMainHorizontal:
		return buildMainSplit(paneIDs, SplitVertical, SplitHorizontal)
	case PresetTiled:
		return buildTiledLayout(paneIDs)
	default:
		return buildEvenSplit(paneIDs, SplitHorizontal)
	}
}

func buildEvenSplit(paneIDs []int, dir SplitDirection) *LayoutNode {
	nodes := make([]*LayoutNode, 0, len(paneIDs))
	for _, id := range paneIDs {
		nodes = append(nodes, newLeafLayout(id))
	}
	return buildEvenSplitNodes(nodes, dir)
}

// buildMainSplit creates a main pane (60%) + evenly split sub panes.
func buildMainSplit(paneIDs []int, mainDir, subDir SplitDirection) *LayoutNode {
	if len(paneIDs) <= 2 {
		return buildEvenSplit(paneIDs, mainDir)
	}
	return &LayoutNode{
		Type:      LayoutSplit,
		Direction: mainDir,
		Ratio:     0.6,
		Children: [2]*LayoutNode{
			newLeafLayout(paneIDs[0]),
			buildEvenSplit(paneIDs[1:], subDir),
		},
	}
}

func buildTiledLayout(paneIDs []int) *LayoutNode {
	n := len(paneIDs)
	if n <= 2 {
		return buildEvenSplit(paneIDs, SplitHorizontal)
	}
	cols := 2
	if n > 4 {
		cols = 3
	}
	rows := (n + cols - 1) / cols
	rowNodes := make([]*LayoutNode, 0, rows)
	for r := 0; r < rows; r++ {
		start := r * cols
		end := min(start+cols, n)
		rowNodes = append(rowNodes, buildEvenSplit(paneIDs[start:end], SplitHorizontal))
	}
	return buildEvenSplitNodes(rowNodes, SplitVertical)
}

func buildEvenSplitNodes(nodes []*LayoutNode, dir SplitDirection) *LayoutNode {
	if len(nodes) == 1 {
		return nodes[0]
	}
	mid := len(nodes) / 2
	return &LayoutNode{
		Type:      LayoutSplit,
		Direction: dir,
		Ratio:     float64(mid) / float64(len(nodes)),
		Children: [2]*LayoutNode{
			buildEvenSplitNodes(nodes[:mid], dir),
			buildEvenSplitNodes(nodes[mid:], dir),
		},
	}
}

// resizeLayout assigns geometry to every node. Splits reserve one cell for
// the border between children.
func resizeLayout(node *LayoutNode, xoff, yoff, width, height int) {
	if node == nil {
		return
	}
	node.Xoff, node.Yoff = xoff, yoff
	node.Width, node.Height = max(width, 1), max(height, 1)
	if node.Type != LayoutSplit {
		return
	}
	ratio := node.Ratio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	if node.Direction == SplitHorizontal {
		first := max(int(float64(node.Width-1)*ratio), 1)
		second := max(node.Width-1-first, 1)
		resizeLayout(node.Children[0], xoff, yoff, first, node.Height)
		resizeLayout(node.Children[1], xoff+first+1, yoff, second, node.Height)
		return
	}
	first := max(int(float64(node.Height-1)*ratio), 1)
	second := max(node.Height-1-first, 1)
	resizeLayout(node.Children[0], xoff, yoff, node.Width, first)
	resizeLayout(node.Children[1], xoff, yoff+first+1, node.Width, second)
}

// applyLayoutLocked recomputes pane geometry from the window layout.
// REQUIRES: m.mu must be held by the caller.
func (m *SessionManager) applyLayoutLocked(w *TmuxWindow) {
	if w.Layout == nil {
		return
	}
	resizeLayout(w.Layout, 0, 0, w.Width, w.Height)
	var walk func(n *LayoutNode)
	walk = func(n *LayoutNode) {
		if n == nil {
			return
		}
		if n.Type == LayoutLeaf {
			if p, ok := m.panes[n.PaneID]; ok {
				p.Xoff, p.Yoff = n.Xoff, n.Yoff
				p.Width, p.Height = n.Width, n.Height
			}
			return
		}
		walk(n.Children[0])
		walk(n.Children[1])
	}
	walk(w.Layout)
}

// layoutString renders the tree in tmux's "csum,WxH,X,Y{...}" layout form.
// Runs of same-direction splits flatten into one cell list.
func layoutString(root *LayoutNode) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	dumpLayout(&b, root)
	body := b.String()
	return fmt.Sprintf("%04x,%s", layoutChecksum(body), body)
}

func dumpLayout(b *strings.Builder, node *LayoutNode) {
	fmt.Fprintf(b, "%dx%d,%d,%d", node.Width, node.Height, node.Xoff, node.Yoff)
	if node.Type == LayoutLeaf {
		fmt.Fprintf(b, ",%d", node.PaneID)
		return
	}
	open, closing := byte('{'), byte('}')
	if node.Direction == SplitVertical {
		open, closing = '[', ']'
	}
	b.WriteByte(open)
	for i, child := range flattenSplit(node, nil) {
		if i > 0 {
			b.WriteByte(',')
		}
		dumpLayout(b, child)
	}
	b.WriteByte(closing)
}

func flattenSplit(node *LayoutNode, out []*LayoutNode) []*LayoutNode {
	for _, child := range node.Children {
		if child == nil {
			continue
		}
		if child.Type == LayoutSplit && child.Direction == node.Direction {
			out = flattenSplit(child, out)
			continue
		}
		out = append(out, child)
	}
	return out
}

func layoutChecksum(s string) uint16 {
	var csum uint16
	for i := 0; i < len(s); i++ {
		csum = (csum >> 1) + ((csum & 1) << 15)
		csum += uint16(s[i])
	}
	return csum
}
