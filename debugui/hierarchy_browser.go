package debugui

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/scenetree/ecs"
	"github.com/plus3/scenetree/transform"
)

var (
	browserTypeParent        = reflect.TypeOf(transform.Parent{})
	browserTypeLocalToWorld  = reflect.TypeOf(transform.LocalToWorld{})
	browserTypeStatic        = reflect.TypeOf(transform.Static{})
	browserTypePendingFrozen = reflect.TypeOf(transform.PendingFrozen{})
	browserTypeFrozen        = reflect.TypeOf(transform.Frozen{})
)

func NewHierarchyBrowserComponent() HierarchyBrowserComponent {
	return HierarchyBrowserComponent{
		showFrozen: true,
	}
}

// Render draws the scene tree, roots first, children nested beneath their
// parents. Clicking a node selects it for the matrix inspector.
func (hb *HierarchyBrowserComponent) Render(storage *ecs.Storage) {
	if !imgui.BeginV("Hierarchy Browser", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}

	imgui.InputTextWithHint("##filter", "Filter roots...", &hb.filterText, imgui.InputTextFlagsNone, nil)
	imgui.SameLine()
	imgui.Checkbox("Show frozen", &hb.showFrozen)
	imgui.Separator()

	state := transform.State(storage)
	roots := collectRoots(storage)

	for _, root := range roots {
		if hb.filterText != "" && !strings.Contains(fmt.Sprintf("%d", root.Id), strings.ToLower(hb.filterText)) {
			continue
		}
		hb.renderNode(storage, state.Tracker, root)
	}

	if len(roots) == 0 {
		imgui.Text("No roots in scene")
	}

	imgui.End()
}

func (hb *HierarchyBrowserComponent) renderNode(storage *ecs.Storage, tracker *transform.Hierarchy, ref *ecs.EntityRef) {
	id, ok := storage.ResolveEntityRef(ref)
	if !ok {
		return
	}

	if !hb.showFrozen && storage.HasComponent(id, browserTypeFrozen) {
		return
	}

	children := tracker.Children(ref)
	label := fmt.Sprintf("entity %d%s##%d", id, nodeBadges(storage, id, len(children)), ref.Seq)
	isSelected := hb.selected != nil && hb.selected.Seq == ref.Seq

	if len(children) == 0 {
		if imgui.SelectableBoolV(label, isSelected, imgui.SelectableFlagsNone, imgui.NewVec2(0, 0)) {
			hb.selected = ref
		}
		return
	}

	open := imgui.TreeNodeStr(label)
	if imgui.IsItemClicked() {
		hb.selected = ref
	}
	if open {
		for _, child := range children {
			hb.renderNode(storage, tracker, child)
		}
		imgui.TreePop()
	}
}

// GetSelected returns the last clicked node, or nil when nothing is selected.
func (hb *HierarchyBrowserComponent) GetSelected() *ecs.EntityRef {
	return hb.selected
}

func nodeBadges(storage *ecs.Storage, id ecs.EntityId, childCount int) string {
	var badges strings.Builder
	if childCount > 0 {
		fmt.Fprintf(&badges, " (%d children)", childCount)
	}
	if storage.HasComponent(id, browserTypeFrozen) {
		badges.WriteString(" [frozen]")
	} else if storage.HasComponent(id, browserTypePendingFrozen) {
		badges.WriteString(" [pending]")
	} else if storage.HasComponent(id, browserTypeStatic) {
		badges.WriteString(" [static]")
	}
	return badges.String()
}

// collectRoots gathers every entity that carries a world matrix but no
// parent, sorted by id for a stable tree layout.
func collectRoots(storage *ecs.Storage) []*ecs.EntityRef {
	var roots []*ecs.EntityRef
	storage.Archetypes(func(archetype *ecs.Archetype) bool {
		if !archetype.HasComponent(browserTypeLocalToWorld) || archetype.HasComponent(browserTypeParent) {
			return true
		}
		for entityId := range archetype.Iter() {
			roots = append(roots, storage.CreateEntityRef(entityId))
		}
		return true
	})

	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Id < roots[j].Id
	})
	return roots
}
