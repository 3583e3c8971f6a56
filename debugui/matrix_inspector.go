package debugui

import (
	"fmt"
	"reflect"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/scenetree/ecs"
	"github.com/plus3/scenetree/transform"
)

var inspectorTypeDepth = reflect.TypeOf(transform.Depth{})

func NewMatrixInspectorComponent() MatrixInspectorComponent {
	return MatrixInspectorComponent{}
}

// Render shows the authored local values and the cached matrices of the
// selected entity.
func (mi *MatrixInspectorComponent) Render(storage *ecs.Storage, selected *ecs.EntityRef) {
	if !imgui.BeginV("Matrix Inspector", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}

	mi.selected = selected

	if mi.selected == nil {
		imgui.Text("No entity selected")
		imgui.End()
		return
	}

	id, ok := storage.ResolveEntityRef(mi.selected)
	if !ok {
		imgui.Text("Selected entity no longer exists")
		imgui.End()
		return
	}

	imgui.Text(fmt.Sprintf("Entity ID: %d", id))
	imgui.Text(fmt.Sprintf("Archetype: 0x%X", id.ArchetypeId()))

	if depth := ecs.ReadComponent[transform.Depth](storage, id); depth != nil {
		if level, ok := ecs.SharedValue[int](storage, depth.Handle); ok {
			imgui.Text(fmt.Sprintf("Depth Level: %d", level))
		}
	}
	imgui.Separator()

	if pos := ecs.ReadComponent[transform.Position](storage, id); pos != nil {
		imgui.Text(fmt.Sprintf("Position: (%.3f, %.3f, %.3f)", pos.Value.X, pos.Value.Y, pos.Value.Z))
	}
	if rot := ecs.ReadComponent[transform.Rotation](storage, id); rot != nil {
		imgui.Text(fmt.Sprintf("Rotation: (%.3f, %.3f, %.3f, %.3f)", rot.Value.X, rot.Value.Y, rot.Value.Z, rot.Value.W))
	}
	if scale := ecs.ReadComponent[transform.Scale](storage, id); scale != nil {
		imgui.Text(fmt.Sprintf("Scale: (%.3f, %.3f, %.3f)", scale.Value.X, scale.Value.Y, scale.Value.Z))
	}

	if ltp := ecs.ReadComponent[transform.LocalToParent](storage, id); ltp != nil {
		if imgui.TreeNodeStr("LocalToParent") {
			renderMatrix("ltp", ltp.Value)
			imgui.TreePop()
		}
	}
	if ltw := ecs.ReadComponent[transform.LocalToWorld](storage, id); ltw != nil {
		if imgui.TreeNodeStr("LocalToWorld") {
			renderMatrix("ltw", ltw.Value)
			imgui.TreePop()
		}
	}

	imgui.End()
}

// renderMatrix draws a column-major matrix as the usual row-major grid.
func renderMatrix(tableId string, m transform.Mat4) {
	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg
	if !imgui.BeginTableV("##"+tableId, 4, tableFlags, imgui.NewVec2(0, 0), 0) {
		return
	}
	for row := 0; row < 4; row++ {
		imgui.TableNextRow()
		for col := 0; col < 4; col++ {
			imgui.TableNextColumn()
			imgui.Text(fmt.Sprintf("%.4f", m.M[col*4+row]))
		}
	}
	imgui.EndTable()
}
