package runner

// Label keys set on every tool container.
const (
	LabelProject  = "digestiflow.project"
	LabelFlowcell = "digestiflow.flowcell"
	LabelRunID    = "digestiflow.run_id"
	LabelTool     = "digestiflow.tool"
)

// BuildLabels creates the label set shared by all containers of one run.
func BuildLabels(flowcell, runID string) map[string]string {
	return map[string]string{
		LabelProject:  "true",
		LabelFlowcell: flowcell,
		LabelRunID:    runID,
	}
}

// withTool copies base and adds the tool label.
func withTool(base map[string]string, tool string) map[string]string {
	labels := make(map[string]string, len(base)+1)
	for k, v := range base {
		labels[k] = v
	}
	labels[LabelTool] = tool
	return labels
}
