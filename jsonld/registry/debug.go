package registry

// DebugNode summarizes one accepted node
type DebugNode struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
}

// DebugView lists accepted and blocked registrations. It is diagnostic
// output and callers must gate access to it.
type DebugView struct {
	Accepted   []DebugNode `json:"accepted"`
	Blocked    []Block     `json:"blocked"`
	OutputDone bool        `json:"output_done"`
}

// Debug snapshots the registry
func (r *Registry) Debug() DebugView {
	view := DebugView{
		Accepted:   make([]DebugNode, 0, len(r.accepted)),
		Blocked:    r.Blocked(),
		OutputDone: r.outputDone,
	}
	if view.Blocked == nil {
		view.Blocked = []Block{}
	}
	for _, e := range r.accepted {
		view.Accepted = append(view.Accepted, DebugNode{
			Type:   e.Node.PrimaryType(),
			ID:     e.Node.ID(),
			Source: e.Source,
		})
	}
	return view
}
