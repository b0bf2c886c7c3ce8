package engine

import (
	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/reachability"
)

// Direction selects which side of an edge a query follows.
type Direction string

const (
	Callers Direction = "callers"
	Callees Direction = "callees"
)

// Neighbor is one function adjacent to a query match.
type Neighbor struct {
	ID       callgraph.FunctionID `json:"id"`
	CallType callgraph.CallType   `json:"call_type"`
}

// Neighborhood lists the direct neighbors of one function matching a query.
type Neighborhood struct {
	Function  callgraph.FunctionID `json:"function"`
	Status    reachability.Status  `json:"status"`
	Direction Direction            `json:"direction"`
	Neighbors []Neighbor           `json:"neighbors"`
}

// Neighbors matches name by simple key and returns the direct callers or
// callees of every match. An edge repeated with several call types is
// reported once, with the type of its first insertion.
func (r *Result) Neighbors(name string, dir Direction) []Neighborhood {
	matches := r.Graph.FindByName(name)
	if len(matches) == 0 {
		return nil
	}

	callType := make(map[[2]callgraph.FunctionID]callgraph.CallType)
	for _, c := range r.Graph.GetAllCalls() {
		key := [2]callgraph.FunctionID{c.Caller, c.Callee}
		if _, ok := callType[key]; !ok {
			callType[key] = c.CallType
		}
	}

	out := make([]Neighborhood, 0, len(matches))
	for _, id := range matches {
		h := Neighborhood{Function: id, Direction: dir, Neighbors: []Neighbor{}}
		if r.Reachability != nil {
			h.Status = r.Reachability.Status(id)
		}
		var ids []callgraph.FunctionID
		if dir == Callers {
			ids = r.Graph.GetCallers(id)
		} else {
			ids = r.Graph.GetCallees(id)
		}
		for _, n := range ids {
			key := [2]callgraph.FunctionID{id, n}
			if dir == Callers {
				key = [2]callgraph.FunctionID{n, id}
			}
			h.Neighbors = append(h.Neighbors, Neighbor{ID: n, CallType: callType[key]})
		}
		out = append(out, h)
	}
	return out
}

// Dead lists dead-code candidates at or above minConfidence.
func (r *Result) Dead(minConfidence float64) []reachability.Classification {
	if r.Reachability == nil {
		return nil
	}
	return r.Reachability.Dead(minConfidence)
}
