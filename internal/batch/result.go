package batch

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of one work item. Payload fields are flattened next
// to success/nodeId when encoded.
type Result struct {
	Success bool
	NodeID  string
	Payload map[string]any
	Error   string
}

func Succeeded(nodeID string, payload map[string]any) Result {
	return Result{Success: true, NodeID: nodeID, Payload: payload}
}

func Failed(nodeID, format string, args ...any) Result {
	return Result{Success: false, NodeID: nodeID, Error: fmt.Sprintf(format, args...)}
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["success"] = r.Success
	out["nodeId"] = r.NodeID
	if !r.Success {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

type Outcome struct {
	Results      []Result
	SuccessCount int
	FailureCount int
	// Chunks is the number of chunks fully processed.
	Chunks      int
	TotalChunks int
	TotalItems  int
}

// Success reports best-effort batch success: at least one item succeeded.
func (o Outcome) Success() bool {
	return o.SuccessCount > 0
}

func (o Outcome) Processed() int {
	return o.SuccessCount + o.FailureCount
}

func (o *Outcome) add(results []Result) {
	for _, r := range results {
		if r.Success {
			o.SuccessCount++
		} else {
			o.FailureCount++
		}
	}
	o.Results = append(o.Results, results...)
}
