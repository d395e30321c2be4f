package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

var (
	// ErrDenied is returned when a write is rejected by policy.
	ErrDenied = goerr.New("operation denied by policy")
)

// Input is what a policy rule sees for one write operation.
type Input struct {
	Action     string `json:"action"` // "create" or "remove"
	Collection string `json:"collection"`
	RoomID     string `json:"room_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// Gate evaluates write operations against Rego policies. A zero-value or nil
// Gate allows everything; policies are opt-in.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// Load reads all .rego files from policyDir and prepares the data.mnemo.allow
// query. A missing or empty directory yields an allow-all gate; a present but
// broken policy is a configuration error and fails immediately.
func Load(ctx context.Context, policyDir string) (*Gate, error) {
	if policyDir == "" {
		return &Gate{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return &Gate{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.mnemo.allow"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query", goerr.V("dir", policyDir))
	}

	return &Gate{query: &prepared}, nil
}

// Allow evaluates the gate for one operation. Policy evaluation errors are
// treated as denials; a write must never slip through a broken policy.
func (g *Gate) Allow(ctx context.Context, input Input) error {
	if g == nil || g.query == nil {
		return nil
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return goerr.Wrap(err, "failed to evaluate policy")
	}
	if !rs.Allowed() {
		return goerr.Wrap(ErrDenied, "policy rejected operation",
			goerr.V("action", input.Action),
			goerr.V("collection", input.Collection))
	}

	return nil
}
