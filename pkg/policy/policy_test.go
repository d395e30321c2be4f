package policy_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catalpa-io/mnemo/pkg/policy"
)

const testPolicy = `package mnemo

default allow = false

allow if {
	input.action == "create"
	input.collection == "conversations"
}

allow if {
	input.action == "remove"
	input.agent_id == "admin"
}
`

func writePolicy(t *testing.T) string {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "memory.rego"), []byte(testPolicy), 0o644))
	return dir
}

func TestGateAllowsAndDenies(t *testing.T) {
	ctx := context.Background()
	gate, err := policy.Load(ctx, writePolicy(t))
	gt.NoError(t, err)

	gt.NoError(t, gate.Allow(ctx, policy.Input{Action: "create", Collection: "conversations"}))

	err = gate.Allow(ctx, policy.Input{Action: "create", Collection: "secrets"})
	gt.True(t, errors.Is(err, policy.ErrDenied))

	gt.NoError(t, gate.Allow(ctx, policy.Input{Action: "remove", AgentID: "admin"}))
	err = gate.Allow(ctx, policy.Input{Action: "remove", AgentID: "guest"})
	gt.True(t, errors.Is(err, policy.ErrDenied))
}

func TestUnconfiguredGateAllowsAll(t *testing.T) {
	ctx := context.Background()
	gate, err := policy.Load(ctx, "")
	gt.NoError(t, err)
	gt.NoError(t, gate.Allow(ctx, policy.Input{Action: "create", Collection: "anything"}))
}

func TestBrokenPolicyFailsFast(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rego"), []byte("package mnemo\n\nallow if {"), 0o644))

	_, err := policy.Load(context.Background(), dir)
	gt.Error(t, err)
}
