package process

import (
	"context"

	ps "github.com/shirou/gopsutil/v3/process"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

// treeTerminator enumerates the descendants of a pid and signals every
// member, children before parents.
type treeTerminator struct {
	terminate func(p *ps.Process) error
}

func newTreeTerminator(terminate func(p *ps.Process) error) *treeTerminator {
	return &treeTerminator{terminate: terminate}
}

func (t *treeTerminator) Name() string {
	return "process-tree"
}

func (t *treeTerminator) Terminate(pid int) error {
	return t.each(pid, t.terminate)
}

func (t *treeTerminator) Kill(pid int) error {
	return t.each(pid, func(p *ps.Process) error {
		return p.KillWithContext(context.Background())
	})
}

func (t *treeTerminator) each(pid int, fn func(p *ps.Process) error) error {
	tree, err := ProcessTree(context.Background(), pid)
	if err != nil {
		return err
	}

	collection := errors.NewErrorCollection()
	for i := len(tree) - 1; i >= 0; i-- {
		if err := fn(tree[i]); err != nil && !IsNoSuchProcess(err) {
			collection.Add(errors.NewTerminationError("failed to signal process", err).WithContext("pid", tree[i].Pid))
		}
	}
	return collection.ToError()
}

// ProcessTree returns pid followed by all of its descendants, breadth first
func ProcessTree(ctx context.Context, pid int) ([]*ps.Process, error) {
	root, err := ps.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}

	tree := []*ps.Process{root}
	seen := map[int32]bool{root.Pid: true}
	for i := 0; i < len(tree); i++ {
		children, err := tree[i].ChildrenWithContext(ctx)
		if err != nil {
			// no children, or the member already exited
			continue
		}
		for _, child := range children {
			if !seen[child.Pid] {
				seen[child.Pid] = true
				tree = append(tree, child)
			}
		}
	}
	return tree, nil
}
