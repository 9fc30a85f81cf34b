package activity

import (
	"context"
	"strings"
)

type frameKey struct{}

// frame is one in-flight activity. Frames form an immutable chain through the
// context, so each logical thread of control sees exactly its own stack.
type frame struct {
	parent *frame
	name   string
	depth  int
}

func push(ctx context.Context, name string) (context.Context, string) {
	parent, _ := ctx.Value(frameKey{}).(*frame)
	f := &frame{parent: parent, name: name, depth: 1}
	if parent != nil {
		f.depth = parent.depth + 1
	}
	return context.WithValue(ctx, frameKey{}, f), f.path()
}

func (f *frame) path() string {
	names := make([]string, f.depth)
	for cur := f; cur != nil; cur = cur.parent {
		names[cur.depth-1] = cur.name
	}
	return strings.Join(names, "/")
}

// Path returns the activity path of ctx: the names of all enclosing
// activities joined by "/", outermost first. It is empty outside any activity.
func Path(ctx context.Context) string {
	f, _ := ctx.Value(frameKey{}).(*frame)
	if f == nil {
		return ""
	}
	return f.path()
}

// Depth returns the number of activities enclosing ctx.
func Depth(ctx context.Context) int {
	f, _ := ctx.Value(frameKey{}).(*frame)
	if f == nil {
		return 0
	}
	return f.depth
}
