// Package grid defines the data grid capability a clustered process joins:
// a membership view plus named maps shared by all members.
package grid

import (
	"context"

	"github.com/codewandler/stream-go/ports/kv"
)

type Grid interface {
	// NodeID identifies this process inside the grid.
	NodeID() string
	// Members lists the node ids currently part of the grid, in lexical order.
	// An empty list means the grid has no active members.
	Members(ctx context.Context) ([]string, error)
	// Map returns the named map shared by every member.
	Map(ctx context.Context, name string) (kv.Store, error)
	// Leave removes this node from the membership.
	Leave(ctx context.Context) error
}
