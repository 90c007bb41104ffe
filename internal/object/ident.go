package object

import "github.com/roach88/synccore/internal/ir"

// Resolver answers name to id lookups for one object class on one node.
type Resolver[T any] struct {
	Local  *Table[T]
	Global *Global
	Node   uint32
	Nodes  uint32
}

// Ident resolves name following the node search rules of the classic API:
// ir.SearchAllNodes looks locally first and then in the global table,
// ir.SearchLocalNode and the local node number look only locally, and any
// other node looks only at objects that node announced.
func (r Resolver[T]) Ident(name ir.Name, node uint32) (ir.ObjectID, ir.Status) {
	if !name.Valid() {
		return 0, ir.StatusInvalidName
	}
	if node != ir.SearchAllNodes && node != ir.SearchLocalNode && node > r.Nodes {
		return 0, ir.StatusInvalidNode
	}

	if node == ir.SearchAllNodes || node == ir.SearchLocalNode || node == r.Node {
		if id, ok := r.Local.NameToID(name); ok {
			return id, ir.StatusSuccessful
		}
		if node != ir.SearchAllNodes {
			return 0, ir.StatusInvalidName
		}
	}
	if r.Global == nil {
		return 0, ir.StatusInvalidName
	}
	if id, ok := r.Global.Lookup(r.Local.api, r.Local.class, name, node); ok {
		return id, ir.StatusSuccessful
	}
	return 0, ir.StatusInvalidName
}
