package storage

import (
	hopdb "github.com/hopdb/hopdb"
)

// Wire messages of the shard service. Encoded with the msgpack codec;
// the row payloads inside stay in the core's schema-positional encoding.

// GetNeighborsRequest asks one shard for the neighbors of the vids it
// owns, over the given edge types.
type GetNeighborsRequest struct {
	Space     hopdb.GraphSpaceID `msgpack:"space"`
	VIDs      []hopdb.VID        `msgpack:"vids"`
	EdgeTypes []hopdb.EdgeType   `msgpack:"edge_types"`
	Filter    string             `msgpack:"filter"` // serialized pushdown filter, may be empty
	Props     []hopdb.PropDef    `msgpack:"props"`
}

// GetVertexPropsRequest asks one shard for vertex property rows.
type GetVertexPropsRequest struct {
	Space hopdb.GraphSpaceID `msgpack:"space"`
	VIDs  []hopdb.VID        `msgpack:"vids"`
	Props []hopdb.PropDef    `msgpack:"props"`
}

// GetEdgePropsRequest asks one shard for fully-keyed edge rows.
type GetEdgePropsRequest struct {
	Space hopdb.GraphSpaceID `msgpack:"space"`
	Keys  []hopdb.EdgeKey    `msgpack:"keys"`
	Props []hopdb.PropDef    `msgpack:"props"`
}

// ShardQueryResponse is one shard's neighbors/vertex-props reply.
type ShardQueryResponse struct {
	Resp *hopdb.QueryResponse `msgpack:"resp"`
}

// ShardEdgePropResponse is one shard's edge-props reply.
type ShardEdgePropResponse struct {
	Resp *hopdb.EdgePropResponse `msgpack:"resp"`
}
