package storage

import (
	"context"
	"path/filepath"
	"testing"

	hopdb "github.com/hopdb/hopdb"
)

// setupStore opens a shard with space 1: tag person(1){name,age}, edges
// friend(1){since}, like(2){rating}, and a small graph:
//
//	1 --friend--> 2    1 --friend--> 3    1 --like(rating=5)--> 2
func setupStore(t *testing.T) (*Store, *hopdb.MemoryRegistry) {
	t.Helper()
	reg := hopdb.NewMemoryRegistry()
	reg.AddTag(1, "person", 1, hopdb.NewSchema().
		Append("name", hopdb.TypeString).
		Append("age", hopdb.TypeInt))
	reg.AddEdge(1, "friend", 1, hopdb.NewSchema().Append("since", hopdb.TypeInt))
	reg.AddEdge(1, "like", 2, hopdb.NewSchema().Append("rating", hopdb.TypeInt))

	store, err := OpenStore(filepath.Join(t.TempDir(), "shard.db"), reg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InsertVertex(1, 1, 1, []hopdb.Value{hopdb.StrValue("a"), hopdb.IntValue(30)}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertVertex(1, 2, 1, []hopdb.Value{hopdb.StrValue("b"), hopdb.IntValue(25)}); err != nil {
		t.Fatal(err)
	}
	edges := []struct {
		src, dst hopdb.VID
		et       hopdb.EdgeType
		props    []hopdb.Value
	}{
		{1, 2, 1, []hopdb.Value{hopdb.IntValue(2010)}},
		{1, 3, 1, []hopdb.Value{hopdb.IntValue(2012)}},
		{1, 2, 2, []hopdb.Value{hopdb.IntValue(5)}},
	}
	for _, e := range edges {
		key := hopdb.EdgeKey{Src: e.src, Dst: e.dst, Type: e.et}
		if err := store.InsertEdge(1, key, e.props); err != nil {
			t.Fatal(err)
		}
	}
	return store, reg
}

func edgeDstProp(t hopdb.EdgeType) hopdb.PropDef {
	return hopdb.PropDef{Owner: hopdb.OwnerEdge, Name: hopdb.PropDst, EdgeType: t}
}

func TestStore_GetNeighborsForward(t *testing.T) {
	store, _ := setupStore(t)

	resp, err := store.GetNeighbors(context.Background(), &GetNeighborsRequest{
		Space:     1,
		VIDs:      []hopdb.VID{1},
		EdgeTypes: []hopdb.EdgeType{1},
		Props:     []hopdb.PropDef{edgeDstProp(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Resp.Vertices) != 1 {
		t.Fatalf("expected 1 vertex, got %d", len(resp.Resp.Vertices))
	}
	vdata := resp.Resp.Vertices[0]
	if len(vdata.EdgeData) != 1 || len(vdata.EdgeData[0].Edges) != 2 {
		t.Fatalf("expected 2 friend edges, got %+v", vdata.EdgeData)
	}
	dsts := map[hopdb.VID]bool{}
	for _, e := range vdata.EdgeData[0].Edges {
		dsts[e.Dst] = true
	}
	if !dsts[2] || !dsts[3] {
		t.Fatalf("expected destinations {2,3}, got %v", dsts)
	}
}

func TestStore_GetNeighborsReverse(t *testing.T) {
	store, _ := setupStore(t)

	resp, err := store.GetNeighbors(context.Background(), &GetNeighborsRequest{
		Space:     1,
		VIDs:      []hopdb.VID{2},
		EdgeTypes: []hopdb.EdgeType{-2},
		Props: []hopdb.PropDef{
			edgeDstProp(-2),
			{Owner: hopdb.OwnerEdge, Name: hopdb.PropRank, EdgeType: -2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Resp.Vertices) != 1 {
		t.Fatalf("expected 1 vertex, got %d", len(resp.Resp.Vertices))
	}
	edges := resp.Resp.Vertices[0].EdgeData[0].Edges
	if len(edges) != 1 || edges[0].Dst != 1 {
		t.Fatalf("expected reverse edge to 1, got %+v", edges)
	}
	// The reverse row still decodes its reserved columns.
	schema := resp.Resp.EdgeSchema[-2]
	rank, err := hopdb.DecodeField(schema, edges[0].Props, hopdb.PropRank)
	if err != nil {
		t.Fatal(err)
	}
	if rank.I != 0 {
		t.Fatalf("expected rank 0, got %d", rank.I)
	}
}

func TestStore_GetNeighborsPushdownFilter(t *testing.T) {
	store, _ := setupStore(t)

	filter, err := hopdb.EncodeFilter(&hopdb.Expression{
		Kind: hopdb.ExprRelational,
		Op:   ">=",
		Left: &hopdb.Expression{Kind: hopdb.ExprAliasProp, Ref: "friend", Prop: "since"},
		Right: &hopdb.Expression{
			Kind: hopdb.ExprLiteral, Lit: hopdb.IntValue(2012),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := store.GetNeighbors(context.Background(), &GetNeighborsRequest{
		Space:     1,
		VIDs:      []hopdb.VID{1},
		EdgeTypes: []hopdb.EdgeType{1},
		Filter:    filter,
		Props:     []hopdb.PropDef{edgeDstProp(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	edges := resp.Resp.Vertices[0].EdgeData[0].Edges
	if len(edges) != 1 || edges[0].Dst != 3 {
		t.Fatalf("expected only the since>=2012 edge to 3, got %+v", edges)
	}
}

func TestStore_GetVertexProps(t *testing.T) {
	store, _ := setupStore(t)

	resp, err := store.GetVertexProps(context.Background(), &GetVertexPropsRequest{
		Space: 1,
		VIDs:  []hopdb.VID{2, 99},
		Props: []hopdb.PropDef{{Owner: hopdb.OwnerDest, Name: "name", TagID: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Vertex 99 doesn't exist; only 2 comes back.
	if len(resp.Resp.Vertices) != 1 || resp.Resp.Vertices[0].VertexID != 2 {
		t.Fatalf("expected only vertex 2, got %+v", resp.Resp.Vertices)
	}
	schema := resp.Resp.VertexSchema[1]
	v, err := hopdb.DecodeField(schema, resp.Resp.Vertices[0].TagData[0].Data, "name")
	if err != nil {
		t.Fatal(err)
	}
	if v.S != "b" {
		t.Fatalf("expected b, got %q", v.S)
	}
}

func TestStore_GetEdgeProps(t *testing.T) {
	store, _ := setupStore(t)

	resp, err := store.GetEdgeProps(context.Background(), &GetEdgePropsRequest{
		Space: 1,
		Keys:  []hopdb.EdgeKey{{Src: 1, Dst: 2, Type: 2, Rank: 0}},
		Props: []hopdb.PropDef{{Owner: hopdb.OwnerEdge, Name: "rating", EdgeType: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Resp.Data) != 1 {
		t.Fatalf("expected 1 row, got %d", len(resp.Resp.Data))
	}
	schema := resp.Resp.Schema
	for name, want := range map[string]int64{
		hopdb.PropSrc:  1,
		hopdb.PropDst:  2,
		hopdb.PropType: 2,
		hopdb.PropRank: 0,
		"rating":       5,
	} {
		v, err := hopdb.DecodeField(schema, resp.Resp.Data[0], name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if v.I != want {
			t.Fatalf("%s: expected %d, got %d", name, want, v.I)
		}
	}
}

func TestShardFor_Stable(t *testing.T) {
	if shardFor(7, 3) != shardFor(7, 3) {
		t.Fatal("shard mapping must be deterministic")
	}
	if got := shardFor(-5, 3); got < 0 || got > 2 {
		t.Fatalf("negative vid must map into range, got %d", got)
	}
}

func TestCompleteness(t *testing.T) {
	if got := completeness(nil); got != 100 {
		t.Fatalf("no shards contacted: expected 100, got %d", got)
	}
	calls := []shardCall{{err: nil}, {err: context.Canceled}}
	if got := completeness(calls); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	calls = []shardCall{{err: context.Canceled}}
	if got := completeness(calls); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
