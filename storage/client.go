package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	hopdb "github.com/hopdb/hopdb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PartErrRPC is the failure code recorded for a shard whose RPC failed.
const PartErrRPC int8 = -1

// Client is the fan-out storage client: one sub-request per shard
// endpoint, issued concurrently, gathered into a single response with a
// completeness percentage. It implements hopdb.StorageClient.
//
// Vertices route to shards by id; edge keys by their source vertex.
// A failed shard lowers completeness and lands in FailedParts — the
// executor decides whether partial data is acceptable.
type Client struct {
	endpoints []string
	conns     []*grpc.ClientConn
	log       *slog.Logger
}

// ClientOption configures the storage client.
type ClientOption func(*Client)

// WithLogger sets the logger for the storage client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient dials every shard endpoint. Connections are lazy; a shard
// that is down surfaces as a failed part at request time, not here.
func NewClient(endpoints []string, opts ...ClientOption) (*Client, error) {
	c := &Client{endpoints: endpoints, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	for _, ep := range endpoints {
		conn, err := grpc.NewClient(ep,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.conns = append(c.conns, conn)
	}
	return c, nil
}

// Close tears down all shard connections.
func (c *Client) Close() {
	for _, conn := range c.conns {
		if conn != nil {
			conn.Close()
		}
	}
}

// shardFor maps a vertex id to its shard index.
func shardFor(v hopdb.VID, shards int) int {
	return int(((int64(v) % int64(shards)) + int64(shards)) % int64(shards))
}

// shardCall is one outstanding sub-request.
type shardCall struct {
	shard   int
	latency time.Duration
	results int
	err     error
}

func (c *Client) GetNeighbors(ctx context.Context, space hopdb.GraphSpaceID, vids []hopdb.VID,
	edgeTypes []hopdb.EdgeType, pushdownFilter string, props []hopdb.PropDef) (*hopdb.QueryRpcResponse, error) {

	byShard := make(map[int][]hopdb.VID)
	for _, v := range vids {
		s := shardFor(v, len(c.conns))
		byShard[s] = append(byShard[s], v)
	}

	out := &hopdb.QueryRpcResponse{}
	calls := make([]shardCall, 0, len(byShard))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for shard, shardVids := range byShard {
		wg.Add(1)
		go func(shard int, shardVids []hopdb.VID) {
			defer wg.Done()
			req := &GetNeighborsRequest{
				Space:     space,
				VIDs:      shardVids,
				EdgeTypes: edgeTypes,
				Filter:    pushdownFilter,
				Props:     props,
			}
			resp := new(ShardQueryResponse)
			start := time.Now()
			err := c.conns[shard].Invoke(ctx, methodGetNeighbors, req, resp)
			call := shardCall{shard: shard, latency: time.Since(start), err: err}
			mu.Lock()
			defer mu.Unlock()
			if err == nil && resp.Resp != nil {
				call.results = len(resp.Resp.Vertices)
				out.Responses = append(out.Responses, resp.Resp)
			}
			calls = append(calls, call)
		}(shard, shardVids)
	}
	wg.Wait()

	c.finishStats(&out.RpcStats, calls, "get neighbors")
	return out, nil
}

func (c *Client) GetVertexProps(ctx context.Context, space hopdb.GraphSpaceID, vids []hopdb.VID,
	props []hopdb.PropDef) (*hopdb.QueryRpcResponse, error) {

	byShard := make(map[int][]hopdb.VID)
	for _, v := range vids {
		s := shardFor(v, len(c.conns))
		byShard[s] = append(byShard[s], v)
	}

	out := &hopdb.QueryRpcResponse{}
	calls := make([]shardCall, 0, len(byShard))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for shard, shardVids := range byShard {
		wg.Add(1)
		go func(shard int, shardVids []hopdb.VID) {
			defer wg.Done()
			req := &GetVertexPropsRequest{Space: space, VIDs: shardVids, Props: props}
			resp := new(ShardQueryResponse)
			start := time.Now()
			err := c.conns[shard].Invoke(ctx, methodGetVertexProps, req, resp)
			call := shardCall{shard: shard, latency: time.Since(start), err: err}
			mu.Lock()
			defer mu.Unlock()
			if err == nil && resp.Resp != nil {
				call.results = len(resp.Resp.Vertices)
				out.Responses = append(out.Responses, resp.Resp)
			}
			calls = append(calls, call)
		}(shard, shardVids)
	}
	wg.Wait()

	c.finishStats(&out.RpcStats, calls, "get vertex props")
	return out, nil
}

func (c *Client) GetEdgeProps(ctx context.Context, space hopdb.GraphSpaceID, keys []hopdb.EdgeKey,
	props []hopdb.PropDef) (*hopdb.EdgePropRpcResponse, error) {

	byShard := make(map[int][]hopdb.EdgeKey)
	for _, k := range keys {
		s := shardFor(k.Src, len(c.conns))
		byShard[s] = append(byShard[s], k)
	}

	out := &hopdb.EdgePropRpcResponse{}
	calls := make([]shardCall, 0, len(byShard))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for shard, shardKeys := range byShard {
		wg.Add(1)
		go func(shard int, shardKeys []hopdb.EdgeKey) {
			defer wg.Done()
			req := &GetEdgePropsRequest{Space: space, Keys: shardKeys, Props: props}
			resp := new(ShardEdgePropResponse)
			start := time.Now()
			err := c.conns[shard].Invoke(ctx, methodGetEdgeProps, req, resp)
			call := shardCall{shard: shard, latency: time.Since(start), err: err}
			mu.Lock()
			defer mu.Unlock()
			if err == nil && resp.Resp != nil {
				call.results = len(resp.Resp.Data)
				out.Responses = append(out.Responses, resp.Resp)
			}
			calls = append(calls, call)
		}(shard, shardKeys)
	}
	wg.Wait()

	c.finishStats(&out.RpcStats, calls, "get edge props")
	return out, nil
}

// finishStats folds per-shard outcomes into the completeness envelope.
func (c *Client) finishStats(stats *hopdb.RpcStats, calls []shardCall, what string) {
	stats.Completeness = completeness(calls)
	for _, call := range calls {
		if call.err != nil {
			if stats.FailedParts == nil {
				stats.FailedParts = make(map[hopdb.PartID]int8)
			}
			stats.FailedParts[hopdb.PartID(call.shard)] = PartErrRPC
			c.log.Error("shard call failed",
				"call", what, "shard", call.shard, "endpoint", c.endpoints[call.shard], "error", call.err)
			continue
		}
		stats.HostLatency = append(stats.HostLatency, hopdb.HostLatency{
			Host:         c.endpoints[call.shard],
			LatencyUS:    call.latency.Microseconds(),
			TotalResults: call.results,
		})
	}
}

// completeness is the percentage of contacted shards that succeeded. A
// request touching no shard at all is vacuously complete.
func completeness(calls []shardCall) int {
	if len(calls) == 0 {
		return 100
	}
	ok := 0
	for _, call := range calls {
		if call.err == nil {
			ok++
		}
	}
	return ok * 100 / len(calls)
}
