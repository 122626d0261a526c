// Command hopdb runs a single-process query service: N bbolt shard stores
// served over gRPC, a fan-out storage client wired into the GO executor,
// and the HTTP admin/query API on top.
//
// Usage:
//
//	go run ./cmd/hopdb/ -data ./data -shards 3 -grpc-base 9780 -http :7474 -schema schema.yaml
//
// The schema file declares spaces, tags and edges; see LoadSchemaConfig.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	hopdb "github.com/hopdb/hopdb"
	"github.com/hopdb/hopdb/server"
	"github.com/hopdb/hopdb/storage"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "Directory for shard files")
		shards     = flag.Int("shards", 1, "Number of storage shards")
		grpcBase   = flag.Int("grpc-base", 9780, "Base port for shard gRPC servers (shard i listens on base+i)")
		httpAddr   = flag.String("http", ":7474", "HTTP admin/query listen address")
		configPath = flag.String("config", "", "Optional YAML config file")
		schemaPath = flag.String("schema", "", "YAML schema declarations (spaces, tags, edges)")
		space      = flag.Int("space", 1, "Default graph space id served by /api/query")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := hopdb.DefaultConfig()
	if *configPath != "" {
		loaded, err := hopdb.LoadConfig(*configPath)
		if err != nil {
			log.Error("load config failed", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	registry, err := loadRegistry(*schemaPath)
	if err != nil {
		log.Error("load schema failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Error("create data dir failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open and serve the shards.
	endpoints := make([]string, 0, *shards)
	var servers []*storage.Server
	var stores []*storage.Store
	for i := 0; i < *shards; i++ {
		path := filepath.Join(*dataDir, fmt.Sprintf("shard_%04d.db", i))
		store, err := storage.OpenStore(path, registry, log.With("shard", i))
		if err != nil {
			log.Error("open shard failed", "shard", i, "error", err)
			os.Exit(1)
		}
		stores = append(stores, store)

		addr := fmt.Sprintf("127.0.0.1:%d", *grpcBase+i)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		srv := storage.NewServer(store, log.With("shard", i))
		servers = append(servers, srv)
		go func() {
			if err := srv.Serve(lis); err != nil {
				log.Error("shard server stopped", "error", err)
			}
		}()
		endpoints = append(endpoints, addr)
	}

	client, err := storage.NewClient(endpoints, storage.WithLogger(log))
	if err != nil {
		log.Error("storage client failed", "error", err)
		os.Exit(1)
	}

	runner := hopdb.NewRunner(cfg.WorkerPoolSize)
	metrics := hopdb.NewMetrics()
	trace := hopdb.NewTraceLog(cfg.TraceLogCapacity)

	api := server.New(server.Deps{
		Space:   hopdb.GraphSpaceID(*space),
		Storage: client,
		Schema:  registry,
		Runner:  runner,
		Vars:    hopdb.NewVariableHolder(),
		Config:  cfg,
		Logger:  log,
		Metrics: metrics,
		Trace:   trace,
	})

	log.Info("query service listening", "http", *httpAddr, "shards", *shards)
	if err := server.ListenAndServe(ctx, *httpAddr, api); err != nil {
		log.Error("http server failed", "error", err)
	}

	for _, srv := range servers {
		srv.Stop()
	}
	client.Close()
	runner.Stop()
	for _, store := range stores {
		store.Close()
	}
}

// loadRegistry builds the schema registry from the YAML declarations, or
// a small demo space when no file is given.
func loadRegistry(path string) (*hopdb.MemoryRegistry, error) {
	if path != "" {
		sc, err := hopdb.LoadSchemaConfig(path)
		if err != nil {
			return nil, err
		}
		return sc.BuildRegistry()
	}
	reg := hopdb.NewMemoryRegistry()
	reg.AddTag(1, "person", 1, hopdb.NewSchema().
		Append("name", hopdb.TypeString).
		Append("age", hopdb.TypeInt))
	reg.AddEdge(1, "follow", 1, hopdb.NewSchema().
		Append("since", hopdb.TypeInt))
	reg.AddEdge(1, "like", 2, hopdb.NewSchema().
		Append("rating", hopdb.TypeInt))
	return reg, nil
}
