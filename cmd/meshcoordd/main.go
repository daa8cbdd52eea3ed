// meshcoordd is the mesh coordination control plane server.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/apiserver"
	"github.com/hypermesh-online/meshcoord/pkg/coordinator"
	"github.com/hypermesh-online/meshcoord/pkg/model"
	storepkg "github.com/hypermesh-online/meshcoord/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	storeType := flag.String("store-type", "memory", "state store backend: memory or etcd")
	failureTimeout := flag.Duration("failure-timeout", 30*time.Second, "heartbeat age before a node is marked failed")
	heartbeatEvery := flag.Duration("heartbeat-interval", 10*time.Second, "heartbeat monitor scan interval")
	noAutoRecovery := flag.Bool("no-auto-recovery", false, "disable automatic asset recovery on node failure")
	noLoadBalancing := flag.Bool("no-load-balancing", false, "disable the periodic load balancer")
	flag.Parse()

	// --- State store ---
	//
	// The store backend can also be selected via the MESHCOORD_STORE_TYPE
	// environment variable (takes precedence over the flag). For etcd, set
	// MESHCOORD_ETCD_ENDPOINTS to a comma-separated list of endpoints, e.g.:
	//   MESHCOORD_STORE_TYPE=etcd MESHCOORD_ETCD_ENDPOINTS=http://localhost:2379
	if envType := os.Getenv("MESHCOORD_STORE_TYPE"); envType != "" {
		*storeType = envType
	}

	var s storepkg.Store
	switch *storeType {
	case "memory":
		s = storepkg.NewMemoryStore()
	case "etcd":
		endpoints := []string{"http://localhost:2379"}
		if envEndpoints := os.Getenv("MESHCOORD_ETCD_ENDPOINTS"); envEndpoints != "" {
			endpoints = strings.Split(envEndpoints, ",")
		}
		etcdStore, err := storepkg.NewEtcdStore(endpoints)
		if err != nil {
			log.Fatalf("connect to etcd %v: %v", endpoints, err)
		}
		log.Printf("connected to etcd at %v", endpoints)
		s = etcdStore
	default:
		log.Fatalf("unsupported store type: %s (supported: memory, etcd)", *storeType)
	}
	defer s.Close()

	// --- Coordinator ---
	cfg := coordinator.DefaultConfig()
	cfg.FailureTimeout = *failureTimeout
	cfg.HeartbeatInterval = *heartbeatEvery
	cfg.AutoRecovery = !*noAutoRecovery
	cfg.LoadBalancing = !*noLoadBalancing

	coord := coordinator.New(cfg, s)
	coord.Initialize(localIdentity(*addr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop()

	// --- API server ---
	opts := apiserver.DefaultServerOptions()
	srv := apiserver.NewServer(coord, opts)

	// --- Graceful shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if err := srv.GracefulShutdown(shutCtx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
		}
	}()

	log.Printf("starting meshcoordd (store=%s)", *storeType)
	if err := srv.ListenAndServe(*addr); err != nil && err.Error() != "http: Server closed" {
		log.Fatalf("server error: %v", err)
	}
}

// localIdentity builds the coordinator's own node identity. The identifier is
// random per process; a stable identity would come from a key file in a real
// deployment.
func localIdentity(addr string) model.NodeID {
	var id model.NodeID
	_, _ = rand.Read(id.ID[:])
	id.Address = addr
	id.TrustScore = 1.0
	return id
}
