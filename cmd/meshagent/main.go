// meshagent is the node-side agent. It registers the local machine with the
// coordination control plane and reports heartbeats with probed metrics.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/agent"
	"github.com/hypermesh-online/meshcoord/pkg/model"
)

func main() {
	server := flag.String("server", "http://localhost:8090", "control plane URL")
	address := flag.String("address", "", "advertised address of this node")
	nodeKey := flag.String("node-key", "", "node identity as 64 hex characters (random if empty)")
	interval := flag.Duration("heartbeat-interval", 10*time.Second, "heartbeat interval")
	flag.Parse()

	id, err := identity(*nodeKey, *address)
	if err != nil {
		log.Fatalf("node identity: %v", err)
	}

	a := agent.NewNodeAgent(id, *server)
	if err := a.Register(nil); err != nil {
		log.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	agent.StartHeartbeatLoop(ctx, a, *interval)
}

func identity(key, address string) (model.NodeID, error) {
	var id model.NodeID
	if key == "" {
		_, _ = rand.Read(id.ID[:])
	} else {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != 32 {
			return id, fmt.Errorf("node key must be 64 hex characters")
		}
		copy(id.ID[:], raw)
	}
	id.Address = address
	id.TrustScore = 1.0
	return id, nil
}
