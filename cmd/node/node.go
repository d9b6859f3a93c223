package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"boardstate/internal/api"
	"boardstate/internal/attestation"
	"boardstate/internal/board"
	"boardstate/internal/logger"
	"boardstate/internal/storage"
)

// Node wires storage, the board store, the attestation controller,
// and the HTTP API together.
type Node struct {
	cfg    *Config
	db     *storage.Storage
	server *api.Server

	height atomic.Uint64
	stop   chan struct{}
}

// NewNode creates a node from the given configuration.
func NewNode(cfg *Config) (*Node, error) {
	db, err := storage.New(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	boards := board.NewStore(db, board.DefaultLimits)

	ctrl := attestation.NewController(db, attestation.Params{
		BufferCapacity:  cfg.BufferCapacity,
		AttesterSetSize: cfg.AttesterSetSize,
		VotingPeriod:    cfg.VotingPeriod,
	}, nil, nil)

	n := &Node{
		cfg:  cfg,
		db:   db,
		stop: make(chan struct{}),
	}

	n.server = api.New(cfg.HTTPAddress, db, boards, ctrl, n)

	return n, nil
}

// Height returns the node's current height.
// In an embedded-runtime deployment the chain height replaces this
// local clock; the core only ever sees explicit height parameters.
func (n *Node) Height() uint64 {
	return n.height.Load()
}

// Run starts the height clock and the API server and blocks until
// SIGINT or SIGTERM.
func (n *Node) Run() error {
	go n.tick()
	n.server.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	close(n.stop)

	if err := n.server.Stop(); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	return n.db.Close()
}

// tick advances the local height once per block interval.
func (n *Node) tick() {
	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.height.Add(1)
		case <-n.stop:
			return
		}
	}
}
