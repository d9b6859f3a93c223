package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"boardstate/internal/logger"
)

func main() {
	_ = godotenv.Load(".env")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	logger.Init(cfg.Debug)

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	logger.Info("starting board-state node",
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"bufferCapacity", cfg.BufferCapacity,
		"attesterSetSize", cfg.AttesterSetSize,
		"votingPeriod", cfg.VotingPeriod,
	)

	return node.Run()
}
