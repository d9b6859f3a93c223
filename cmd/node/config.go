package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// BufferCapacity is the number of ring-buffer slots per board.
	BufferCapacity uint16

	// AttesterSetSize is the number of attester slots per shard.
	AttesterSetSize int

	// VotingPeriod is the attestation window in heights.
	VotingPeriod uint64

	// BlockInterval is the wall-clock duration of one height.
	BlockInterval time.Duration

	// Debug enables debug logging.
	Debug bool
}

// parseFlags parses command-line flags into Config. Environment
// variables (optionally from a .env file) provide the defaults, so
// flags win over env which wins over the built-in values.
func parseFlags() (*Config, error) {
	cfg := &Config{}

	capacity, err := getenvUint("BUFFER_CAPACITY", 1024, 16)
	if err != nil {
		return nil, err
	}

	setSize, err := getenvUint("ATTESTER_SET_SIZE", 16, 16)
	if err != nil {
		return nil, err
	}

	period, err := getenvUint("VOTING_PERIOD", 600, 64)
	if err != nil {
		return nil, err
	}

	flag.StringVar(&cfg.DataPath, "data", getenv("DATA_PATH", "./data"), "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", getenv("HTTP_ADDRESS", ":8080"), "HTTP API address")
	capFlag := flag.Uint("buffer-capacity", uint(capacity), "Ring-buffer slots per board")
	sizeFlag := flag.Uint("attester-set-size", uint(setSize), "Attester slots per shard")
	flag.Uint64Var(&cfg.VotingPeriod, "voting-period", period, "Attestation window in heights")
	flag.DurationVar(&cfg.BlockInterval, "block-interval", 6*time.Second, "Duration of one height")
	flag.BoolVar(&cfg.Debug, "debug", getenv("DEBUG", "") != "", "Enable debug logging")
	flag.Parse()

	if *capFlag == 0 || *capFlag > 1<<16-1 {
		return nil, fmt.Errorf("buffer capacity %d out of range", *capFlag)
	}

	if *sizeFlag == 0 || *sizeFlag > 1<<15 {
		return nil, fmt.Errorf("attester set size %d out of range", *sizeFlag)
	}

	cfg.BufferCapacity = uint16(*capFlag)
	cfg.AttesterSetSize = int(*sizeFlag)

	return cfg, nil
}

// getenv returns the environment value or a default.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

// getenvUint parses an unsigned environment value of the given bit size.
func getenvUint(key string, def uint64, bits int) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	parsed, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
