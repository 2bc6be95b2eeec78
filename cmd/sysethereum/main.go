package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/KBriverun/sysethereum-contracts/internal/battle"
	"github.com/KBriverun/sysethereum-contracts/internal/claim"
	"github.com/KBriverun/sysethereum-contracts/internal/netparams"
	"github.com/KBriverun/sysethereum-contracts/internal/superblocks"
	"github.com/KBriverun/sysethereum-contracts/pkg/db/pebble"
	"github.com/KBriverun/sysethereum-contracts/pkg/log"
)

type genesisFile struct {
	BlocksRoot      string `json:"blocks_root"`
	AccumulatedWork string `json:"accumulated_work"`
	Timestamp       uint32 `json:"timestamp"`
	LastHash        string `json:"last_hash"`
	LastBits        uint32 `json:"last_bits"`
}

func loadGenesis(path string) (*genesisFile, *big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var gen genesisFile
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	work, ok := new(big.Int).SetString(gen.AccumulatedWork, 10)
	if !ok || work.Sign() <= 0 {
		return nil, nil, fmt.Errorf("genesis accumulated_work %q is not a positive decimal", gen.AccumulatedWork)
	}
	return &gen, work, nil
}

func pickParams(name string) (*netparams.Params, error) {
	switch name {
	case "mainnet":
		return &netparams.MainNetParams, nil
	case "testnet":
		return &netparams.TestNetParams, nil
	case "regnet":
		return &netparams.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// main starts the bridge keeper: it wires the superblock registry, the
// battle manager and the claim manager over one pebble store and then
// periodically sweeps pending settlements.
// go run main.go -network regnet -manager 0x... -genesis genesis.json
func main() {
	network := flag.String("network", "mainnet", "syscoin network: mainnet, testnet or regnet")
	dbPath := flag.String("db", "sysethereum.db", "pebble database directory")
	genesisPath := flag.String("genesis", "genesis.json", "genesis superblock file")
	managerHex := flag.String("manager", "", "claim manager address (hex)")
	tick := flag.Duration("tick", 30*time.Second, "settlement sweep interval")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	flag.Parse()

	level, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Init(log.Options{LogLevel: level, Type: log.ConsoleLogger})

	if !common.IsHexAddress(*managerHex) {
		log.Root.Fatal().Str("address", *managerHex).Msg("manager must be a hex address")
	}
	managerAddr := common.HexToAddress(*managerHex)

	params, err := pickParams(*network)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("bad network")
	}

	store, err := pebble.New(*dbPath)
	if err != nil {
		log.Root.Fatal().Err(err).Str("path", *dbPath).Msg("opening database")
	}
	defer store.Close()

	registry, err := superblocks.New(store, params)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("creating registry")
	}
	if err := registry.SetManager(managerAddr); err != nil {
		log.Root.Fatal().Err(err).Msg("registering claim manager")
	}

	gen, work, err := loadGenesis(*genesisPath)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("loading genesis")
	}
	_, err = registry.Bootstrap(
		common.HexToHash(gen.BlocksRoot), work, gen.Timestamp,
		common.HexToHash(gen.LastHash), gen.LastBits, common.Hash{},
	)
	if err != nil && !errors.Is(err, superblocks.ErrAlreadyBootstrapped) {
		log.Root.Fatal().Err(err).Msg("bootstrapping registry")
	}

	battleMgr, err := battle.New(battle.Config{Params: params, Registry: registry})
	if err != nil {
		log.Root.Fatal().Err(err).Msg("creating battle manager")
	}
	claimMgr, err := claim.New(claim.Config{
		Address:  managerAddr,
		Params:   params,
		Registry: registry,
		Battle:   battleMgr,
	})
	if err != nil {
		log.Root.Fatal().Err(err).Msg("creating claim manager")
	}
	if err := battleMgr.Bind(managerAddr, claimMgr); err != nil {
		log.Root.Fatal().Err(err).Msg("binding claim manager")
	}

	log.Root.Info().
		Str("network", params.Name).
		Str("db", *dbPath).
		Str("best", registry.Best().Hex()).
		Msg("bridge keeper started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Root.Info().Msg("shutting down")
			return
		case <-ticker.C:
			sweep(battleMgr, claimMgr)
		}
	}
}

// sweep drives every pending settlement forward: battles ready for final
// verification or timeout conviction, and claims whose window has lapsed.
func sweep(battleMgr *battle.Manager, claimMgr *claim.Manager) {
	for _, id := range battleMgr.SessionIDs() {
		if err := battleMgr.VerifySuperblock(id); err != nil && !errors.Is(err, battle.ErrSessionNotFound) {
			log.Root.Warn().Str("session", id.Hex()).Err(err).Msg("verification sweep failed")
		}
		err := battleMgr.Timeout(id)
		switch {
		case err == nil:
		case errors.Is(err, battle.ErrNoTimeoutYet), errors.Is(err, battle.ErrSessionNotFound):
		default:
			log.Root.Warn().Str("session", id.Hex()).Err(err).Msg("timeout sweep failed")
		}
	}
	for _, id := range claimMgr.OpenClaims() {
		if err := claimMgr.CheckClaimFinished(id); err != nil && !errors.Is(err, claim.ErrClaimPending) {
			log.Root.Warn().Str("superblock", id.Hex()).Err(err).Msg("claim sweep failed")
		}
	}
}
