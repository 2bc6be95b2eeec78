// Package superblocks maintains the registry of superblocks: fixed-span
// summaries of the Syscoin chain that submitters propose, challengers
// dispute and the claim manager finally approves or invalidates. Records are
// persisted so the registry survives restarts mid-dispute.
package superblocks

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/KBriverun/sysethereum-contracts/internal/crypto"
)

// Status tracks a superblock through its lifecycle. New proposals start in
// StatusNew, move to StatusInBattle when challenged, and settle in
// StatusSemiApproved, StatusApproved or StatusInvalid.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusNew
	StatusInBattle
	StatusSemiApproved
	StatusApproved
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusNew:
		return "new"
	case StatusInBattle:
		return "in-battle"
	case StatusSemiApproved:
		return "semi-approved"
	case StatusApproved:
		return "approved"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Superblock summarizes a fixed number of consecutive Syscoin blocks.
// AccumulatedWork is the chain work claimed up to and including the last
// block; LastHash and LastBits describe that block. ParentID links
// superblocks into a chain mirroring the underlying one.
type Superblock struct {
	BlocksRoot      common.Hash
	AccumulatedWork *big.Int
	Timestamp       uint32
	LastHash        common.Hash
	LastBits        uint32
	ParentID        common.Hash
	Submitter       common.Address
	Status          Status
	Height          uint32
}

// ID derives the superblock's identifier by hashing the fields fixed at
// proposal time. Submitter, status and height stay out so the same summary
// always maps to the same id.
func (s *Superblock) ID() common.Hash {
	var work [32]byte
	if s.AccumulatedWork != nil {
		s.AccumulatedWork.FillBytes(work[:])
	}
	var ts, bits [4]byte
	binary.BigEndian.PutUint32(ts[:], s.Timestamp)
	binary.BigEndian.PutUint32(bits[:], s.LastBits)
	return crypto.Keccak256(s.BlocksRoot[:], work[:], ts[:], s.LastHash[:], bits[:], s.ParentID[:])
}
