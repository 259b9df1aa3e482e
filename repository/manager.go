package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/govm-net/counter/core"
)

const (
	codeFile     = "program.wasm"
	metadataFile = "metadata.json"
)

var (
	ErrProgramExists   = errors.New("program already exists")
	ErrProgramNotFound = errors.New("program not found")
	ErrHashMismatch    = errors.New("program code does not match its hash")
)

// Manager stores deployed program code on disk, one directory per program
type Manager struct {
	rootDir string
}

// ProgramCode is a deployed program
type ProgramCode struct {
	ProgramID  core.Pubkey
	Code       []byte
	DeployTime time.Time
	Hash       [32]byte
}

// ProgramMetadata is written next to the code
type ProgramMetadata struct {
	ProgramID  string    `json:"program_id"`
	Hash       string    `json:"hash"`
	Size       int       `json:"size"`
	DeployTime time.Time `json:"deploy_time"`
}

// NewManager creates the root directory if needed
func NewManager(rootDir string) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		slog.Error("failed to create root directory", "dir", rootDir, "error", err)
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Manager{rootDir: rootDir}, nil
}

// RegisterCode saves code under programID. A program id can only be
// registered once.
func (m *Manager) RegisterCode(programID core.Pubkey, code []byte) (*ProgramCode, error) {
	dir := m.programDir(programID)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrProgramExists, programID)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check program directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create program directory: %w", err)
	}

	prog := &ProgramCode{
		ProgramID:  programID,
		Code:       code,
		DeployTime: time.Now().UTC(),
		Hash:       sha256.Sum256(code),
	}
	if err := m.saveProgramFiles(prog); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to save program files: %w", err)
	}
	slog.Info("program registered", "program", programID, "size", len(code))
	return prog, nil
}

// GetCode loads a program and verifies the code against its recorded hash
func (m *Manager) GetCode(programID core.Pubkey) (*ProgramCode, error) {
	dir := m.programDir(programID)

	code, err := os.ReadFile(filepath.Join(dir, codeFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read program code: %w", err)
	}

	metadataBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata ProgramMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	hash := sha256.Sum256(code)
	if hex.EncodeToString(hash[:]) != metadata.Hash {
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, programID)
	}

	return &ProgramCode{
		ProgramID:  programID,
		Code:       code,
		DeployTime: metadata.DeployTime,
		Hash:       hash,
	}, nil
}

// List returns the ids of all registered programs, sorted
func (m *Manager) List() ([]core.Pubkey, error) {
	entries, err := os.ReadDir(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	var out []core.Pubkey
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := core.PubkeyFromString(e.Name())
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (m *Manager) programDir(programID core.Pubkey) string {
	return filepath.Join(m.rootDir, programID.String())
}

func (m *Manager) saveProgramFiles(prog *ProgramCode) error {
	dir := m.programDir(prog.ProgramID)

	if err := os.WriteFile(filepath.Join(dir, codeFile), prog.Code, 0644); err != nil {
		return fmt.Errorf("failed to save program code: %w", err)
	}

	metadata := ProgramMetadata{
		ProgramID:  prog.ProgramID.String(),
		Hash:       hex.EncodeToString(prog.Hash[:]),
		Size:       len(prog.Code),
		DeployTime: prog.DeployTime,
	}
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}
