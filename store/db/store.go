// Package db is an account store persisted to sqlite through gorm.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultDBPath = "./counter.db"

// DBAccount is the row for one account
type DBAccount struct {
	Pubkey     string `gorm:"column:pubkey;primaryKey;size:44"`
	Owner      string `gorm:"column:owner;not null;index;size:44"`
	Lamports   uint64 `gorm:"column:lamports;not null;default:0"`
	Data       []byte `gorm:"column:data;type:blob;not null"`
	Executable bool   `gorm:"column:executable;not null;default:false"`
}

func (DBAccount) TableName() string {
	return "accounts"
}

// DBTransaction is the row for one executed transaction
type DBTransaction struct {
	gorm.Model
	Signature    string `gorm:"column:signature;not null;unique;index;size:44"`
	Slot         uint64 `gorm:"column:slot;not null;unique;index"`
	ProgramID    string `gorm:"column:program_id;not null;index;size:44"`
	Data         []byte `gorm:"column:tx_data;type:blob"`
	Success      bool   `gorm:"column:success;not null"`
	ErrorCode    uint32 `gorm:"column:error_code;not null;default:0"`
	Error        string `gorm:"column:error_message"`
	ComputeUnits uint64 `gorm:"column:compute_units;not null;default:0"`
}

func (DBTransaction) TableName() string {
	return "transactions"
}

// Store implements types.AccountStore on sqlite
type Store struct {
	db *gorm.DB
}

func init() {
	if err := store.Register(store.DBStoreType, NewStore); err != nil {
		panic(err)
	}
}

// NewStore opens (or creates) the sqlite database named by the "db_path" param.
func NewStore(params map[string]any) (types.AccountStore, error) {
	dbPath := store.StringParam(params, "db_path", defaultDBPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&DBAccount{}, &DBTransaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetAccount(key core.Pubkey) (*types.Account, error) {
	var row DBAccount
	result := s.db.Where("pubkey = ?", key.String()).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrAccountNotFound, key)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return fromRow(&row)
}

func (s *Store) CreateAccount(acct *types.Account) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DBAccount{}).Where("pubkey = ?", acct.Key.String()).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", types.ErrAccountExists, acct.Key)
		}
		if err := tx.Create(toRow(acct)).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

func (s *Store) Commit(accounts []*types.Account, record *types.TransactionRecord) error {
	if record == nil {
		return store.ErrNilRecord
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, acct := range accounts {
			row := toRow(acct)
			result := tx.Model(&DBAccount{}).Where("pubkey = ?", row.Pubkey).Updates(map[string]any{
				"owner":      row.Owner,
				"lamports":   row.Lamports,
				"data":       row.Data,
				"executable": row.Executable,
			})
			if result.Error != nil {
				return fmt.Errorf("failed to update account: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", types.ErrAccountNotFound, acct.Key)
			}
		}

		slot, err := nextSlot(tx)
		if err != nil {
			return err
		}
		row := &DBTransaction{
			Signature:    record.Signature.String(),
			Slot:         slot,
			ProgramID:    record.ProgramID.String(),
			Data:         record.Data,
			Success:      record.Success,
			ErrorCode:    record.ErrorCode,
			Error:        record.Error,
			ComputeUnits: record.ComputeUnits,
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		record.Slot = slot
		return nil
	})
}

func nextSlot(tx *gorm.DB) (uint64, error) {
	var last uint64
	if err := tx.Model(&DBTransaction{}).Select("COALESCE(MAX(slot), 0)").Scan(&last).Error; err != nil {
		return 0, fmt.Errorf("failed to read slot: %w", err)
	}
	return last + 1, nil
}

func (s *Store) Slot() uint64 {
	slot, err := nextSlot(s.db)
	if err != nil {
		return 0
	}
	return slot
}

func (s *Store) Transactions(limit int) ([]types.TransactionRecord, error) {
	var rows []DBTransaction
	if err := s.db.Order("slot desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]types.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		sig, err := core.HashFromString(row.Signature)
		if err != nil {
			return nil, fmt.Errorf("bad signature in slot %d: %w", row.Slot, err)
		}
		program, err := core.PubkeyFromString(row.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("bad program id in slot %d: %w", row.Slot, err)
		}
		out = append(out, types.TransactionRecord{
			Signature:    sig,
			Slot:         row.Slot,
			ProgramID:    program,
			Data:         row.Data,
			Success:      row.Success,
			ErrorCode:    row.ErrorCode,
			Error:        row.Error,
			ComputeUnits: row.ComputeUnits,
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(acct *types.Account) *DBAccount {
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	return &DBAccount{
		Pubkey:     acct.Key.String(),
		Owner:      acct.Owner.String(),
		Lamports:   acct.Lamports,
		Data:       data,
		Executable: acct.Executable,
	}
}

func fromRow(row *DBAccount) (*types.Account, error) {
	key, err := core.PubkeyFromString(row.Pubkey)
	if err != nil {
		return nil, err
	}
	owner, err := core.PubkeyFromString(row.Owner)
	if err != nil {
		return nil, err
	}
	return &types.Account{
		Key:        key,
		Owner:      owner,
		Lamports:   row.Lamports,
		Data:       row.Data,
		Executable: row.Executable,
	}, nil
}
