package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Transaction stages writes and deletes and applies them together. If any
// step of Commit fails, the steps already applied are undone from
// in-memory snapshots of the original files.
type Transaction struct {
	mu        sync.Mutex
	ops       []fileOp
	finalized bool
}

type opKind int

const (
	opWrite opKind = iota
	opDelete
)

type fileOp struct {
	kind    opKind
	path    string
	content []byte
	mode    os.FileMode

	// snapshot of the file before the op; existed is false when it was absent
	existed  bool
	original []byte
	origMode os.FileMode
	applied  bool
}

// NewTransaction creates an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Write stages writing content to path, creating parent directories.
func (tx *Transaction) Write(path string, content []byte, mode os.FileMode) error {
	return tx.stage(fileOp{kind: opWrite, path: path, content: content, mode: mode})
}

// Delete stages removing path. A missing file is not an error.
func (tx *Transaction) Delete(path string) error {
	return tx.stage(fileOp{kind: opDelete, path: path})
}

func (tx *Transaction) stage(op fileOp) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.finalized {
		return errors.New("transaction already finalized")
	}
	tx.ops = append(tx.ops, op)
	return nil
}

// Len returns the number of staged operations.
func (tx *Transaction) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.ops)
}

// Commit snapshots every target, then applies the operations in order.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.finalized {
		return errors.New("transaction already finalized")
	}
	tx.finalized = true

	for i := range tx.ops {
		if err := tx.ops[i].snapshot(); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", tx.ops[i].path, err)
		}
	}

	for i := range tx.ops {
		op := &tx.ops[i]
		if err := op.apply(); err != nil {
			tx.rollback()
			return err
		}
		op.applied = true
	}
	return nil
}

func (op *fileOp) snapshot() error {
	info, err := os.Stat(op.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	data, err := os.ReadFile(op.path)
	if err != nil {
		return err
	}
	op.existed = true
	op.original = data
	op.origMode = info.Mode().Perm()
	return nil
}

func (op *fileOp) apply() error {
	switch op.kind {
	case opWrite:
		if err := os.MkdirAll(filepath.Dir(op.path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", op.path, err)
		}
		return AtomicWrite(op.path, op.content, op.mode)
	case opDelete:
		if err := os.Remove(op.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", op.path, err)
		}
	}
	return nil
}

// rollback restores applied operations in reverse order. Must be called
// with tx.mu held.
func (tx *Transaction) rollback() {
	for i := len(tx.ops) - 1; i >= 0; i-- {
		op := &tx.ops[i]
		if !op.applied {
			continue
		}
		if op.existed {
			_ = AtomicWrite(op.path, op.original, op.origMode)
		} else {
			_ = os.Remove(op.path)
		}
	}
}
