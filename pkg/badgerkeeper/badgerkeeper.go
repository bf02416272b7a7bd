// Package badgerkeeper stores notes and pending operations in a Badger
// key-value database, one msgpack record per key.
package badgerkeeper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
	"github.com/wurt83ow/gophnotes-client/pkg/storage"
)

var (
	notePrefix = []byte("note/")
	opPrefix   = []byte("op/")
	opSeqKey   = []byte("meta/opseq")
)

type Keeper struct {
	db *badger.DB
}

type config struct {
	inMemory bool
}

// Option customizes how Badger is opened.
type Option func(*config)

// InMemory keeps the database out of the filesystem. The path is ignored.
func InMemory() Option {
	return func(c *config) { c.inMemory = true }
}

// Open opens the Badger database in dir.
func Open(dir string, options ...Option) (*Keeper, error) {
	var cfg config
	for _, o := range options {
		o(&cfg)
	}

	opts := badger.DefaultOptions(dir)
	if cfg.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Keeper{db: db}, nil
}

func noteKey(id string) []byte {
	return append(append([]byte{}, notePrefix...), id...)
}

func opKey(opID int64) []byte {
	key := append([]byte{}, opPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(opID))
}

func (k *Keeper) GetNote(_ context.Context, id string) (models.Note, error) {
	var n models.Note
	err := k.db.View(func(txn *badger.Txn) error {
		return get(txn, noteKey(id), &n)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Note{}, fmt.Errorf("note %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

func (k *Keeper) ListNotes(_ context.Context) ([]models.Note, error) {
	var notes []models.Note
	err := k.db.View(func(txn *badger.Txn) error {
		return scan(txn, notePrefix, func(val []byte) error {
			var n models.Note
			if err := msgpack.Unmarshal(val, &n); err != nil {
				return err
			}
			notes = append(notes, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (k *Keeper) PutNote(_ context.Context, n models.Note) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return set(txn, noteKey(n.ID), n)
	})
	if err != nil {
		return fmt.Errorf("failed to put note %s: %w", n.ID, err)
	}
	return nil
}

func (k *Keeper) DeleteNote(_ context.Context, id string) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(noteKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

func (k *Keeper) GetOp(_ context.Context, opID int64) (models.PendingOp, error) {
	var op models.PendingOp
	err := k.db.View(func(txn *badger.Txn) error {
		return get(txn, opKey(opID), &op)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.PendingOp{}, fmt.Errorf("pending op %d: %w", opID, storage.ErrNotFound)
	}
	if err != nil {
		return models.PendingOp{}, fmt.Errorf("failed to get pending op %d: %w", opID, err)
	}
	return op, nil
}

func (k *Keeper) ListOps(_ context.Context) ([]models.PendingOp, error) {
	var ops []models.PendingOp
	err := k.db.View(func(txn *badger.Txn) error {
		var err error
		ops, err = listOps(txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	storage.SortOps(ops)
	return ops, nil
}

func listOps(txn *badger.Txn) ([]models.PendingOp, error) {
	var ops []models.PendingOp
	err := scan(txn, opPrefix, func(val []byte) error {
		var op models.PendingOp
		if err := msgpack.Unmarshal(val, &op); err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	})
	return ops, err
}

func (k *Keeper) PutOp(_ context.Context, op models.PendingOp) (models.PendingOp, error) {
	if !op.Action.Valid() {
		return op, fmt.Errorf("invalid action %q", op.Action)
	}
	err := k.db.Update(func(txn *badger.Txn) error {
		var seq int64
		if err := get(txn, opSeqKey, &seq); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if op.OpID == 0 {
			seq++
			op.OpID = seq
		} else if op.OpID > seq {
			seq = op.OpID
		}
		if err := set(txn, opSeqKey, seq); err != nil {
			return err
		}
		return set(txn, opKey(op.OpID), op)
	})
	if err != nil {
		return op, fmt.Errorf("failed to put pending op: %w", err)
	}
	return op, nil
}

func (k *Keeper) DeleteOp(_ context.Context, opID int64) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(opKey(opID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete pending op %d: %w", opID, err)
	}
	return nil
}

func (k *Keeper) ReplaceNotes(_ context.Context, notes []models.Note) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, notePrefix); err != nil {
			return err
		}
		for _, n := range notes {
			if err := set(txn, noteKey(n.ID), n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace notes: %w", err)
	}
	return nil
}

func (k *Keeper) RemapNoteID(_ context.Context, oldID, newID string) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		var n models.Note
		err := get(txn, noteKey(oldID), &n)
		switch {
		case err == nil:
			n.ID = newID
			if err := txn.Delete(noteKey(oldID)); err != nil {
				return err
			}
			if err := set(txn, noteKey(newID), n); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		ops, err := listOps(txn)
		if err != nil {
			return err
		}
		for _, op := range ops {
			if op.NoteID != oldID {
				continue
			}
			op.NoteID = newID
			op.Payload.ID = newID
			if err := set(txn, opKey(op.OpID), op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remap note %s: %w", oldID, err)
	}
	return nil
}

func (k *Keeper) ClearAll(_ context.Context) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, opPrefix); err != nil {
			return err
		}
		return deletePrefix(txn, notePrefix)
	})
	if err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

func (k *Keeper) Close() error {
	return k.db.Close()
}

func get(txn *badger.Txn, key []byte, dst interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, dst)
	})
}

func set(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func scan(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

var _ storage.LocalStore = (*Keeper)(nil)
