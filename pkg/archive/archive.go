package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/types"
)

// ErrNotFound is returned when a chore id is not in the archive.
var ErrNotFound = errors.New("chore not found in archive")

var bucketChores = []byte("chores")

// Archive is the bbolt-backed historical store that terminal chores are
// reaped into once they leave the live chores document.
type Archive struct {
	db *bolt.DB
}

// Open opens or creates the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChores)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive bucket: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Put stores the given chores, overwriting earlier entries with the same id.
func (a *Archive) Put(chores ...*types.Chore) error {
	if len(chores) == 0 {
		return nil
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChores)
		for _, chore := range chores {
			data, err := json.Marshal(chore)
			if err != nil {
				return fmt.Errorf("failed to encode chore %d: %w", chore.ID, err)
			}
			if err := b.Put([]byte(chore.Key()), data); err != nil {
				return fmt.Errorf("failed to archive chore %d: %w", chore.ID, err)
			}
		}
		return nil
	})
}

// Get retrieves one archived chore by id.
func (a *Archive) Get(id int64) (*types.Chore, error) {
	var chore *types.Chore
	err := a.db.View(func(tx *bolt.Tx) error {
		c := types.Chore{ID: id}
		data := tx.Bucket(bucketChores).Get([]byte(c.Key()))
		if data == nil {
			return ErrNotFound
		}
		chore = &types.Chore{}
		return json.Unmarshal(data, chore)
	})
	if err != nil {
		return nil, err
	}
	return chore, nil
}

// List returns all archived chores in ascending id order. Entries that no
// longer decode are skipped and logged.
func (a *Archive) List() ([]*types.Chore, error) {
	var chores []*types.Chore
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChores).ForEach(func(k, v []byte) error {
			var chore types.Chore
			if err := json.Unmarshal(v, &chore); err != nil {
				logger := log.WithComponent("archive")
				logger.Warn().Str("key", string(k)).Err(err).Msg("skipping undecodable archive entry")
				return nil
			}
			chores = append(chores, &chore)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	sort.Slice(chores, func(i, j int) bool { return chores[i].ID < chores[j].ID })
	return chores, nil
}

// MaxID returns the highest chore id ever archived, or zero when the
// archive is empty. The live registry seeds its allocator with it so
// archived ids are never reissued.
func (a *Archive) MaxID() (int64, error) {
	var max int64
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChores).ForEach(func(k, v []byte) error {
			id, err := strconv.ParseInt(string(k), 10, 64)
			if err == nil && id > max {
				max = id
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan archive: %w", err)
	}
	return max, nil
}

// Prune deletes archived chores whose end_time is older than before.
// It returns the number of entries removed.
func (a *Archive) Prune(before int64) (int, error) {
	removed := 0
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChores)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var chore types.Chore
			if err := json.Unmarshal(v, &chore); err != nil {
				return nil
			}
			if chore.EndTime != 0 && chore.EndTime < before {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to prune archive: %w", err)
	}
	return removed, nil
}
