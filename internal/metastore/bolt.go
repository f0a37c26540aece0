// internal/metastore/bolt.go
package metastore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	fanoutsBucket = []byte("fanouts")
	filesBucket   = []byte("files")
)

// BoltStore реализация MetaStore на основе BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore создает новый журнал на основе BoltDB
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Создаем необходимые бакеты
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(fanoutsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(filesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Record сохраняет запись и добавляет ее ID в историю файла
func (bs *BoltStore) Record(rec *FanoutRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	return bs.db.Update(func(tx *bolt.Tx) error {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket(fanoutsBucket).Put([]byte(rec.ID), encoded); err != nil {
			return err
		}

		// bbolt не принимает пустой ключ
		if rec.Filename == "" {
			return nil
		}

		files := tx.Bucket(filesBucket)
		var ids []string
		if data := files.Get([]byte(rec.Filename)); data != nil {
			if err := json.Unmarshal(data, &ids); err != nil {
				return err
			}
		}
		ids = append(ids, rec.ID)

		encoded, err = json.Marshal(ids)
		if err != nil {
			return err
		}
		return files.Put([]byte(rec.Filename), encoded)
	})
}

// Get возвращает запись по ID
func (bs *BoltStore) Get(id string) (*FanoutRecord, error) {
	var rec FanoutRecord

	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(fanoutsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// History возвращает все записи по имени файла
func (bs *BoltStore) History(filename string) ([]FanoutRecord, error) {
	records := []FanoutRecord{}

	err := bs.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(filesBucket).Get([]byte(filename))
		if data == nil {
			return nil
		}

		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}

		fanouts := tx.Bucket(fanoutsBucket)
		for _, id := range ids {
			raw := fanouts.Get([]byte(id))
			if raw == nil {
				continue
			}
			var rec FanoutRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Close закрывает хранилище
func (bs *BoltStore) Close() error {
	return bs.db.Close()
}
