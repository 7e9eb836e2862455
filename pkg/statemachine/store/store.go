// Package store 基于 bbolt 的快照与转换历史存储
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/junbin-yang/statesurf/pkg/statemachine"
)

const (
	defaultBucket  = "snapshots"
	historyBucket  = "history"
	defaultTimeout = time.Second
)

var (
	// ErrNotFound 快照不存在
	ErrNotFound = errors.New("snapshot not found")

	// ErrEmptyKey 快照名称为空
	ErrEmptyKey = errors.New("empty snapshot key")
)

// Option 存储选项
type Option func(*Store)

// WithBucket 设置快照所在的 bucket
func WithBucket(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// WithTimeout 设置获取文件锁的超时
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Store 快照存储，key 为状态机名称
type Store struct {
	db      *bbolt.DB
	bucket  []byte
	timeout time.Duration
}

// Open 打开或创建数据库文件
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		bucket:  []byte(defaultBucket),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	s.db = db
	return s, nil
}

// Save 保存快照，覆盖同名快照
func (s *Store) Save(key string, snapshot *statemachine.Snapshot) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := statemachine.EncodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
}

// Load 读取快照
func (s *Store) Load(key string) (*statemachine.Snapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		// bbolt 返回的切片只在事务内有效
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statemachine.DecodeSnapshot(data)
}

// Delete 删除快照及其历史
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(s.bucket).Delete([]byte(key)); err != nil {
			return err
		}
		err := tx.Bucket([]byte(historyBucket)).DeleteBucket([]byte(key))
		if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		return nil
	})
}

// List 返回排序后的快照名称
func (s *Store) List() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

// AppendHistory 追加转换历史，按写入顺序编号
func (s *Store) AppendHistory(key string, entries ...statemachine.HistoryEntry) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket([]byte(historyBucket)).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		for _, e := range entries {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := msgpack.Marshal(&e)
			if err != nil {
				return fmt.Errorf("encode history %s: %w", key, err)
			}
			if err := b.Put(itob(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// History 读取转换历史，limit <= 0 表示全部，否则返回最近的 limit 条
func (s *Store) History(key string, limit int) ([]statemachine.HistoryEntry, error) {
	var entries []statemachine.HistoryEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket)).Bucket([]byte(key))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e statemachine.HistoryEntry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode history %s: %w", key, err)
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// itob 大端编码，保证游标按写入顺序遍历
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
