package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/danieljhkim/wcmerge/internal/hash"
)

type nodeRow struct {
	ID         string `gorm:"primaryKey"`
	GraphID    string `gorm:"index;not null"`
	Generation int    `gorm:"not null"`
	TreeID     string `gorm:"not null"`
	Message    string
	CreatedAt  time.Time
}

func (nodeRow) TableName() string { return "nodes" }

type edgeRow struct {
	Child    string `gorm:"primaryKey"`
	Parent   string `gorm:"primaryKey;index"`
	Position int
}

func (edgeRow) TableName() string { return "edges" }

type blobRow struct {
	ID   string `gorm:"primaryKey"`
	Data []byte
}

func (blobRow) TableName() string { return "blobs" }

// SQLStore is a Store persisted in a SQLite database.
type SQLStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenSQLStore opens (creating if necessary) the repository database at path.
func OpenSQLStore(path string, log *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository db: %w", err)
	}

	if err := db.AutoMigrate(&nodeRow{}, &edgeRow{}, &blobRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate repository db: %w", err)
	}

	log.Debug("repository opened", zap.String("path", path))
	return &SQLStore{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FetchNode loads a node and its ordered parents.
func (s *SQLStore) FetchNode(ctx context.Context, id string) (*Node, error) {
	var row nodeRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load node %s: %w", id, err)
	}

	var edges []edgeRow
	if err := s.db.WithContext(ctx).Where("child = ?", id).Order("position").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to load parents of %s: %w", id, err)
	}

	n := NewNode(row.GraphID)
	if err := n.SetID(row.ID); err != nil {
		return nil, err
	}
	if err := n.SetGeneration(row.Generation); err != nil {
		return nil, err
	}
	for _, e := range edges {
		if err := n.AddParent(e.Parent); err != nil {
			return nil, err
		}
	}
	if err := n.SetTree(row.TreeID); err != nil {
		return nil, err
	}
	if err := n.SetMessage(row.Message); err != nil {
		return nil, err
	}
	if err := n.SetTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if err := n.Freeze(); err != nil {
		return nil, err
	}
	return n, nil
}

// FetchLeaves returns the ids of childless nodes in a graph.
func (s *SQLStore) FetchLeaves(ctx context.Context, graphID string) ([]string, error) {
	var ids []string
	parents := s.db.Model(&edgeRow{}).Select("parent")
	err := s.db.WithContext(ctx).Model(&nodeRow{}).
		Where("graph_id = ? AND id NOT IN (?)", graphID, parents).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	return ids, nil
}

// FetchTree returns the tree recorded by a node.
func (s *SQLStore) FetchTree(ctx context.Context, nodeID string) (*Tree, error) {
	return fetchTree(ctx, s, nodeID)
}

// ReadBlob returns a blob's bytes.
func (s *SQLStore) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	var row blobRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	if row.Data == nil {
		return []byte{}, nil
	}
	return row.Data, nil
}

// PutBlob stores bytes under their content id. Storing existing content is a no-op.
func (s *SQLStore) PutBlob(ctx context.Context, data []byte) (string, error) {
	id := hash.Sum(data)
	row := blobRow{ID: id, Data: data}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return id, nil
}

// PutNode stores a frozen node and its parent edges in one transaction.
func (s *SQLStore) PutNode(ctx context.Context, n *Node) error {
	if !n.Frozen() {
		return fmt.Errorf("refusing to store unfrozen node")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range n.Parents() {
			var count int64
			if err := tx.Model(&nodeRow{}).Where("id = ?", p).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("parent %s: %w", p, ErrNotFound)
			}
		}

		row := nodeRow{
			ID:         n.ID(),
			GraphID:    n.GraphID(),
			Generation: n.Generation(),
			TreeID:     n.TreeID(),
			Message:    n.Message(),
			CreatedAt:  n.Time(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}

		for i, p := range n.Parents() {
			edge := edgeRow{Child: n.ID(), Parent: p, Position: i}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
				return fmt.Errorf("failed to insert edge: %w", err)
			}
		}

		s.log.Debug("node stored",
			zap.String("node", n.ID()),
			zap.Int("generation", n.Generation()),
			zap.Strings("parents", n.Parents()))
		return nil
	})
}

// ResolvePrefix expands a unique id prefix within a graph.
func (s *SQLStore) ResolvePrefix(ctx context.Context, graphID, prefix string) (string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&nodeRow{}).
		Where("graph_id = ? AND id LIKE ?", graphID, prefix+"%").
		Limit(2).
		Pluck("id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", prefix, err)
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("version %s: %w", prefix, ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}
