package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/melih/aetherhost/internal/core/domain"
)

// Store is the sqlite-backed implementation of ports.UserRepository and
// ports.ContainerRepository.
type Store struct {
	db *gorm.DB
}

// Open creates the database file (and its directory) if needed and migrates
// the schema. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if path != ":memory:" {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	} else {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&User{}, &Container{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(ctx context.Context, user domain.User, passwordHash string) (domain.User, error) {
	email := normalizeEmail(user.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return domain.User{}, domain.ErrUserExists
	}

	row := User{
		Email:        email,
		Username:     user.Username,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, string, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, "", domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("get user: %w", err)
	}
	return u.toDomain(), u.PasswordHash, nil
}

func (s *Store) RecordContainer(ctx context.Context, rec domain.ContainerRecord) error {
	row := Container{
		ID:     rec.ID,
		UserID: rec.UserID,
		Name:   rec.Name,
		Image:  rec.Image,
		Status: rec.Status,
	}
	if row.Status == "" {
		row.Status = "created"
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record container: %w", err)
	}
	return nil
}

func (s *Store) ListContainers(ctx context.Context, userID uint) ([]domain.ContainerRecord, error) {
	var rows []Container
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return toRecords(rows), nil
}

// GetOwnedContainer resolves id (full or short) among the user's containers.
// Containers owned by someone else are reported as not found.
func (s *Store) GetOwnedContainer(ctx context.Context, userID uint, id string) (domain.ContainerRecord, error) {
	var c Container
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND (id = ? OR name = ?)", userID, id, id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ContainerRecord{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
	}
	if err != nil {
		return domain.ContainerRecord{}, fmt.Errorf("get container: %w", err)
	}
	return c.toDomain(), nil
}

func (s *Store) AllContainers(ctx context.Context) ([]domain.ContainerRecord, error) {
	var rows []Container
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return toRecords(rows), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	res := s.db.WithContext(ctx).Model(&Container{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
	}
	return nil
}

func (s *Store) DeleteContainer(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Container{}).Error; err != nil {
		return fmt.Errorf("delete container: %w", err)
	}
	return nil
}

func toRecords(rows []Container) []domain.ContainerRecord {
	out := make([]domain.ContainerRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
