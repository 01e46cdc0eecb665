package store

import (
	"time"

	"github.com/melih/aetherhost/internal/core/domain"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"uniqueIndex;not null;size:255"`
	Username     string    `gorm:"size:64"`
	PasswordHash string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

type Container struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    uint      `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	Image     string    `gorm:"not null"`
	Status    string    `gorm:"not null;default:created"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u User) toDomain() domain.User {
	return domain.User{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func (c Container) toDomain() domain.ContainerRecord {
	return domain.ContainerRecord{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Image:     c.Image,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
