package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/tasktrack/internal/database"
	"gorm.io/gorm"
)

// GormIdentityStore persists identities using GORM.
type GormIdentityStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *GormIdentityStore) Driver() string {
	return store.driverLabel
}

// IdentityRecord is the GORM model for identities. The email column carries a
// unique index so concurrent first logins collapse onto one row.
type IdentityRecord struct {
	ID              string `gorm:"column:id;primaryKey"`
	Email           string `gorm:"column:email;uniqueIndex;not null"`
	DisplayName     string `gorm:"column:display_name;not null;default:''"`
	PictureURL      string `gorm:"column:picture_url;not null;default:''"`
	ProviderSubject string `gorm:"column:provider_subject;not null;default:''"`
	CreatedAtUnix   int64  `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix   int64  `gorm:"column:updated_at_unix;not null"`
}

func (IdentityRecord) TableName() string {
	return "identities"
}

// NewGormIdentityStore wraps an open GORM handle; the identities table must be migrated.
func NewGormIdentityStore(gormDB *gorm.DB, driverLabel string) *GormIdentityStore {
	return &GormIdentityStore{db: gormDB, driverLabel: driverLabel}
}

// OpenGormIdentityStore connects to the database URL and migrates the identities table.
func OpenGormIdentityStore(ctx context.Context, databaseURL string) (*GormIdentityStore, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &IdentityRecord{})
	if err != nil {
		return nil, fmt.Errorf("identity_store.open: %w", err)
	}
	return NewGormIdentityStore(gormDB, driverLabel), nil
}

// FindIdentityByEmail locates an identity by its email key.
func (store *GormIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	var record IdentityRecord
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, fmt.Errorf("identity_store.find.%s: %w", store.driverLabel, ErrIdentityNotFound)
		}
		return Identity{}, fmt.Errorf("identity_store.find.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

// SaveIdentity updates the mutable fields of an existing identity or inserts a new one.
func (store *GormIdentityStore) SaveIdentity(ctx context.Context, identity Identity) (Identity, error) {
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(identity.Email) == "" {
		return Identity{}, fmt.Errorf("identity_store.save.%s: %w", store.driverLabel, ErrInvalidAssertion)
	}
	record := newIdentityRecord(identity)

	var existing IdentityRecord
	findErr := store.db.WithContext(ctx).Where("id = ?", record.ID).Take(&existing).Error
	switch {
	case findErr == nil:
		updates := map[string]any{
			"display_name":    record.DisplayName,
			"picture_url":     record.PictureURL,
			"updated_at_unix": record.UpdatedAtUnix,
		}
		if existing.ProviderSubject == "" {
			updates["provider_subject"] = record.ProviderSubject
		}
		if err := store.db.WithContext(ctx).Model(&IdentityRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
			return Identity{}, fmt.Errorf("identity_store.update.%s: %w", store.driverLabel, err)
		}
		if err := store.db.WithContext(ctx).Where("id = ?", record.ID).Take(&existing).Error; err != nil {
			return Identity{}, fmt.Errorf("identity_store.update.%s: %w", store.driverLabel, err)
		}
		return existing.toIdentity(), nil
	case !errors.Is(findErr, gorm.ErrRecordNotFound):
		return Identity{}, fmt.Errorf("identity_store.save.%s: %w", store.driverLabel, findErr)
	}

	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return Identity{}, fmt.Errorf("identity_store.insert.%s: %w", store.driverLabel, ErrDuplicateEmail)
		}
		return Identity{}, fmt.Errorf("identity_store.insert.%s: %w", store.driverLabel, err)
	}
	return record.toIdentity(), nil
}

func newIdentityRecord(identity Identity) IdentityRecord {
	return IdentityRecord{
		ID:              identity.ID,
		Email:           identity.Email,
		DisplayName:     identity.DisplayName,
		PictureURL:      identity.PictureURL,
		ProviderSubject: identity.ProviderSubject,
		CreatedAtUnix:   identity.CreatedAt.Unix(),
		UpdatedAtUnix:   identity.UpdatedAt.Unix(),
	}
}

func (record IdentityRecord) toIdentity() Identity {
	return Identity{
		ID:              record.ID,
		Email:           record.Email,
		DisplayName:     record.DisplayName,
		PictureURL:      record.PictureURL,
		ProviderSubject: record.ProviderSubject,
		CreatedAt:       time.Unix(record.CreatedAtUnix, 0).UTC(),
		UpdatedAt:       time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
}
