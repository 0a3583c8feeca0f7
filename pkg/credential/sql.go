package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/forcebit/hawk-go/pkg/signing"
)

// Record is the GORM model backing SQLResolver.
type Record struct {
	ID        string `gorm:"primaryKey;size:255"`
	Key       []byte `gorm:"not null"`
	Algorithm string `gorm:"size:32;not null"`
	User      string `gorm:"size:255;index"`
	Disabled  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Record) TableName() string {
	return "hawk_credentials"
}

// SQLResolver resolves credentials from the hawk_credentials table. Any
// GORM dialector works; hawkd uses sqlite and postgres.
type SQLResolver struct {
	db *gorm.DB
}

// NewSQLResolver wraps db. It does not migrate; call Migrate for that.
func NewSQLResolver(db *gorm.DB) *SQLResolver {
	return &SQLResolver{db: db}
}

// Migrate creates or updates the hawk_credentials table.
func (r *SQLResolver) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Record{})
}

// Resolve loads the enabled credential with the given id.
//
// Disabled and missing rows yield ErrUnknown. Rows naming an unsupported
// algorithm are a configuration error and are returned as such.
func (r *SQLResolver) Resolve(ctx context.Context, id string) (Credential, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Where("id = ? AND disabled = ?", id, false).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credential{}, ErrUnknown
	}
	if err != nil {
		return Credential{}, fmt.Errorf("load credential %q: %w", id, err)
	}

	alg, err := signing.ParseAlgorithm(rec.Algorithm)
	if err != nil {
		return Credential{}, fmt.Errorf("credential %q: %w", id, err)
	}
	c := Credential{ID: rec.ID, Key: rec.Key, Algorithm: alg, User: rec.User}
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Put inserts or replaces a credential.
func (r *SQLResolver) Put(ctx context.Context, c Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	rec := Record{ID: c.ID, Key: c.Key, Algorithm: c.Algorithm.String(), User: c.User}
	return r.db.WithContext(ctx).Save(&rec).Error
}

// Disable marks a credential unusable without deleting it.
func (r *SQLResolver) Disable(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Update("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknown
	}
	return nil
}
