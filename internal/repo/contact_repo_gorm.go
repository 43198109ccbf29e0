package repo

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"identity-reconciler/internal/domain"
)

// ContactRepo implements domain.ContactStore on gorm. Soft-deleted rows are
// excluded from every query by gorm's DeletedAt handling.
type ContactRepo struct{ db *gorm.DB }

var _ domain.TxContactStore = (*ContactRepo)(nil)

func NewContactRepo(db *gorm.DB) *ContactRepo { return &ContactRepo{db: db} }

// WithTx returns a repo bound to the given transaction handle, so a caller
// can run a read-decide-write sequence atomically.
func (r *ContactRepo) WithTx(tx *gorm.DB) *ContactRepo { return &ContactRepo{db: tx} }

// InTx runs fn against a repo bound to one serializable transaction; the
// transaction commits only when fn returns nil.
func (r *ContactRepo) InTx(ctx context.Context, fn func(domain.ContactStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (r *ContactRepo) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]domain.Contact, error) {
	if email == nil && phone == nil {
		return nil, domain.ErrInvalidQuery
	}
	q := r.db.WithContext(ctx).Model(&domain.Contact{})
	switch {
	case email != nil && phone != nil:
		q = q.Where("email = ? OR phone_number = ?", *email, *phone)
	case email != nil:
		q = q.Where("email = ?", *email)
	default:
		q = q.Where("phone_number = ?", *phone)
	}
	var out []domain.Contact
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

func (r *ContactRepo) FindCluster(ctx context.Context, primaryID uint) ([]domain.Contact, error) {
	var out []domain.Contact
	err := r.db.WithContext(ctx).
		Where("id = ? OR linked_id = ?", primaryID, primaryID).
		Order("created_at, id").
		Find(&out).Error
	return out, err
}

func (r *ContactRepo) Insert(ctx context.Context, email, phone *string, precedence domain.LinkPrecedence, linkedID *uint) (*domain.Contact, error) {
	if email == nil && phone == nil {
		return nil, domain.ErrInvalidContact
	}
	c := domain.Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       linkedID,
		LinkPrecedence: precedence,
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepo) DemoteToSecondary(ctx context.Context, id, newLinkedID uint) error {
	res := r.db.WithContext(ctx).Model(&domain.Contact{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"link_precedence": domain.LinkSecondary,
			"linked_id":       newLinkedID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ContactRepo) List(ctx context.Context) ([]domain.Contact, error) {
	var out []domain.Contact
	err := r.db.WithContext(ctx).Order("created_at, id").Find(&out).Error
	return out, err
}
