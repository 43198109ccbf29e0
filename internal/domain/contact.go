package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type LinkPrecedence string

const (
	LinkPrimary   LinkPrecedence = "primary"
	LinkSecondary LinkPrecedence = "secondary"
)

// Contact is one identity record. A primary contact roots a cluster;
// secondaries carry LinkedID pointing directly at their primary (never at
// another secondary).
type Contact struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Email          *string        `gorm:"index;size:255" json:"email"`
	PhoneNumber    *string        `gorm:"index;size:32" json:"phoneNumber"`
	LinkedID       *uint          `gorm:"index" json:"linkedId"`
	LinkPrecedence LinkPrecedence `gorm:"size:16;not null" json:"linkPrecedence"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Contact) TableName() string { return "contacts" }

// IsPrimary reports whether the contact roots its cluster.
func (c *Contact) IsPrimary() bool { return c.LinkPrecedence == LinkPrimary }

// PrimaryID resolves the id of the contact's cluster root: itself when
// primary, the linked contact otherwise.
func (c *Contact) PrimaryID() uint {
	if c.LinkedID != nil {
		return *c.LinkedID
	}
	return c.ID
}

// ConsolidatedView is the aggregated identity information for one cluster.
// Emails and PhoneNumbers are unique, primary's value first, then ascending
// creation order. SecondaryContactIDs are in ascending creation order.
type ConsolidatedView struct {
	PrimaryContactID    uint     `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []uint   `json:"secondaryContactIds"`
}

// ContactStore is the persistence contract the reconciliation engine
// requires. Any durable store works; reads must reflect writes committed
// earlier in the same logical transaction.
type ContactStore interface {
	// FindByEmailOrPhone returns all active contacts whose email or phone
	// equals the given non-nil criteria, ordered by creation.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]Contact, error)
	// FindCluster returns the primary with the given id plus every active
	// contact linked to it, ordered by creation.
	FindCluster(ctx context.Context, primaryID uint) ([]Contact, error)
	// Insert persists a new contact and returns it with its assigned id.
	Insert(ctx context.Context, email, phone *string, precedence LinkPrecedence, linkedID *uint) (*Contact, error)
	// DemoteToSecondary rewires an existing contact under a new primary.
	DemoteToSecondary(ctx context.Context, id, newLinkedID uint) error
	// List returns all active contacts in creation order.
	List(ctx context.Context) ([]Contact, error)
}

// TxContactStore adds the transactional hook the reconciliation engine
// needs: InTx runs fn against a store bound to a single serializable
// transaction, committing only when fn returns nil.
type TxContactStore interface {
	ContactStore
	InTx(ctx context.Context, fn func(ContactStore) error) error
}
