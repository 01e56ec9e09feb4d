// internal/store/store.go
package store

import (
	"context"
	"time"
)

// Position is committed capital: one row per successful entry swap.
// Rows are only ever inserted and deleted; closure is a delete, never
// an update, so a crashed exit can at worst leave the row for the
// next cycle.
type Position struct {
	ID           uint      `gorm:"primarykey"`
	TokenAddress string    `gorm:"index;not null;type:varchar(42)"`
	AmountIn     string    `gorm:"not null;type:varchar(80)"` // wei, decimal string
	EntryTxHash  string    `gorm:"not null;type:varchar(66)"`
	OpenedAt     time.Time `gorm:"not null"`
}

// Store is the durable table of open positions. It is the sole source
// of truth: on restart, whatever List returns is managed again.
type Store interface {
	Insert(ctx context.Context, position *Position) error
	List(ctx context.Context) ([]*Position, error)
	Delete(ctx context.Context, id uint) error
	Close() error
}
