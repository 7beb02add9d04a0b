package memory

import (
	"time"

	"gorm.io/datatypes"
)

// Entity is a named concept a user has discussed.
type Entity struct {
	ID           uint64    `json:"id"`
	UserID       uint64    `json:"-"`
	Name         string    `json:"name"`
	EntityType   string    `json:"entity_type"`
	Observations []string  `json:"observations"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Relation is a typed, weighted directed edge between two entity names.
// The endpoints are not required to exist as entities.
type Relation struct {
	ID           uint64    `json:"id"`
	UserID       uint64    `json:"-"`
	FromEntity   string    `json:"from_entity"`
	ToEntity     string    `json:"to_entity"`
	RelationType string    `json:"relation_type"`
	Strength     float64   `json:"strength"`
	Evidence     []string  `json:"evidence"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	DefaultEntityType = "concept"
	DefaultConfidence = 0.8
)

type entityRow struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	UserID       uint64         `gorm:"not null;index:idx_mem_entity_user_name,priority:1;index:idx_mem_entity_user_updated,priority:1"`
	Name         string         `gorm:"type:varchar(255);not null;index:idx_mem_entity_user_name,priority:2"`
	EntityType   string         `gorm:"type:varchar(64);not null;index"`
	Observations datatypes.JSON `gorm:"not null"`
	Confidence   float64        `gorm:"not null;default:0.8"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index:idx_mem_entity_user_updated,priority:2"`
}

func (entityRow) TableName() string { return "memory_entities" }

type relationRow struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	UserID       uint64         `gorm:"not null;uniqueIndex:uniq_mem_relation_key,priority:1"`
	FromEntity   string         `gorm:"type:varchar(255);not null;uniqueIndex:uniq_mem_relation_key,priority:2;index"`
	ToEntity     string         `gorm:"type:varchar(255);not null;uniqueIndex:uniq_mem_relation_key,priority:3;index"`
	RelationType string         `gorm:"type:varchar(64);not null;uniqueIndex:uniq_mem_relation_key,priority:4"`
	Strength     float64        `gorm:"not null"`
	Evidence     datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time
}

func (relationRow) TableName() string { return "memory_relations" }

// Models lists the tables owned by this package, for migration.
func Models() []any {
	return []any{&entityRow{}, &relationRow{}}
}
