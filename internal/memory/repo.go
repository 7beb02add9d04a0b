package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, log *logger.Logger) *Repo {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repo{db: db, log: log}
}

func encodeList(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

// decodeList never fails: a malformed column is logged and read as empty.
func (r *Repo) decodeList(raw datatypes.JSON, table string, id uint64) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		r.log.Warn("malformed json list column", "table", table, "id", id, "error", err)
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func (r *Repo) toEntity(row *entityRow) Entity {
	return Entity{
		ID:           row.ID,
		UserID:       row.UserID,
		Name:         row.Name,
		EntityType:   row.EntityType,
		Observations: r.decodeList(row.Observations, "memory_entities", row.ID),
		Confidence:   row.Confidence,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func (r *Repo) toRelation(row *relationRow) Relation {
	return Relation{
		ID:           row.ID,
		UserID:       row.UserID,
		FromEntity:   row.FromEntity,
		ToEntity:     row.ToEntity,
		RelationType: row.RelationType,
		Strength:     row.Strength,
		Evidence:     r.decodeList(row.Evidence, "memory_relations", row.ID),
		CreatedAt:    row.CreatedAt,
	}
}

func (r *Repo) InsertEntity(ctx context.Context, e *Entity) error {
	done := metrics.TimeOp("db_insert_entity")
	row := entityRow{
		UserID:       e.UserID,
		Name:         e.Name,
		EntityType:   e.EntityType,
		Observations: encodeList(e.Observations),
		Confidence:   e.Confidence,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		done(false)
		return err
	}
	done(true)
	*e = r.toEntity(&row)
	return nil
}

// FindEntity returns the most recently updated entity with exactly this
// name, or nil when there is none.
func (r *Repo) FindEntity(ctx context.Context, userID uint64, name string) (*Entity, error) {
	done := metrics.TimeOp("db_find_entity")
	var row entityRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		Order("updated_at DESC").Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		done(true)
		return nil, nil
	}
	if err != nil {
		done(false)
		return nil, err
	}
	done(true)
	e := r.toEntity(&row)
	return &e, nil
}

// SaveObservations overwrites the full observation list of one entity row.
func (r *Repo) SaveObservations(ctx context.Context, e *Entity) error {
	done := metrics.TimeOp("db_save_observations")
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&entityRow{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"observations": encodeList(e.Observations),
			"updated_at":   now,
		}).Error
	if err != nil {
		done(false)
		return err
	}
	done(true)
	e.UpdatedAt = now
	return nil
}

type EntityFilter struct {
	EntityType    string
	NameSubstring string
}

// likeEscaper makes a substring literal inside LIKE with ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ListEntities returns entities newest-updated first.
func (r *Repo) ListEntities(ctx context.Context, userID uint64, f EntityFilter) ([]Entity, error) {
	done := metrics.TimeOp("db_list_entities")
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if t := strings.TrimSpace(f.EntityType); t != "" {
		q = q.Where("entity_type = ?", t)
	}
	if s := strings.TrimSpace(f.NameSubstring); s != "" {
		q = q.Where("LOWER(name) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
	}

	var rows []entityRow
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		done(false)
		return nil, err
	}
	done(true)
	out := make([]Entity, 0, len(rows))
	for i := range rows {
		out = append(out, r.toEntity(&rows[i]))
	}
	return out, nil
}

// UpsertRelation replaces any relation on the same (user, from, to, type) key.
func (r *Repo) UpsertRelation(ctx context.Context, rel *Relation) error {
	done := metrics.TimeOp("db_upsert_relation")
	row := relationRow{
		UserID:       rel.UserID,
		FromEntity:   rel.FromEntity,
		ToEntity:     rel.ToEntity,
		RelationType: rel.RelationType,
		Strength:     rel.Strength,
		Evidence:     encodeList(rel.Evidence),
		CreatedAt:    time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "from_entity"}, {Name: "to_entity"}, {Name: "relation_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"strength", "evidence", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		done(false)
		return err
	}

	// the conflict path does not report the existing id; read it back
	var stored relationRow
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND from_entity = ? AND to_entity = ? AND relation_type = ?",
			rel.UserID, rel.FromEntity, rel.ToEntity, rel.RelationType).
		First(&stored).Error; err != nil {
		done(false)
		return err
	}
	done(true)
	*rel = r.toRelation(&stored)
	return nil
}

// ListRelations returns relations newest first; name, when set, matches either endpoint.
func (r *Repo) ListRelations(ctx context.Context, userID uint64, name string) ([]Relation, error) {
	done := metrics.TimeOp("db_list_relations")
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if n := strings.TrimSpace(name); n != "" {
		q = q.Where("from_entity = ? OR to_entity = ?", n, n)
	}

	var rows []relationRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		done(false)
		return nil, err
	}
	done(true)
	out := make([]Relation, 0, len(rows))
	for i := range rows {
		out = append(out, r.toRelation(&rows[i]))
	}
	return out, nil
}
