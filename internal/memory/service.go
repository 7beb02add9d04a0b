package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
)

var (
	ErrEmptyName         = errors.New("memory: entity name is required")
	ErrEmptyRelationType = errors.New("memory: relation endpoints and type are required")
)

// Service is the per-user knowledge store: entities with observations and
// weighted relations between entity names.
type Service struct {
	repo      *Repo
	assembler *Assembler
	log       *logger.Logger
}

func NewService(repo *Repo, limits Limits, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{repo: repo, log: log}
	s.assembler = NewAssembler(s, limits, log)
	return s
}

// CreateEntity always inserts a new row, even if the user already has an
// entity with the same name.
func (s *Service) CreateEntity(ctx context.Context, userID uint64, name, entityType string, observations []string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		entityType = DefaultEntityType
	}
	e := &Entity{
		UserID:       userID,
		Name:         name,
		EntityType:   entityType,
		Observations: append([]string(nil), observations...),
		Confidence:   DefaultConfidence,
	}
	if err := s.repo.InsertEntity(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddObservations appends to the existing entity or creates a "concept"
// entity. The lookup and the write are separate statements: two concurrent
// calls for the same entity may lose one of the appends.
func (s *Service) AddObservations(ctx context.Context, userID uint64, name string, observations []string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	existing, err := s.repo.FindEntity(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.CreateEntity(ctx, userID, name, DefaultEntityType, observations)
	}

	existing.Observations = append(existing.Observations, observations...)
	if err := s.repo.SaveObservations(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// CreateRelation upserts on (user, from, to, type); strength is clamped to [0,1].
func (s *Service) CreateRelation(ctx context.Context, userID uint64, from, to, relationType string, strength float64) (*Relation, error) {
	from, to, relationType = strings.TrimSpace(from), strings.TrimSpace(to), strings.TrimSpace(relationType)
	if from == "" || to == "" || relationType == "" {
		return nil, ErrEmptyRelationType
	}
	switch {
	case strength < 0:
		strength = 0
	case strength > 1:
		strength = 1
	}
	rel := &Relation{
		UserID:       userID,
		FromEntity:   from,
		ToEntity:     to,
		RelationType: relationType,
		Strength:     strength,
	}
	if err := s.repo.UpsertRelation(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *Service) GetEntities(ctx context.Context, userID uint64, entityType, nameSubstring string) ([]Entity, error) {
	return s.repo.ListEntities(ctx, userID, EntityFilter{EntityType: entityType, NameSubstring: nameSubstring})
}

func (s *Service) GetRelations(ctx context.Context, userID uint64, name string) ([]Relation, error) {
	return s.repo.ListRelations(ctx, userID, name)
}

// BuildMemoryContext renders the prompt paragraph for a user. It never fails;
// see Assembler.Build for the degraded path.
func (s *Service) BuildMemoryContext(ctx context.Context, userID uint64, topic string) string {
	return s.assembler.Build(ctx, userID, topic).Text
}

// Assembler exposes the context assembler so callers can observe degraded builds.
func (s *Service) Assembler() *Assembler {
	return s.assembler
}
