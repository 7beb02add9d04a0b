package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/metrics"
)

const (
	ContextHeader        = "Here's what I remember about this teacher:"
	FirstConversationMsg = "This is our first conversation. I don't have any previous context about this teacher yet."

	entitiesLabel  = "Concepts discussed:"
	relationsLabel = "Relationships:"
)

// Source is what the assembler reads from.
type Source interface {
	GetEntities(ctx context.Context, userID uint64, entityType, nameSubstring string) ([]Entity, error)
	GetRelations(ctx context.Context, userID uint64, name string) ([]Relation, error)
}

// Limits caps how much memory is rendered into a prompt.
type Limits struct {
	MaxEntities  int
	MaxRelations int
}

func (l Limits) withDefaults() Limits {
	if l.MaxEntities <= 0 {
		l.MaxEntities = 10
	}
	if l.MaxRelations <= 0 {
		l.MaxRelations = 5
	}
	return l
}

// Result always carries usable text. Degraded is set when the text is the
// fallback because the store failed; Reason holds the failure.
type Result struct {
	Text     string
	Degraded bool
	Reason   error
}

type Assembler struct {
	src    Source
	limits Limits
	log    *logger.Logger
}

func NewAssembler(src Source, limits Limits, log *logger.Logger) *Assembler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Assembler{src: src, limits: limits.withDefaults(), log: log}
}

func (a *Assembler) Build(ctx context.Context, userID uint64, topic string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = a.degraded(userID, fmt.Errorf("memory context panic: %v", p))
		}
	}()

	entities, err := a.src.GetEntities(ctx, userID, "", "")
	if err != nil {
		return a.degraded(userID, err)
	}
	relations, err := a.src.GetRelations(ctx, userID, "")
	if err != nil {
		return a.degraded(userID, err)
	}

	if t := strings.TrimSpace(topic); t != "" {
		entities = filterByTopic(entities, t)
	}
	return Result{Text: render(entities, relations, a.limits)}
}

func (a *Assembler) degraded(userID uint64, err error) Result {
	metrics.Default().IncMemoryContextDegraded()
	a.log.Warn("memory context degraded", "user_id", userID, "error", err)
	return Result{Text: FirstConversationMsg, Degraded: true, Reason: err}
}

func filterByTopic(entities []Entity, topic string) []Entity {
	needle := strings.ToLower(topic)
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if matchesTopic(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matchesTopic(e Entity, needle string) bool {
	if strings.Contains(strings.ToLower(e.Name), needle) {
		return true
	}
	for _, o := range e.Observations {
		if strings.Contains(strings.ToLower(o), needle) {
			return true
		}
	}
	return false
}

func render(entities []Entity, relations []Relation, limits Limits) string {
	if len(entities) == 0 && len(relations) == 0 {
		return FirstConversationMsg
	}

	var b strings.Builder
	b.WriteString(ContextHeader)

	if len(entities) > 0 {
		b.WriteString("\n\n")
		b.WriteString(entitiesLabel)
		for i, e := range entities {
			if i == limits.MaxEntities {
				break
			}
			b.WriteString("\n")
			b.WriteString(entityLine(e))
		}
	}

	if len(relations) > 0 {
		b.WriteString("\n\n")
		b.WriteString(relationsLabel)
		for i, r := range relations {
			if i == limits.MaxRelations {
				break
			}
			fmt.Fprintf(&b, "\n- %s %s %s", r.FromEntity, r.RelationType, r.ToEntity)
		}
	}
	return b.String()
}

func entityLine(e Entity) string {
	obs := e.Observations
	if len(obs) > 2 {
		obs = obs[len(obs)-2:]
	}
	line := fmt.Sprintf("- %s (%s): %s", e.Name, e.EntityType, strings.Join(obs, "; "))
	return strings.TrimRight(line, " ")
}
