package memory

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
)

const (
	RelationDiscussed = "discussed"
	userNode          = "user"
	snippetLen        = 100
)

// Updater writes concepts found in a conversation turn back into memory.
type Updater struct {
	svc       *Service
	extractor Extractor
	log       *logger.Logger
}

func NewUpdater(svc *Service, extractor Extractor, log *logger.Logger) *Updater {
	if extractor == nil {
		extractor = NewKeywordExtractor(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Updater{svc: svc, extractor: extractor, log: log}
}

// Update records one observation and one "discussed" relation per concept.
// It keeps going past individual failures and returns them joined.
func (u *Updater) Update(ctx context.Context, userID uint64, userText, assistantText string) ([]Concept, error) {
	concepts, err := u.extractor.Extract(ctx, userText+"\n"+assistantText)
	if err != nil {
		u.log.Warn("concept extraction failed", "user_id", userID, "error", err)
		return nil, err
	}

	observation := "Discussed: " + snippet(userText, snippetLen)

	var errs []error
	seen := map[string]bool{}
	var recorded []Concept
	for _, c := range concepts {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true

		if _, err := u.svc.AddObservations(ctx, userID, c.Name, []string{observation}); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := u.svc.CreateRelation(ctx, userID, userNode, c.Name, RelationDiscussed, c.Confidence); err != nil {
			errs = append(errs, err)
			continue
		}
		recorded = append(recorded, c)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		u.log.Warn("memory update incomplete", "user_id", userID, "recorded", len(recorded), "error", err)
		return recorded, err
	}
	if len(recorded) > 0 {
		u.log.Debug("memory updated", "user_id", userID, "concepts", len(recorded))
	}
	return recorded, nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
