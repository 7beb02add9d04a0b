package video

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultTopic = "Educational Content"

// TopicRule maps a set of cue phrases to a topic label.
type TopicRule struct {
	Topic   string   `yaml:"topic"`
	Phrases []string `yaml:"phrases"`
}

// Dictionary drives chunk topic and keyword tagging. Rule order matters:
// the first rule with a matching phrase wins.
type Dictionary struct {
	Topics   []TopicRule `yaml:"topics"`
	Keywords []string    `yaml:"keywords"`
}

var DefaultDictionary = Dictionary{
	Topics: []TopicRule{
		{Topic: "Practical Prompt Examples", Phrases: []string{"for example", "let's try", "example prompt", "here's a prompt", "try this"}},
		{Topic: "Prompt Engineering Basics", Phrases: []string{"prompt engineering", "prompt", "instructions", "be specific"}},
		{Topic: "Introduction to AI", Phrases: []string{"artificial intelligence", "what is ai", "introduction", "welcome"}},
		{Topic: "AI Ethics and Safety", Phrases: []string{"ethics", "privacy", "bias", "safety", "academic integrity"}},
		{Topic: "Assessment and Feedback", Phrases: []string{"assessment", "grading", "rubric", "feedback", "quiz"}},
		{Topic: "AI in the Classroom", Phrases: []string{"classroom", "lesson", "students", "curriculum"}},
		{Topic: "Wrap-up and Next Steps", Phrases: []string{"in summary", "to recap", "next steps", "thanks for watching"}},
	},
	Keywords: []string{
		"artificial intelligence", "chatgpt", "large language model", "prompt",
		"machine learning", "context", "role", "format", "example",
		"classroom", "students", "teachers", "lesson plan", "curriculum",
		"assessment", "rubric", "feedback", "differentiation",
		"ethics", "privacy", "bias", "academic integrity",
	},
}

// LoadDictionary reads a YAML dictionary from path. An empty path returns
// the built-in dictionary; an empty section in the file keeps the built-in
// section.
func LoadDictionary(path string) (Dictionary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDictionary, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Dictionary{}, fmt.Errorf("read chunk dictionary: %w", err)
	}
	var d Dictionary
	if err := yaml.Unmarshal(b, &d); err != nil {
		return Dictionary{}, fmt.Errorf("parse chunk dictionary: %w", err)
	}
	if len(d.Topics) == 0 {
		d.Topics = DefaultDictionary.Topics
	}
	if len(d.Keywords) == 0 {
		d.Keywords = DefaultDictionary.Keywords
	}
	return d, nil
}

// Topic returns the first rule whose phrase appears in text.
func (d Dictionary) Topic(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range d.Topics {
		for _, p := range rule.Phrases {
			if p != "" && strings.Contains(lower, strings.ToLower(p)) {
				return rule.Topic
			}
		}
	}
	return DefaultTopic
}

// KeywordsIn returns up to limit vocabulary entries found in text, in
// vocabulary order.
func (d Dictionary) KeywordsIn(text string, limit int) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, kw := range d.Keywords {
		if len(out) >= limit {
			break
		}
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}
