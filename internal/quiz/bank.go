package quiz

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/siteassist/internal/database"
)

//go:embed questions.yaml
var defaultBank []byte

// BankQuestion is one entry of a question bank file.
type BankQuestion struct {
	QID          string   `yaml:"qid"`
	Prompt       string   `yaml:"prompt"`
	Choices      []string `yaml:"choices"`
	CorrectIndex int      `yaml:"correct_index"`
	Explanation  string   `yaml:"explanation"`
	Category     string   `yaml:"category"`
	Difficulty   string   `yaml:"difficulty"`
	Tags         []string `yaml:"tags"`
	Published    *bool    `yaml:"published"`
}

// Seeder stores questions by qid.
type Seeder interface {
	UpsertQuestion(ctx context.Context, q database.QuizQuestion) error
}

// DefaultBank returns the curated bank compiled into the binary.
func DefaultBank() ([]database.QuizQuestion, error) {
	return ParseBank(defaultBank)
}

// LoadBank reads a bank from a YAML file.
func LoadBank(path string) ([]database.QuizQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}
	return ParseBank(data)
}

// ParseBank decodes and validates a YAML question list. Entries without a
// published flag are published.
func ParseBank(data []byte) ([]database.QuizQuestion, error) {
	var entries []BankQuestion
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	questions := make([]database.QuizQuestion, 0, len(entries))
	for i, e := range entries {
		switch {
		case e.QID == "":
			return nil, fmt.Errorf("question #%d: qid is required", i+1)
		case seen[e.QID]:
			return nil, fmt.Errorf("question %s: duplicate qid", e.QID)
		case e.Prompt == "":
			return nil, fmt.Errorf("question %s: prompt is required", e.QID)
		case len(e.Choices) < 2:
			return nil, fmt.Errorf("question %s: at least two choices are required", e.QID)
		case e.CorrectIndex < 0 || e.CorrectIndex >= len(e.Choices):
			return nil, fmt.Errorf("question %s: correct_index %d out of range", e.QID, e.CorrectIndex)
		}
		seen[e.QID] = true

		published := true
		if e.Published != nil {
			published = *e.Published
		}
		questions = append(questions, database.QuizQuestion{
			QID:          e.QID,
			Prompt:       e.Prompt,
			Choices:      e.Choices,
			CorrectIndex: e.CorrectIndex,
			Explanation:  optional(e.Explanation),
			Category:     optional(e.Category),
			Difficulty:   optional(e.Difficulty),
			Tags:         e.Tags,
			IsPublished:  published,
		})
	}
	return questions, nil
}

// Seed upserts every question and returns how many were written.
func Seed(ctx context.Context, store Seeder, questions []database.QuizQuestion) (int, error) {
	for i, q := range questions {
		if err := store.UpsertQuestion(ctx, q); err != nil {
			return i, err
		}
	}
	return len(questions), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
