package quiz

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultBank(t *testing.T) {
	questions, err := DefaultBank()
	if err != nil {
		t.Fatalf("DefaultBank failed: %v", err)
	}
	if len(questions) < 60 {
		t.Fatalf("expected the curated bank, got %d questions", len(questions))
	}
	for _, q := range questions {
		if !q.IsPublished {
			t.Errorf("%s: expected published", q.QID)
		}
		if q.Category == nil || q.Explanation == nil {
			t.Errorf("%s: expected category and explanation", q.QID)
		}
	}
}

func TestSeedUpsertsByQID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	questions, err := DefaultBank()
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		n, err := Seed(ctx, db, questions)
		if err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		if n != len(questions) {
			t.Errorf("expected %d written, got %d", len(questions), n)
		}
	}

	published, err := db.PublishedQuestions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(published) != len(questions) {
		t.Errorf("expected %d questions after seeding twice, got %d", len(questions), len(published))
	}
}

func TestLoadBankFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	data := `
- qid: x-1
  prompt: "Pick b"
  choices: [a, b]
  correct_index: 1
- qid: x-2
  prompt: "Draft"
  choices: [a, b, c]
  correct_index: 0
  difficulty: hard
  published: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	questions, err := LoadBank(path)
	if err != nil {
		t.Fatalf("LoadBank failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if !questions[0].IsPublished || questions[0].Explanation != nil {
		t.Errorf("expected published question without explanation, got %+v", questions[0])
	}
	if questions[1].IsPublished || questions[1].Difficulty == nil || *questions[1].Difficulty != "hard" {
		t.Errorf("expected unpublished hard question, got %+v", questions[1])
	}
}

func TestParseBankRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing qid", "- prompt: p\n  choices: [a, b]\n", "qid is required"},
		{"duplicate qid", "- {qid: a, prompt: p, choices: [a, b]}\n- {qid: a, prompt: p, choices: [a, b]}\n", "duplicate"},
		{"one choice", "- {qid: a, prompt: p, choices: [a]}\n", "two choices"},
		{"bad index", "- {qid: a, prompt: p, choices: [a, b], correct_index: 2}\n", "out of range"},
		{"not a list", "qid: a\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBank([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
