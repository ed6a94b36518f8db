// Package insights keeps free-form insight records in a single JSON file.
package insights

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const fileName = "temp_insights.json"

var (
	ErrNotFound   = errors.New("insight not found")
	ErrIDMismatch = errors.New("mismatched item id in request")
)

// Insight is one stored record; its fields are whatever the client sent.
type Insight = map[string]any

var (
	storeRules = map[string]any{
		"user_email": "required,email",
	}
	updateRules = map[string]any{
		"id":          "required",
		"user_email":  "required,email",
		"priority":    "required",
		"status":      "required",
		"tab_context": "required",
	}
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

type Store struct {
	mu       sync.Mutex
	path     string
	validate *validator.Validate
}

// NewStore keeps its file at storageDir/insights/temp_insights.json.
func NewStore(storageDir string) *Store {
	return &Store{
		path:     filepath.Join(storageDir, "insights", fileName),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Store) List() ([]Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add appends item, assigning an id when the client did not send one.
func (s *Store) Add(item Insight) (Insight, error) {
	if err := s.check(item, storeRules); err != nil {
		return nil, err
	}
	if id, _ := item["id"].(string); id == "" {
		item["id"] = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	all = append(all, item)
	if err := s.save(all); err != nil {
		return nil, err
	}
	return item, nil
}

// Update replaces the record with the given id by item.
func (s *Store) Update(id string, item Insight) (Insight, error) {
	if err := s.check(item, updateRules); err != nil {
		return nil, err
	}
	if bodyID, _ := item["id"].(string); bodyID != id {
		return nil, ErrIDMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	idx := indexOf(all, id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	all[idx] = item
	if err := s.save(all); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}

	kept := all[:0]
	for _, item := range all {
		if itemID, _ := item["id"].(string); itemID != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(all) {
		return ErrNotFound
	}
	return s.save(kept)
}

func (s *Store) check(item Insight, rules map[string]any) error {
	errs := s.validate.ValidateMap(item, rules)
	if len(errs) == 0 {
		return nil
	}
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields}
}

func (s *Store) load() ([]Insight, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Insight{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read insights: %w", err)
	}
	var all []Insight
	if err := json.Unmarshal(raw, &all); err != nil || all == nil {
		return []Insight{}, nil
	}
	return all, nil
}

func (s *Store) save(all []Insight) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create insights dir: %w", err)
	}
	raw, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write insights: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace insights: %w", err)
	}
	return nil
}

func indexOf(all []Insight, id string) int {
	for i, item := range all {
		if itemID, _ := item["id"].(string); itemID == id {
			return i
		}
	}
	return -1
}
