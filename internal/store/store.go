// File: internal/store/store.go

// Package store implements the long-term workflow memory: a single JSON
// document of successful workflows, learned UI element locations, and
// success patterns, persisted after every write.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// minWordOverlap is the fuzzy-match floor: a stored workflow is "similar"
// only when its key shares at least this many words with the query task.
const minWordOverlap = 2

// uiPatternMaxAge is the freshness window for learned UI element locations.
// Screens drift; a location not confirmed within this window is ignored.
const uiPatternMaxAge = 7 * 24 * time.Hour

// WorkflowRecord is one learned successful task completion. SuccessCount
// accrues across repeats of the same normalized task key.
type WorkflowRecord struct {
	Task         string           `json:"task"`
	Actions      []schemas.Action `json:"actions"`
	Duration     float64          `json:"duration"`
	SuccessCount int              `json:"success_count"`
	LastUsed     time.Time        `json:"last_used"`
}

// UIPattern is a remembered on-screen location for a named element of an
// application, with a confidence that accrues on each sighting.
type UIPattern struct {
	X          int       `json:"x"`
	Y          int       `json:"y"`
	LastSeen   time.Time `json:"last_seen"`
	Confidence float64   `json:"confidence"`
}

// document is the on-disk shape: everything in one JSON file.
type document struct {
	Workflows       map[string]WorkflowRecord         `json:"workflows"`
	WorkflowOrder   []string                          `json:"workflow_order"`
	UIPatterns      map[string]map[string]UIPattern   `json:"ui_patterns"`
	SuccessPatterns map[string]map[string]interface{} `json:"success_patterns"`
}

// Store is the long-term workflow memory. All mutating operations persist
// the full document before returning; concurrent upserts are last-writer-wins
// per key under the mutex.
type Store struct {
	logger *zap.Logger
	path   string

	mu  sync.RWMutex
	doc document
}

// Stats summarizes the store contents for reporting.
type Stats struct {
	Workflows   int `json:"workflows"`
	UIPatterns  int `json:"ui_patterns"`
	AppsLearned int `json:"apps_learned"`
}

// New opens the store at path, loading any existing document. A missing
// file is not an error; the store starts empty. An empty path disables
// persistence entirely (in-memory only).
func New(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		logger: logger.Named("store"),
		path:   path,
		doc:    emptyDocument(),
	}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func emptyDocument() document {
	return document{
		Workflows:       make(map[string]WorkflowRecord),
		UIPatterns:      make(map[string]map[string]UIPattern),
		SuccessPatterns: make(map[string]map[string]interface{}),
	}
}

// normalizeTask produces the canonical workflow key: lowercased, trimmed.
func normalizeTask(task string) string {
	return strings.ToLower(strings.TrimSpace(task))
}

// RecordSuccess upserts the workflow record for task, incrementing its
// success counter, and persists the document.
func (s *Store) RecordSuccess(task string, actions []schemas.Action, duration time.Duration) error {
	key := normalizeTask(task)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.doc.Workflows[key]
	record := WorkflowRecord{
		Task:         task,
		Actions:      actions,
		Duration:     duration.Seconds(),
		SuccessCount: prev.SuccessCount + 1,
		LastUsed:     time.Now(),
	}
	s.doc.Workflows[key] = record
	if !existed {
		s.doc.WorkflowOrder = append(s.doc.WorkflowOrder, key)
	}

	s.logger.Info("Recorded successful workflow",
		zap.String("key", key),
		zap.Int("success_count", record.SuccessCount))

	return s.save()
}

// FindSimilar returns the stored workflow for task, preferring an exact
// normalized-key match, then the highest word-overlap match with at least
// minWordOverlap words in common. Ties go to the earliest recorded workflow.
func (s *Store) FindSimilar(task string) (WorkflowRecord, bool) {
	key := normalizeTask(task)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.doc.Workflows[key]; ok {
		return record, true
	}

	taskWords := wordSet(key)
	bestScore := 0
	var best WorkflowRecord
	for _, candidateKey := range s.doc.WorkflowOrder {
		overlap := 0
		for word := range wordSet(candidateKey) {
			if _, ok := taskWords[word]; ok {
				overlap++
			}
		}
		// Strict > keeps the first-recorded workflow on equal scores.
		if overlap > bestScore {
			bestScore = overlap
			best = s.doc.Workflows[candidateKey]
		}
	}

	if bestScore < minWordOverlap {
		return WorkflowRecord{}, false
	}
	s.logger.Info("Found similar workflow",
		zap.String("task", key),
		zap.Int("overlap", bestScore))
	return best, true
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// RecordUIPattern remembers where a named element of an application was
// seen, accruing 0.1 confidence per sighting, and persists the document.
func (s *Store) RecordUIPattern(app, element string, x, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elements, ok := s.doc.UIPatterns[app]
	if !ok {
		elements = make(map[string]UIPattern)
		s.doc.UIPatterns[app] = elements
	}
	elements[element] = UIPattern{
		X:          x,
		Y:          y,
		LastSeen:   time.Now(),
		Confidence: elements[element].Confidence + 0.1,
	}

	s.logger.Debug("Recorded UI pattern",
		zap.String("app", app),
		zap.String("element", element),
		zap.Int("x", x),
		zap.Int("y", y))

	return s.save()
}

// UIHint returns the remembered location of app/element, if it was seen
// within the freshness window. Stale patterns are treated as unknown.
func (s *Store) UIHint(app, element string) (UIPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern, ok := s.doc.UIPatterns[app][element]
	if !ok {
		return UIPattern{}, false
	}
	if time.Since(pattern.LastSeen) >= uiPatternMaxAge {
		return UIPattern{}, false
	}
	return pattern, true
}

// Stats returns counts of learned workflows and patterns.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patterns := 0
	for _, elements := range s.doc.UIPatterns {
		patterns += len(elements)
	}
	return Stats{
		Workflows:   len(s.doc.Workflows),
		UIPatterns:  patterns,
		AppsLearned: len(s.doc.UIPatterns),
	}
}

// save writes the full document to disk. Callers hold the write lock.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling memory document: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating memory directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing memory document: %w", err)
	}
	s.logger.Debug("Saved memory document", zap.String("path", s.path))
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No existing memory file found, starting fresh",
				zap.String("path", s.path))
			return nil
		}
		return fmt.Errorf("reading memory document: %w", err)
	}

	doc := emptyDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing memory document: %w", err)
	}
	if doc.Workflows == nil {
		doc.Workflows = make(map[string]WorkflowRecord)
	}
	if doc.UIPatterns == nil {
		doc.UIPatterns = make(map[string]map[string]UIPattern)
	}
	if doc.SuccessPatterns == nil {
		doc.SuccessPatterns = make(map[string]map[string]interface{})
	}
	// Rebuild insertion order for documents written before it was tracked.
	seen := make(map[string]struct{}, len(doc.WorkflowOrder))
	for _, k := range doc.WorkflowOrder {
		seen[k] = struct{}{}
	}
	for k := range doc.Workflows {
		if _, ok := seen[k]; !ok {
			doc.WorkflowOrder = append(doc.WorkflowOrder, k)
		}
	}

	s.doc = doc
	s.logger.Info("Loaded memory document",
		zap.String("path", s.path),
		zap.Int("workflows", len(doc.Workflows)),
		zap.Int("ui_patterns", len(doc.UIPatterns)))
	return nil
}
