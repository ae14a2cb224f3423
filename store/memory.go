// File: store/memory.go
package store

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-process implementation of the collaborator interfaces.
// It backs the standalone server (catalogues loaded from JSON files at
// startup) and the tests.
type Memory struct {
	mu        sync.RWMutex
	questions map[int64]*Question
	jingles   map[uint32]*Jingle
	results   []*Result
}

func NewMemory() *Memory {
	return &Memory{
		questions: make(map[int64]*Question),
		jingles:   make(map[uint32]*Jingle),
	}
}

func (m *Memory) AddQuestion(q *Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
}

func (m *Memory) AddJingle(j *Jingle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jingles[j.ID] = j
}

func (m *Memory) Question(id int64) (*Question, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	return q, ok
}

func (m *Memory) Jingle(id uint32) (*Jingle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jingles[id]
	return j, ok
}

func (m *Memory) WriteResult(r *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

// Results returns a copy of everything written so far.
func (m *Memory) Results() []*Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Result, len(m.results))
	copy(out, m.results)
	return out
}

// LoadQuestions reads a JSON array of questions into the store.
func (m *Memory) LoadQuestions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read questions file %s", path)
	}
	var questions []*Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return errors.Wrapf(err, "parse questions file %s", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range questions {
		m.questions[q.ID] = q
	}
	return nil
}

// LoadJingles reads a JSON array of jingle records into the store.
func (m *Memory) LoadJingles(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read jingles file %s", path)
	}
	var jingles []*Jingle
	if err := json.Unmarshal(data, &jingles); err != nil {
		return errors.Wrapf(err, "parse jingles file %s", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range jingles {
		m.jingles[j.ID] = j
	}
	return nil
}
