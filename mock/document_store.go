package mock

import (
	"sync"

	"gitlab.com/auditker/auditk"
)

// DocumentStore keeps the saved document in memory
type DocumentStore struct {
	mu sync.Mutex

	PathFn     func() string
	PathCalled bool

	LoadFn     func() *auditk.Document
	LoadCalled bool

	SaveFn     func(doc *auditk.Document) bool
	SaveCalled bool
	Saves      int
	Saved      *auditk.Document
}

// Path of the document
func (s *DocumentStore) Path() string {
	s.mu.Lock()
	s.PathCalled = true
	s.mu.Unlock()
	return s.PathFn()
}

// Load the document
func (s *DocumentStore) Load() *auditk.Document {
	s.mu.Lock()
	s.LoadCalled = true
	s.mu.Unlock()
	return s.LoadFn()
}

// Save the document
func (s *DocumentStore) Save(doc *auditk.Document) bool {
	s.mu.Lock()
	s.SaveCalled = true
	s.Saves++
	s.mu.Unlock()
	return s.SaveFn(doc)
}

// LastSaved copy of the document, nil if nothing was saved
func (s *DocumentStore) LastSaved() *auditk.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Saved == nil {
		return nil
	}
	return s.Saved.Clone()
}

// MakeMockDocumentStore that starts from doc (empty if nil) and remembers the last save
func MakeMockDocumentStore(path string, doc *auditk.Document) *DocumentStore {
	if doc == nil {
		doc = auditk.NewDocument()
	}
	s := &DocumentStore{}
	s.PathFn = func() string {
		return path
	}
	s.LoadFn = func() *auditk.Document {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.Saved != nil {
			return s.Saved.Clone()
		}
		return doc.Clone()
	}
	s.SaveFn = func(d *auditk.Document) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Saved = d.Clone()
		return true
	}
	return s
}
