package store

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

const corruptSuffix = ".corrupt"

// DocumentStore loads and saves a single project document
type DocumentStore struct {
	path string
	now  func() time.Time
}

// NewDocumentStore for the document at path
func NewDocumentStore(path string) *DocumentStore {
	return &DocumentStore{path: path, now: time.Now}
}

// Path of the backing file
func (s *DocumentStore) Path() string {
	return s.path
}

// Load the document. Load never fails: I/O errors and document level
// corruption return an empty document, item level problems are repaired and
// the repaired document is saved straight away.
func (s *DocumentStore) Load() *auditk.Document {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		data, err = s.recoverTemp()
		if err != nil {
			log.Info().Str("file", s.path).Msg("no document found, starting empty")
			return auditk.NewDocument()
		}
	} else if err != nil {
		log.Error().Err(err).Str("file", s.path).Msg("failed to read document, starting empty")
		return auditk.NewDocument()
	}

	doc, report, err := decodeDocument(data, s.now())
	if err != nil {
		log.Error().Err(err).Str("file", s.path).Msg("document is corrupt, starting empty")
		s.backupCorrupt(data)
		return auditk.NewDocument()
	}

	for _, reason := range report.Dropped {
		log.Warn().Str("file", s.path).Str("reason", reason).Msg("dropped entry while loading")
	}

	if report.Dirty() {
		log.Info().
			Str("file", s.path).
			Strs("migrated", report.Migrated).
			Strs("defaulted", report.Defaulted).
			Int("repaired", report.Repaired).
			Int("dropped", len(report.Dropped)).
			Msg("document was upgraded, saving")
		if !s.Save(doc) {
			log.Warn().Str("file", s.path).Msg("failed to persist repaired document")
		}
	}
	return doc
}

// Save the document durably, returns true only if the new content replaced
// the target file
func (s *DocumentStore) Save(doc *auditk.Document) bool {
	if doc == nil {
		log.Error().Str("file", s.path).Msg("refusing to save nil document")
		return false
	}
	doc.Normalize()

	data, err := encodeDocument(doc)
	if err != nil {
		log.Error().Err(err).Str("file", s.path).Msg("failed to encode document")
		return false
	}

	if err := writeFileAtomic(s.path, data, validateDocumentBytes); err != nil {
		log.Error().Err(err).Str("file", s.path).Msg("failed to save document")
		return false
	}
	return true
}

// recoverTemp promotes a leftover temp file when the target is missing, which
// only happens if a previous save died between delete and rename
func (s *DocumentStore) recoverTemp() ([]byte, error) {
	tmp := s.path + tempSuffix
	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, err
	}
	if err := validateDocumentBytes(data); err != nil {
		log.Warn().Err(err).Str("file", tmp).Msg("ignoring invalid temp file")
		return nil, err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return nil, errors.Wrap(err, "promote temp file")
	}
	log.Warn().Str("file", s.path).Msg("recovered document from temp file")
	return data, nil
}

func (s *DocumentStore) backupCorrupt(data []byte) {
	backup := s.path + corruptSuffix
	if err := os.WriteFile(backup, data, 0644); err != nil {
		log.Warn().Err(err).Str("file", backup).Msg("failed to back up corrupt document")
	}
}
