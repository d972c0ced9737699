package store

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

// Registry maps project names to their document files. The file is a JSON
// object of name -> record.
type Registry struct {
	mu       sync.Mutex
	path     string
	projects map[string]*auditk.ProjectRecord
	current  string
	now      func() time.Time
}

// NewRegistry backed by the file at path
func NewRegistry(path string) *Registry {
	return &Registry{
		path:     path,
		projects: make(map[string]*auditk.ProjectRecord),
		now:      time.Now,
	}
}

// Init reads the registry file. A missing file is an empty registry, an
// unreadable one is reported.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read project registry")
	}

	projects := make(map[string]*auditk.ProjectRecord)
	if err := json.Unmarshal(data, &projects); err != nil {
		return errors.Wrap(ErrStructural, "project registry: "+err.Error())
	}
	for name, rec := range projects {
		if rec == nil || rec.DataFile == "" {
			log.Warn().Str("project", name).Msg("skipping registry entry without a data file")
			delete(projects, name)
			continue
		}
		rec.Name = name
	}
	r.projects = projects
	return nil
}

// Path of the registry file
func (r *Registry) Path() string {
	return r.path
}

// ResolveCurrentProject returns the project selected in this instance, or
// failing that the most recently used one. ErrUnresolvedProject means the
// caller has to ask the operator; the registry never invents a location.
func (r *Registry) ResolveCurrentProject() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked()
}

func (r *Registry) resolveLocked() (string, error) {
	if r.current != "" {
		if _, ok := r.projects[r.current]; ok {
			return r.current, nil
		}
	}

	var best *auditk.ProjectRecord
	for _, rec := range r.projects {
		if best == nil || rec.LastUsedTime().After(best.LastUsedTime()) ||
			(rec.LastUsedTime().Equal(best.LastUsedTime()) && rec.Name < best.Name) {
			best = rec
		}
	}
	if best == nil {
		return "", auditk.ErrUnresolvedProject
	}
	r.current = best.Name
	return best.Name, nil
}

// Current project name, resolved the same way ResolveCurrentProject does.
// Empty when the registry has no projects.
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, _ := r.resolveLocked()
	return current
}

// DataFilePathFor the named project
func (r *Registry) DataFilePathFor(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[auditk.NormalizeProjectName(name)]
	if !ok {
		return "", errors.Wrap(auditk.ErrProjectNotFound, name)
	}
	return rec.DataFile, nil
}

// Get a copy of the named project's record
func (r *Registry) Get(name string) (*auditk.ProjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[auditk.NormalizeProjectName(name)]
	if !ok {
		return nil, errors.Wrap(auditk.ErrProjectNotFound, name)
	}
	c := *rec
	return &c, nil
}

// CreateProject registers name with its data file and returns the
// normalized name it was stored under
func (r *Registry) CreateProject(name, dataFile, description string) (string, error) {
	key := auditk.NormalizeProjectName(name)
	if key == "" {
		return "", errors.Wrap(auditk.ErrInvalidProjectName, name)
	}
	if dataFile == "" {
		return "", auditk.ErrDataFileRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[key]; ok {
		return "", errors.Wrap(auditk.ErrProjectExists, key)
	}
	stamp := r.now().Format(time.RFC3339Nano)
	r.projects[key] = &auditk.ProjectRecord{
		Name:        key,
		DataFile:    dataFile,
		Description: description,
		Created:     stamp,
		LastUsed:    stamp,
	}
	if err := r.saveLocked(); err != nil {
		delete(r.projects, key)
		return "", err
	}
	return key, nil
}

// SwitchTo records name as the current project and bumps its last used
// time. Flushing and reloading documents is the caller's job.
func (r *Registry) SwitchTo(name string) error {
	key := auditk.NormalizeProjectName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[key]
	if !ok {
		return errors.Wrap(auditk.ErrProjectNotFound, name)
	}
	prev := rec.LastUsed
	rec.LastUsed = r.now().Format(time.RFC3339Nano)
	if err := r.saveLocked(); err != nil {
		rec.LastUsed = prev
		return err
	}
	r.current = key
	return nil
}

// Touch bumps the last used time of name
func (r *Registry) Touch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[auditk.NormalizeProjectName(name)]
	if !ok {
		return errors.Wrap(auditk.ErrProjectNotFound, name)
	}
	rec.LastUsed = r.now().Format(time.RFC3339Nano)
	return r.saveLocked()
}

// RenameProject copies the old project's document to a new file next to it,
// with settings.projectName updated, and moves the registry entry. The old
// file is left untouched.
func (r *Registry) RenameProject(oldName, newName string) (string, error) {
	oldKey := auditk.NormalizeProjectName(oldName)
	newKey := auditk.NormalizeProjectName(newName)
	if newKey == "" {
		return "", errors.Wrap(auditk.ErrInvalidProjectName, newName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[oldKey]
	if !ok {
		return "", errors.Wrap(auditk.ErrProjectNotFound, oldName)
	}
	if _, exists := r.projects[newKey]; exists {
		return "", errors.Wrap(auditk.ErrProjectExists, newKey)
	}

	doc := NewDocumentStore(rec.DataFile).Load()
	doc.Settings.ProjectName = newKey

	newFile := filepath.Join(filepath.Dir(rec.DataFile), newKey+".json")
	if _, err := os.Stat(newFile); err == nil {
		newFile = filepath.Join(filepath.Dir(rec.DataFile), newKey+"_"+strconv.FormatInt(r.now().Unix(), 10)+".json")
	}
	if !NewDocumentStore(newFile).Save(doc) {
		return "", errors.Errorf("failed to write renamed document %s", newFile)
	}

	renamed := *rec
	renamed.Name = newKey
	renamed.DataFile = newFile
	r.projects[newKey] = &renamed
	delete(r.projects, oldKey)

	if err := r.saveLocked(); err != nil {
		r.projects[oldKey] = rec
		delete(r.projects, newKey)
		return "", err
	}
	if r.current == oldKey {
		r.current = newKey
	}
	return newKey, nil
}

// DeleteProject removes the registry entry. The data file is retained and
// the current project cannot be deleted.
func (r *Registry) DeleteProject(name string) error {
	key := auditk.NormalizeProjectName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.projects[key]
	if !ok {
		return errors.Wrap(auditk.ErrProjectNotFound, name)
	}
	if current, _ := r.resolveLocked(); key == current {
		return errors.Wrap(auditk.ErrProjectActive, key)
	}
	delete(r.projects, key)
	if err := r.saveLocked(); err != nil {
		r.projects[key] = rec
		return err
	}
	return nil
}

// List projects, most recently used first
func (r *Registry) List() []*auditk.ProjectRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*auditk.ProjectRecord, 0, len(r.projects))
	for _, rec := range r.projects {
		c := *rec
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].LastUsedTime(), list[j].LastUsedTime()
		if ti.Equal(tj) {
			return list[i].Name < list[j].Name
		}
		return ti.After(tj)
	})
	return list
}

func (r *Registry) saveLocked() error {
	data, err := json.Marshal(r.projects, jsontext.WithIndent("  "), json.Deterministic(true))
	if err != nil {
		return errors.Wrap(err, "encode project registry")
	}
	validate := func(written []byte) error {
		var check map[string]*auditk.ProjectRecord
		return json.Unmarshal(written, &check)
	}
	if err := writeFileAtomic(r.path, data, validate); err != nil {
		return errors.Wrap(err, "save project registry")
	}
	return nil
}
