package scanner

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/metrics"
	"gitlab.com/auditker/scanner/report"
	"gitlab.com/auditker/scanner/sitemap"
	"gitlab.com/auditker/scanner/traffic"
	"gitlab.com/auditker/scanner/watchlist"
	"gitlab.com/auditker/store"
)

// StoreFactory opens the document store for a data file
type StoreFactory func(path string) auditk.DocumentStorer

// JournalFactory opens the journal of a project
type JournalFactory func(project string) (auditk.Journaler, error)

// Tracker is the context object that owns the registry, the guard and the
// active project session
type Tracker struct {
	cfg        *auditk.Config
	registry   *store.Registry
	guard      *Guard
	metrics    *metrics.Metrics
	provider   auditk.SiteMapProvider
	openStore  StoreFactory
	openJourn  JournalFactory
	instanceID string

	rootCtx    context.Context
	generation uint64

	mu      sync.RWMutex
	session *Session

	saveMu sync.Mutex
}

// New tracker, Init must be called before use
func New(cfg *auditk.Config, registry *store.Registry) *Tracker {
	t := &Tracker{
		cfg:        cfg,
		registry:   registry,
		guard:      NewGuard(),
		metrics:    metrics.New(),
		instanceID: uuid.NewV4().String(),
		rootCtx:    context.Background(),
	}
	t.openStore = func(path string) auditk.DocumentStorer {
		return store.NewDocumentStore(path)
	}
	t.openJourn = t.defaultJournal
	return t
}

// SetSiteMapProvider used for auto update and one shot site map imports
func (t *Tracker) SetSiteMapProvider(provider auditk.SiteMapProvider) *Tracker {
	t.provider = provider
	return t
}

// SetStoreFactory overrides how document stores are opened
func (t *Tracker) SetStoreFactory(f StoreFactory) *Tracker {
	t.openStore = f
	return t
}

// SetJournalFactory overrides how journals are opened
func (t *Tracker) SetJournalFactory(f JournalFactory) *Tracker {
	t.openJourn = f
	return t
}

// Init resolves the current project and activates it. With cfg.Project set
// the project is created on first use, which needs cfg.DataFile; otherwise
// the most recently used project is opened. ErrUnresolvedProject means the
// operator has to pick one.
func (t *Tracker) Init(ctx context.Context) error {
	t.rootCtx = ctx
	log.Info().Str("instance", t.instanceID).Str("registry", t.registry.Path()).Msg("initializing tracker")

	name := auditk.NormalizeProjectName(t.cfg.Project)
	if name != "" {
		if _, err := t.registry.DataFilePathFor(name); errors.Is(err, auditk.ErrProjectNotFound) {
			if _, err := t.registry.CreateProject(name, t.cfg.DataFile, ""); err != nil {
				return err
			}
		}
	} else {
		var err error
		if name, err = t.registry.ResolveCurrentProject(); err != nil {
			return err
		}
	}
	return t.SwitchProject(name)
}

// Guard of the tracker
func (t *Tracker) Guard() *Guard {
	return t.guard
}

// Metrics of the tracker
func (t *Tracker) Metrics() *metrics.Metrics {
	return t.metrics
}

// Registry of known projects
func (t *Tracker) Registry() *store.Registry {
	return t.registry
}

// Session currently active, nil before Init
func (t *Tracker) Session() *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// SwitchProject flushes the active project, then inside a guarded transition
// empties the in memory state and loads the named project. Saves from the
// old session are dropped from then on.
func (t *Tracker) SwitchProject(name string) error {
	key := auditk.NormalizeProjectName(name)
	if _, err := t.registry.DataFilePathFor(key); err != nil {
		return err
	}

	old := t.Session()
	if old != nil {
		old.Classifier.Flush()
		if !t.persist(old) {
			log.Warn().Str("project", old.Name).Msg("failed to flush project before switching")
		}
	}

	err := t.guard.Transition(func() error {
		if old != nil {
			old.stop()
		}
		if err := t.registry.SwitchTo(key); err != nil {
			return err
		}
		sess, err := t.openSession(key)
		if err != nil {
			return err
		}
		t.setSession(sess)
		return nil
	})

	if err != nil {
		log.Error().Err(err).Str("project", key).Msg("project switch failed")
		if old != nil {
			t.restore(old.Name)
		}
		return err
	}

	sess := t.Session()
	evt := auditk.NewJournalEvent(auditk.EvtProjectSwitched, "", t.instanceID)
	sess.Journal.Record(evt)
	t.metrics.Recorded(evt)
	log.Info().Str("project", key).Int("items", sess.Engine.Len()).Int("vulnerabilities", sess.Ledger.Len()).Msg("project active")
	return nil
}

// restore reopens the previous project after a failed switch
func (t *Tracker) restore(name string) {
	err := t.guard.Transition(func() error {
		sess, err := t.openSession(name)
		if err != nil {
			return err
		}
		t.setSession(sess)
		return t.registry.SwitchTo(name)
	})
	if err != nil {
		log.Error().Err(err).Str("project", name).Msg("failed to restore previous project, saving is disabled")
	}
}

func (t *Tracker) setSession(sess *Session) {
	t.mu.Lock()
	t.session = sess
	t.mu.Unlock()
}

func (t *Tracker) openSession(name string) (*Session, error) {
	path, err := t.registry.DataFilePathFor(name)
	if err != nil {
		return nil, err
	}

	st := t.openStore(path)
	doc := st.Load()
	if doc.Settings.ProjectName == "" {
		doc.Settings.ProjectName = name
	}
	if doc.Settings.TargetURL == "" {
		doc.Settings.TargetURL = t.cfg.TargetURL
	}
	if doc.Settings.PollFrequencySeconds == 0 {
		doc.Settings.PollFrequencySeconds = int(t.cfg.PollFrequency / time.Second)
	}

	cfg := *t.cfg
	cfg.TargetURL = doc.Settings.TargetURL
	cfg.StripHostInDisplay = cfg.StripHostInDisplay || doc.Settings.StripHostInDisplay
	cfg.AutoUpdate = cfg.AutoUpdate || doc.Settings.AutoUpdate
	cfg.PollFrequency = auditk.NearestPollFrequency(time.Duration(doc.Settings.PollFrequencySeconds) * time.Second)

	journal, err := t.openJourn(name)
	if err != nil {
		log.Warn().Err(err).Str("project", name).Msg("journal unavailable, continuing without it")
		journal = store.NopJournal{}
	}

	sess := &Session{
		Name:       name,
		Generation: atomic.AddUint64(&t.generation, 1),
		Store:      st,
		Engine:     watchlist.New(&cfg),
		Ledger:     report.New(),
		Journal:    journal,
		cfg:        &cfg,
		settings:   doc.Settings.Clone(),
		extra:      doc.Extra,
	}
	sess.Engine.Load(doc.WatchListAudit)
	sess.Ledger.Load(doc.Vulnerabilities, doc.MaxVulnID)
	sess.Engine.Cache().SetObserver(t.metrics)

	sess.Classifier = traffic.New(&cfg, sess.Engine, traffic.NewScopeServiceFromConfig(&cfg))
	sess.Classifier.SetObserver(t.metrics)

	hook := func(events ...*auditk.JournalEvent) {
		t.persist(sess, events...)
	}
	sess.Engine.SetChangeHook(hook)
	sess.Ledger.SetChangeHook(hook)

	ctx, cancel := context.WithCancel(t.rootCtx)
	sess.ctx = ctx
	sess.cancel = cancel
	go sess.Classifier.Run(ctx)

	if t.provider != nil {
		sess.Poller = sitemap.New(&cfg, t.provider, sess.Engine)
		if cfg.AutoUpdate {
			sess.Poller.Start(ctx)
		}
	}
	t.metrics.SetSizes(sess.Engine.Len(), sess.Ledger.Len())
	return sess, nil
}

// persist saves the session's document and journals events. It is a no-op
// while the guard is not active or when sess is no longer the active session.
func (t *Tracker) persist(sess *Session, events ...*auditk.JournalEvent) bool {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	if !t.guard.CanSave() {
		log.Debug().Str("project", sess.Name).Str("guard", t.guard.State().String()).Msg("save suppressed")
		return false
	}
	if t.Session() != sess {
		log.Debug().Str("project", sess.Name).Uint64("generation", sess.Generation).Msg("dropping save from stale session")
		return false
	}

	doc := sess.Document()
	ok := sess.Store.Save(doc)
	t.metrics.Saved(ok)
	t.metrics.SetSizes(len(doc.WatchListAudit), len(doc.Vulnerabilities))
	if !ok {
		log.Error().Str("project", sess.Name).Str("file", sess.Store.Path()).Msg("document save failed")
	}

	for _, evt := range events {
		if evt == nil {
			continue
		}
		sess.Journal.Record(evt)
		t.metrics.Recorded(evt)
	}
	return ok
}

// Flush saves the active session
func (t *Tracker) Flush() bool {
	sess := t.Session()
	if sess == nil {
		return false
	}
	return t.persist(sess)
}

// OnTraffic hands a traffic event to the active session's classifier
func (t *Tracker) OnTraffic(ctx context.Context, evt *auditk.TrafficEvent) *auditk.Classification {
	sess := t.Session()
	if sess == nil {
		return &auditk.Classification{Action: auditk.ActIgnored, Outcome: auditk.Failure(auditk.ErrUnresolvedProject)}
	}
	return sess.Classifier.OnRequest(ctx, evt)
}

// AddVulnerability records a finding and tags the matching watch item note
func (t *Tracker) AddVulnerability(cwe, description, url, method string) (*auditk.Vulnerability, error) {
	sess := t.Session()
	if sess == nil {
		return nil, auditk.ErrUnresolvedProject
	}
	v, err := sess.Ledger.AddRequest(cwe, description, url, method)
	if err != nil {
		return nil, err
	}
	sess.Engine.TagVulnerability(v)
	return v, nil
}

// RemoveVulnerability deletes a finding and its note marker
func (t *Tracker) RemoveVulnerability(id int64) bool {
	sess := t.Session()
	if sess == nil {
		return false
	}
	v, ok := sess.Ledger.Get(id)
	if !ok || !sess.Ledger.Remove(id) {
		return false
	}
	sess.Engine.UntagVulnerability(v)
	return true
}

// UpdateSettings applies fn to the project settings and saves. Auto update
// changes start or stop the site map poller.
func (t *Tracker) UpdateSettings(fn func(s *auditk.Settings)) bool {
	sess := t.Session()
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	before := sess.settings.AutoUpdate
	fn(&sess.settings)
	settings := sess.settings.Clone()
	sess.mu.Unlock()

	sess.Engine.SetTarget(settings.TargetURL, settings.StripHostInDisplay)
	if sess.Poller != nil {
		sess.Poller.SetTarget(settings.TargetURL)
		sess.Poller.SetFrequency(auditk.NearestPollFrequency(time.Duration(settings.PollFrequencySeconds) * time.Second))
	}
	if sess.Poller != nil && before != settings.AutoUpdate {
		if settings.AutoUpdate {
			sess.Poller.Start(sess.ctx)
		} else {
			sess.Poller.Stop()
		}
	}
	return t.persist(sess)
}

// ImportSiteMap pulls the site map once into the active project
func (t *Tracker) ImportSiteMap(ctx context.Context) (int, error) {
	sess := t.Session()
	if sess == nil {
		return 0, auditk.ErrUnresolvedProject
	}
	return sitemap.ImportOnce(ctx, t.provider, sess.Engine, sess.Settings().TargetURL)
}

// Events from the active project's journal
func (t *Tracker) Events(limit int) ([]*auditk.JournalEvent, error) {
	sess := t.Session()
	if sess == nil {
		return nil, auditk.ErrUnresolvedProject
	}
	return sess.Journal.Events(limit)
}

// Stop flushes the active project and releases its resources
func (t *Tracker) Stop() error {
	sess := t.Session()
	if sess == nil {
		return nil
	}
	sess.Classifier.Flush()
	t.persist(sess)
	t.guard.Deactivate()
	if sess.Poller != nil {
		sess.Poller.Stop()
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	return sess.Journal.Close()
}

func (t *Tracker) defaultJournal(project string) (auditk.Journaler, error) {
	if t.cfg.JournalPath == "" {
		return store.NopJournal{}, nil
	}
	j := store.NewJournal(filepath.Join(t.cfg.JournalPath, project), project)
	if err := j.Init(); err != nil {
		return nil, err
	}
	return j, nil
}

func logJournalClose(project string, err error) {
	log.Warn().Err(err).Str("project", project).Msg("failed to close journal")
}
