package scanner_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/mock"
	"gitlab.com/auditker/scanner"
	"gitlab.com/auditker/store"
)

func testRegistry(t *testing.T, dir string, names ...string) *store.Registry {
	t.Helper()
	r := store.NewRegistry(filepath.Join(dir, "projects.json"))
	if err := r.Init(); err != nil {
		t.Fatalf("error init registry: %s\n", err)
	}
	for _, name := range names {
		if _, err := r.CreateProject(name, filepath.Join(dir, name+".json"), ""); err != nil {
			t.Fatalf("error creating %s: %s\n", name, err)
		}
	}
	return r
}

func paths(items []*auditk.WatchItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Path)
	}
	return out
}

func TestTrackerInitUnresolved(t *testing.T) {
	dir := t.TempDir()
	tr := scanner.New(mock.MakeMockConfig("https://ex.com"), testRegistry(t, dir))
	if err := tr.Init(testContext(t)); !errors.Is(err, auditk.ErrUnresolvedProject) {
		t.Fatalf("expected unresolved project got %v\n", err)
	}
	if tr.Guard().CanSave() {
		t.Fatalf("nothing is active, saving must be off\n")
	}
}

func TestTrackerSwitchDropsStaleSaves(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t, dir, "a", "b")

	bDoc := auditk.NewDocument()
	bDoc.WatchListAudit = append(bDoc.WatchListAudit, auditk.NewWatchItem("https://b.com/x", auditk.SourceManual, time.Now()))
	if !store.NewDocumentStore(filepath.Join(dir, "b.json")).Save(bDoc) {
		t.Fatalf("save failed\n")
	}

	cfg := mock.MakeMockConfig("https://a.com")
	cfg.Project = "a"
	tr := scanner.New(cfg, reg)
	if err := tr.Init(testContext(t)); err != nil {
		t.Fatalf("error init: %s\n", err)
	}
	defer tr.Stop()

	a := tr.Session()
	if outcome := a.Engine.Add("https://a.com/first", auditk.SourceManual); !outcome.OK {
		t.Fatalf("error adding: %s\n", outcome)
	}

	if err := tr.SwitchProject("b"); err != nil {
		t.Fatalf("error switching: %s\n", err)
	}
	if a.Engine.Len() != 0 {
		t.Fatalf("old engine should have been emptied\n")
	}

	// a late write through the old session
	a.Engine.Add("https://a.com/late", auditk.SourceManual)

	onDisk := store.NewDocumentStore(filepath.Join(dir, "a.json")).Load()
	if got := paths(onDisk.WatchListAudit); len(got) != 1 || got[0] != "https://a.com/first" {
		t.Fatalf("project a was modified after the switch: %v\n", got)
	}

	b := tr.Session()
	if b.Name != "b" || b.Generation <= a.Generation {
		t.Fatalf("expected a newer session for b got %s/%d\n", b.Name, b.Generation)
	}
	if got := paths(b.Engine.Items()); len(got) != 1 || got[0] != "https://b.com/x" {
		t.Fatalf("state should come entirely from b: %v\n", got)
	}
	if b.Settings().ProjectName != "b" {
		t.Fatalf("expected project name b got %s\n", b.Settings().ProjectName)
	}
	if reg.Current() != "b" {
		t.Fatalf("registry should record b as current\n")
	}
}

func TestTrackerSuppressesSaveDuringTransition(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t, dir, "a", "b")

	aStore := mock.MakeMockDocumentStore(filepath.Join(dir, "a.json"), nil)
	bDoc := auditk.NewDocument()
	bDoc.WatchListAudit = append(bDoc.WatchListAudit, auditk.NewWatchItem("https://b.com/x", auditk.SourceManual, time.Now()))
	bStore := mock.MakeMockDocumentStore(filepath.Join(dir, "b.json"), bDoc)

	var tr *scanner.Tracker
	var aSession *scanner.Session
	guardDuringLoad := scanner.GuardState(0)
	bLoad := bStore.LoadFn
	bStore.LoadFn = func() *auditk.Document {
		guardDuringLoad = tr.Guard().State()
		// a UI driven save that lands in the middle of the switch
		aSession.Engine.Add("https://a.com/mid", auditk.SourceManual)
		return bLoad()
	}

	journal := mock.MakeMockJournal()
	cfg := mock.MakeMockConfig("https://a.com")
	cfg.Project = "a"
	tr = scanner.New(cfg, reg).
		SetStoreFactory(func(path string) auditk.DocumentStorer {
			if path == bStore.Path() {
				return bStore
			}
			return aStore
		}).
		SetJournalFactory(func(project string) (auditk.Journaler, error) {
			return journal, nil
		})
	if err := tr.Init(testContext(t)); err != nil {
		t.Fatalf("error init: %s\n", err)
	}
	defer tr.Stop()

	aSession = tr.Session()
	aSession.Engine.Add("https://a.com/first", auditk.SourceManual)
	if aStore.Saves != 1 {
		t.Fatalf("expected one save got %d\n", aStore.Saves)
	}

	if err := tr.SwitchProject("b"); err != nil {
		t.Fatalf("error switching: %s\n", err)
	}
	if guardDuringLoad != scanner.GuardTransitioning {
		t.Fatalf("expected load to run while transitioning got %s\n", guardDuringLoad)
	}
	// the flush before the switch, nothing after
	if aStore.Saves != 2 {
		t.Fatalf("expected 2 saves for a got %d\n", aStore.Saves)
	}
	if got := paths(aStore.LastSaved().WatchListAudit); len(got) != 1 || got[0] != "https://a.com/first" {
		t.Fatalf("a was overwritten during the switch: %v\n", got)
	}
	if bStore.SaveCalled {
		t.Fatalf("b must not be saved by a late write\n")
	}
	if got := paths(tr.Session().Engine.Items()); len(got) != 1 || got[0] != "https://b.com/x" {
		t.Fatalf("unexpected state after switch: %v\n", got)
	}

	types := journal.Types()
	if len(types) == 0 || types[len(types)-1] != auditk.EvtProjectSwitched {
		t.Fatalf("expected project switch to be journaled: %v\n", types)
	}
}

func TestTrackerVulnerabilities(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t, dir, "a")

	cfg := mock.MakeMockConfig("https://ex.com")
	cfg.Project = "a"
	tr := scanner.New(cfg, reg)
	if err := tr.Init(testContext(t)); err != nil {
		t.Fatalf("error init: %s\n", err)
	}
	defer tr.Stop()

	sess := tr.Session()
	sess.Engine.Add("https://ex.com/search", auditk.SourceManual)

	v, err := tr.AddVulnerability("79", "", "https://ex.com/search?q=<x>", "GET")
	if err != nil {
		t.Fatalf("error adding vulnerability: %s\n", err)
	}
	if _, err := tr.AddVulnerability("CWE-79", "", "https://ex.com/search?q=other", "get"); !errors.Is(err, auditk.ErrDuplicateFinding) {
		t.Fatalf("expected duplicate finding got %v\n", err)
	}
	note, _ := sess.Engine.GetNote("https://ex.com/search")
	if note != v.NoteMarker() {
		t.Fatalf("expected note marker got %q\n", note)
	}

	onDisk := store.NewDocumentStore(filepath.Join(dir, "a.json")).Load()
	if len(onDisk.Vulnerabilities) != 1 || onDisk.WatchListAudit[0].Note != v.NoteMarker() {
		t.Fatalf("vulnerability was not persisted: %#v\n", onDisk.Vulnerabilities)
	}

	if !tr.RemoveVulnerability(v.ID) {
		t.Fatalf("expected removal\n")
	}
	onDisk = store.NewDocumentStore(filepath.Join(dir, "a.json")).Load()
	if len(onDisk.Vulnerabilities) != 0 || onDisk.MaxVulnID != v.ID || onDisk.WatchListAudit[0].Note != "" {
		t.Fatalf("removal was not persisted correctly\n")
	}
}

func TestTrackerTraffic(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t, dir, "a")

	cfg := mock.MakeMockConfig("https://ex.com")
	cfg.Project = "a"
	tr := scanner.New(cfg, reg).SetSiteMapProvider(mock.MakeMockSiteMapProvider("https://ex.com/admin/", "https://ex.com/login"))
	if err := tr.Init(testContext(t)); err != nil {
		t.Fatalf("error init: %s\n", err)
	}

	n, err := tr.ImportSiteMap(testContext(t))
	if err != nil || n != 2 {
		t.Fatalf("expected 2 site map imports got %d %v\n", n, err)
	}

	res := tr.OnTraffic(testContext(t), mock.MakeMockTraffic(auditk.ToolRepeater, "POST", "https://ex.com/admin/users"))
	if res.Action != auditk.ActMarkedManual {
		t.Fatalf("expected manual mark got %s\n", res.Action)
	}
	tr.OnTraffic(testContext(t), mock.MakeMockTraffic(auditk.ToolScanner, "GET", "https://ex.com/login"))
	tr.OnTraffic(testContext(t), mock.MakeMockTraffic(auditk.ToolScanner, "GET", "https://ex.com/admin/x"))

	if err := tr.Stop(); err != nil {
		t.Fatalf("error stopping: %s\n", err)
	}

	onDisk := store.NewDocumentStore(filepath.Join(dir, "a.json")).Load()
	for _, item := range onDisk.WatchListAudit {
		if !item.Scanned {
			t.Fatalf("queued scanned marks should be flushed on stop: %#v\n", item)
		}
	}
	if !onDisk.WatchListAudit[0].ManualAudited || onDisk.WatchListAudit[1].ManualAudited {
		t.Fatalf("unexpected manual flags\n")
	}
}

func TestTrackerSettingsRetargetPoller(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t, dir, "a")

	targets := make(chan string, 16)
	provider := &mock.SiteMapProvider{}
	provider.ListKnownEndpointsFn = func(ctx context.Context, targetBaseURL string) ([]*auditk.SiteMapEntry, error) {
		select {
		case targets <- targetBaseURL:
		default:
		}
		return mock.MakeMockSiteMap(targetBaseURL + "/found"), nil
	}

	cfg := mock.MakeMockConfig("")
	cfg.Project = "a"
	tr := scanner.New(cfg, reg).SetSiteMapProvider(provider)
	if err := tr.Init(testContext(t)); err != nil {
		t.Fatalf("error init: %s\n", err)
	}
	defer tr.Stop()

	ok := tr.UpdateSettings(func(s *auditk.Settings) {
		s.TargetURL = "https://new.com"
		s.AutoUpdate = true
	})
	if !ok {
		t.Fatalf("settings were not saved\n")
	}
	if tr.Session().Poller.Target() != "https://new.com" {
		t.Fatalf("poller still targets %q\n", tr.Session().Poller.Target())
	}

	select {
	case target := <-targets:
		if target != "https://new.com" {
			t.Fatalf("poller queried %q\n", target)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poller never queried the provider\n")
	}
}
