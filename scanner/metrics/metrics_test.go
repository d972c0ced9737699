package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gitlab.com/auditker/auditk"
	"gitlab.com/auditker/scanner/metrics"
)

func TestMetrics(t *testing.T) {
	m := metrics.New()
	m.Classified(auditk.ToolScanner, auditk.ActQueuedScanned)
	m.Classified(auditk.ToolScanner, auditk.ActQueuedScanned)
	m.CacheHit("match")
	m.CacheMiss("scanned")
	m.Saved(true)
	m.Saved(false)
	m.Recorded(auditk.NewJournalEvent(auditk.EvtImported, "", ""))
	m.SetSizes(12, 3)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, 2.0, snap["auditker_traffic_classified_total{action=queued_scanned,origin=scanner}"])
	require.Equal(t, 1.0, snap["auditker_cache_lookups_total{cache=match,result=hit}"])
	require.Equal(t, 1.0, snap["auditker_document_saves_total{result=failed}"])
	require.Equal(t, 1.0, snap["auditker_journal_events_total{type=imported}"])
	require.Equal(t, 12.0, snap["auditker_watch_items"])

	count, err := testutil.GatherAndCount(m.Registry(), "auditker_cache_lookups_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
