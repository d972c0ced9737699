package store

import (
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/auditker/auditk"
)

// keyLegacyPathList is the deprecated top level list of watched paths
const keyLegacyPathList = "watchList"

// schemaVariant is the shape a stored document (or one of its items) was written in
type schemaVariant int8

const (
	// variantCurrent structured items under watchListAudit
	variantCurrent schemaVariant = iota + 1
	// variantLegacyPathListDoc a top level watchList array of paths
	variantLegacyPathListDoc
	// variantLegacyStringItem watchListAudit entries that are bare strings
	variantLegacyStringItem
)

var variantNames = map[schemaVariant]string{
	variantCurrent:           "current",
	variantLegacyPathListDoc: "legacy-path-list",
	variantLegacyStringItem:  "legacy-string-item",
}

// rawDocument is a document in the middle of the migration pipeline
type rawDocument struct {
	members map[string]jsontext.Value
	items   []interface{}
}

// migration upgrades one variant to the next stage
type migration struct {
	from    schemaVariant
	applies func(raw *rawDocument) bool
	apply   func(raw *rawDocument) error
}

var migrations = []migration{
	{
		from: variantLegacyPathListDoc,
		applies: func(raw *rawDocument) bool {
			_, ok := raw.members[keyLegacyPathList]
			return ok
		},
		apply: mergeLegacyPathList,
	},
	{
		from: variantLegacyStringItem,
		applies: func(raw *rawDocument) bool {
			for _, item := range raw.items {
				if _, ok := item.(string); ok {
					return true
				}
			}
			return false
		},
		apply: upgradeStringItems,
	},
}

// mergeLegacyPathList appends the deprecated path list to the watch list
// items as string entries (upgraded by the next stage) and drops the key.
func mergeLegacyPathList(raw *rawDocument) error {
	value := raw.members[keyLegacyPathList]
	delete(raw.members, keyLegacyPathList)

	var paths []interface{}
	if err := json.Unmarshal(value, &paths); err != nil {
		return errors.Wrap(err, "legacy path list is not an array")
	}
	raw.items = append(raw.items, paths...)
	return nil
}

// upgradeStringItems turns bare string items into structured items
func upgradeStringItems(raw *rawDocument) error {
	for i, item := range raw.items {
		path, ok := item.(string)
		if !ok {
			continue
		}
		raw.items[i] = map[string]interface{}{
			"path":      path,
			"lastAudit": auditk.NeverAudited,
			"source":    string(auditk.SourceImport),
		}
	}
	return nil
}

// decodeDocument runs the full load pipeline: member split, schema
// migrations, item repair and decoding of the remaining keys. Only document
// level problems are returned as errors.
func decodeDocument(data []byte, now time.Time) (*auditk.Document, *RepairReport, error) {
	members, err := decodeMembers(data)
	if err != nil {
		return nil, nil, err
	}

	report := &RepairReport{}
	raw := &rawDocument{members: members, items: make([]interface{}, 0)}

	if value, ok := members[auditk.KeyWatchList]; ok {
		if err := json.Unmarshal(value, &raw.items); err != nil {
			report.drop("watchListAudit is not an array, discarding it")
			raw.items = make([]interface{}, 0)
		}
	} else {
		report.defaulted(auditk.KeyWatchList)
	}

	for _, m := range migrations {
		if !m.applies(raw) {
			continue
		}
		if err := m.apply(raw); err != nil {
			log.Warn().Err(err).Str("variant", variantNames[m.from]).Msg("migration failed")
			report.drop(variantNames[m.from] + ": " + err.Error())
			continue
		}
		report.Migrated = append(report.Migrated, variantNames[m.from])
	}

	doc := auditk.NewDocument()
	doc.WatchListAudit = repairItems(raw.items, now, report)

	doc.Vulnerabilities = decodeVulnerabilities(raw.members, report)
	doc.Settings = decodeSettings(raw.members, report)

	if value, ok := raw.members[auditk.KeyMaxVulnID]; ok {
		if err := json.Unmarshal(value, &doc.MaxVulnID); err != nil {
			report.drop("maxVulnId is not an integer, recomputing it")
		}
	} else {
		report.defaulted(auditk.KeyMaxVulnID)
	}
	doc.Normalize()

	for key, value := range raw.members {
		switch key {
		case auditk.KeyWatchList, auditk.KeyVulnerabilities, auditk.KeySettings, auditk.KeyMaxVulnID:
			continue
		}
		if doc.Extra == nil {
			doc.Extra = make(map[string]jsontext.Value)
		}
		doc.Extra[key] = value
	}
	return doc, report, nil
}

const fingerprintKey = "requestFingerprint"

func decodeVulnerabilities(members map[string]jsontext.Value, report *RepairReport) map[string]*auditk.Vulnerability {
	vulns := make(map[string]*auditk.Vulnerability)
	value, ok := members[auditk.KeyVulnerabilities]
	if !ok {
		report.defaulted(auditk.KeyVulnerabilities)
		return vulns
	}

	var entries map[string]jsontext.Value
	if err := json.Unmarshal(value, &entries); err != nil {
		report.drop("vulnerabilities is not an object, discarding it")
		return vulns
	}

	for key, entry := range entries {
		v, err := decodeVulnerability(entry, report)
		if err != nil {
			report.drop("vulnerability " + key + ": " + err.Error())
			continue
		}
		if v.ID == 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil || id <= 0 {
				report.drop("vulnerability " + key + ": no usable id")
				continue
			}
			v.ID = id
			report.Repaired++
		}
		if v.Fingerprint == (auditk.Fingerprint{}) && v.URL != "" {
			v.Fingerprint = auditk.NewFingerprint(v.Method, v.URL)
			report.Repaired++
		}
		if key != auditk.VulnKey(v.ID) {
			report.Repaired++
		}
		vulns[auditk.VulnKey(v.ID)] = v
	}
	return vulns
}

// decodeVulnerability reads one ledger entry. Legacy files stored the request
// fingerprint as a numeric hash; anything that is not a fingerprint object is
// rebuilt from method and url.
func decodeVulnerability(entry jsontext.Value, report *RepairReport) (*auditk.Vulnerability, error) {
	var members map[string]jsontext.Value
	if err := json.Unmarshal(entry, &members); err != nil {
		return nil, err
	}
	fingerprint, hasFingerprint := members[fingerprintKey]
	delete(members, fingerprintKey)

	stripped, err := json.Marshal(members)
	if err != nil {
		return nil, err
	}
	v := &auditk.Vulnerability{}
	if err := json.Unmarshal(stripped, v); err != nil {
		return nil, err
	}

	if !hasFingerprint {
		return v, nil
	}
	if fingerprint.Kind() == '{' && json.Unmarshal(fingerprint, &v.Fingerprint) == nil {
		return v, nil
	}
	v.Fingerprint = auditk.NewFingerprint(v.Method, v.URL)
	report.Repaired++
	return v, nil
}

func decodeSettings(members map[string]jsontext.Value, report *RepairReport) auditk.Settings {
	var settings auditk.Settings
	value, ok := members[auditk.KeySettings]
	if !ok {
		report.defaulted(auditk.KeySettings)
		return settings
	}
	if err := json.Unmarshal(value, &settings); err != nil {
		report.drop("settings could not be decoded, using defaults: " + err.Error())
		return auditk.Settings{}
	}
	return settings
}
