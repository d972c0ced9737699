package store

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"
	"gitlab.com/auditker/auditk"
)

// ErrStructural the document does not have the expected shape
var ErrStructural = errors.New("structural corruption")

func encodeDocument(doc *auditk.Document) ([]byte, error) {
	return json.Marshal(doc, jsontext.WithIndent("  "), json.Deterministic(true))
}

// decodeMembers splits a document into its top level members
func decodeMembers(data []byte) (map[string]jsontext.Value, error) {
	var members map[string]jsontext.Value
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, errors.Wrap(ErrStructural, err.Error())
	}
	if members == nil {
		return nil, errors.Wrap(ErrStructural, "document root is not an object")
	}
	return members, nil
}

// validateDocumentBytes checks that data is a complete current document
func validateDocumentBytes(data []byte) error {
	members, err := decodeMembers(data)
	if err != nil {
		return err
	}
	for _, key := range auditk.RequiredKeys {
		if _, ok := members[key]; !ok {
			return errors.Wrapf(ErrStructural, "missing key %s", key)
		}
	}
	doc := &auditk.Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return errors.Wrap(ErrStructural, err.Error())
	}
	for i, item := range doc.WatchListAudit {
		if item == nil || item.Path == "" {
			return errors.Wrapf(ErrStructural, "watch item %d has no path", i)
		}
	}
	return nil
}
