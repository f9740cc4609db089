package bundle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/commons-dss/bundle-loader/pkg/errors"
	"github.com/google/uuid"
)

// namespaceBundle seeds deterministic bundle UUIDs for inputs whose bundle
// id is not itself an RFC4122 UUID. Fixed forever: changing it would remint
// every derived bundle identity.
var namespaceBundle = uuid.MustParse("8c4a9e36-2d1f-4b87-9f60-3e4c5a7d0b12")

// inputDocument is one bundle in the standard input format produced by the
// upstream transformer.
type inputDocument struct {
	DataBundle struct {
		ID            string          `json:"id"`
		DataObjectIDs []string        `json:"data_object_ids"`
		Created       string          `json:"created"`
		UserMetadata  json.RawMessage `json:"user_metadata"`
	} `json:"data_bundle"`
	DataObjects map[string]inputObject `json:"data_objects"`
}

type inputObject struct {
	Name     string `json:"name"`
	Created  string `json:"created"`
	Updated  string `json:"updated"`
	MimeType string `json:"mime_type"`
	URLs     []struct {
		URL string `json:"url"`
	} `json:"urls"`
}

// Rejected records an input bundle that failed validation before any
// network call was made on its behalf.
type Rejected struct {
	ID  string
	Err error
}

// Assemble parses a standard-format input document (a JSON array of bundle
// records) into draft manifests. Bundles that fail parsing or validation are
// returned as Rejected rather than aborting their siblings.
func Assemble(doc []byte) ([]*Manifest, []Rejected, error) {
	var inputs []inputDocument
	if err := json.Unmarshal(doc, &inputs); err != nil {
		return nil, nil, errors.Wrap(err, "input is not a standard-format JSON array")
	}

	var manifests []*Manifest
	var rejected []Rejected
	for i, in := range inputs {
		m, err := assembleOne(in)
		if err != nil {
			id := in.DataBundle.ID
			if id == "" {
				id = fmt.Sprintf("input[%d]", i)
			}
			rejected = append(rejected, Rejected{ID: id, Err: err})
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, rejected, nil
}

func assembleOne(in inputDocument) (*Manifest, error) {
	if in.DataBundle.ID == "" {
		return nil, errors.Tag(errors.ErrValidation, errors.New("data_bundle.id is missing"))
	}

	m := &Manifest{
		UUID:    BundleUUID(in.DataBundle.ID),
		Name:    in.DataBundle.ID,
		Created: in.DataBundle.Created,
	}

	// Iterate data_objects in a stable order so manifests are reproducible
	// across runs of the same input.
	guids := make([]string, 0, len(in.DataObjects))
	for guid := range in.DataObjects {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	for _, guid := range guids {
		obj := in.DataObjects[guid]
		entry, err := assembleEntry(guid, obj)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, entry)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func assembleEntry(guid string, obj inputObject) (*Entry, error) {
	fileUUID, err := FileUUID(guid)
	if err != nil {
		return nil, err
	}
	if len(obj.URLs) == 0 {
		return nil, errors.Tag(errors.ErrValidation,
			fmt.Errorf("file %s has no cloud URLs", guid))
	}

	var refs []FileRef
	for _, u := range obj.URLs {
		ref, err := ParseURL(u.URL)
		if err != nil {
			return nil, errors.Tag(errors.ErrValidation,
				errors.Wrapf(err, "file %s", guid))
		}
		refs = append(refs, ref)
	}

	name := obj.Name
	if name == "" {
		name = refs[0].Key[strings.LastIndex(refs[0].Key, "/")+1:]
	}

	return &Entry{
		GUID:                guid,
		UUID:                fileUUID,
		Name:                name,
		Refs:                refs,
		DeclaredContentType: obj.MimeType,
	}, nil
}

// BundleUUID derives the stable bundle UUID: the input id itself when it is
// already an RFC4122 UUID, otherwise a SHA1-derived UUID in a fixed
// namespace. Re-running on the same input never mints a fresh identity.
func BundleUUID(inputID string) string {
	if parsed, err := uuid.Parse(inputID); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(namespaceBundle, []byte(inputID)).String()
}

// FileUUID extracts the RFC4122 UUID from a file GUID. Accepted forms are
// a bare UUID or "prefix/uuid" (e.g. "dg.4503/887388d7-...").
func FileUUID(guid string) (string, error) {
	parts := strings.Split(guid, "/")
	var candidate string
	switch len(parts) {
	case 1:
		candidate = parts[0]
	case 2:
		candidate = parts[1]
	default:
		return "", errors.Tag(errors.ErrValidation,
			fmt.Errorf("file guid %q is not of the form uuid or prefix/uuid", guid))
	}
	parsed, err := uuid.Parse(candidate)
	if err != nil {
		return "", errors.Tag(errors.ErrValidation,
			fmt.Errorf("file guid %q does not contain a UUID", guid))
	}
	return parsed.String(), nil
}
