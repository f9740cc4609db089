package bundle

import (
	"fmt"
	"testing"

	"github.com/commons-dss/bundle-loader/pkg/errors"
)

const sampleInput = `[
  {
    "data_bundle": {
      "id": "topmed-public-107/NWD100953",
      "data_object_ids": ["dg.4503/11111111-1111-4111-8111-111111111111"],
      "created": "2018-05-26T09:51:00Z",
      "user_metadata": {"study": "topmed"}
    },
    "data_objects": {
      "dg.4503/11111111-1111-4111-8111-111111111111": {
        "name": "NWD100953.bam",
        "created": "2018-05-26T09:51:00Z",
        "mime_type": "application/octet-stream",
        "urls": [
          {"url": "s3://topmed-irc-share/NWD100953.bam"},
          {"url": "gs://topmed-public/NWD100953.bam"}
        ]
      }
    }
  }
]`

func TestAssemble_MinimalBundle(t *testing.T) {
	manifests, rejected, err := Assemble([]byte(sampleInput))
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", rejected)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 manifest, got %d", len(manifests))
	}

	m := manifests[0]
	if m.Status() != StatusDraft {
		t.Errorf("new manifest should be draft, got %s", m.Status())
	}
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}

	e := m.Entries[0]
	if e.UUID != "11111111-1111-4111-8111-111111111111" {
		t.Errorf("wrong file uuid: %s", e.UUID)
	}
	if e.Ref().Provider != ProviderAWS || e.Ref().Bucket != "topmed-irc-share" {
		t.Errorf("wrong primary ref: %+v", e.Ref())
	}
	if len(e.Refs) != 2 || e.Refs[1].Provider != ProviderGCP {
		t.Errorf("alternate refs not preserved: %+v", e.Refs)
	}
}

func TestAssemble_DeterministicUUID(t *testing.T) {
	first, _, err := Assemble([]byte(sampleInput))
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Assemble([]byte(sampleInput))
	if err != nil {
		t.Fatal(err)
	}
	if first[0].UUID != second[0].UUID {
		t.Errorf("bundle uuid not stable across runs: %s vs %s", first[0].UUID, second[0].UUID)
	}
}

func TestAssemble_ZeroFilesRejected(t *testing.T) {
	input := `[{"data_bundle": {"id": "empty-bundle", "created": "2018-01-01T00:00:00Z"}, "data_objects": {}}]`
	manifests, rejected, err := Assemble([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(manifests) != 0 {
		t.Errorf("empty bundle must not produce a manifest")
	}
	if len(rejected) != 1 || !errors.Is(rejected[0].Err, errors.ErrValidation) {
		t.Errorf("expected one validation rejection, got %+v", rejected)
	}
}

func TestAssemble_BadBundleDoesNotAbortSiblings(t *testing.T) {
	input := fmt.Sprintf("[%s, %s]",
		sampleInput[1:len(sampleInput)-1],
		`{"data_bundle": {"id": "no-files"}, "data_objects": {}}`)
	manifests, rejected, err := Assemble([]byte(input))
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(manifests) != 1 || len(rejected) != 1 {
		t.Errorf("expected 1 manifest + 1 rejection, got %d + %d", len(manifests), len(rejected))
	}
}

func TestBundleUUID(t *testing.T) {
	literal := "887388d7-a974-4259-86af-f5305172363d"
	if got := BundleUUID(literal); got != literal {
		t.Errorf("uuid input must pass through, got %s", got)
	}

	derived := BundleUUID("topmed-public-107/NWD100953")
	if derived == "" || derived == BundleUUID("some-other-id") {
		t.Error("derived uuids must be nonempty and distinct per input id")
	}
	if derived != BundleUUID("topmed-public-107/NWD100953") {
		t.Error("derived uuid must be deterministic")
	}
}

func TestFileUUID(t *testing.T) {
	id := "887388d7-a974-4259-86af-f5305172363d"
	cases := []struct {
		guid string
		want string
		ok   bool
	}{
		{id, id, true},
		{"dg.4503/" + id, id, true},
		{"dg.4503/extra/" + id, "", false},
		{"not-a-uuid", "", false},
	}
	for _, c := range cases {
		got, err := FileUUID(c.guid)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("FileUUID(%q) = %q, %v; want %q", c.guid, got, err, c.want)
		}
		if !c.ok && !errors.Is(err, errors.ErrValidation) {
			t.Errorf("FileUUID(%q) should fail validation, got %v", c.guid, err)
		}
	}
}

func TestParseURL(t *testing.T) {
	ref, err := ParseURL("s3://bucket/path/to/file.bam")
	if err != nil || ref.Provider != ProviderAWS || ref.Key != "path/to/file.bam" {
		t.Errorf("s3 parse: %+v, %v", ref, err)
	}
	if ref.String() != "s3://bucket/path/to/file.bam" {
		t.Errorf("round trip: %s", ref.String())
	}

	if _, err := ParseURL("ftp://bucket/file"); err == nil {
		t.Error("unsupported scheme must be rejected")
	}
	if _, err := ParseURL("gs://bucket-only"); err == nil {
		t.Error("missing key must be rejected")
	}
}
