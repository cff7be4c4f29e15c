package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelsight.ai/internal/observerproto"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip turns a Go message into the generic form the validator expects.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	on := true
	cases := []struct {
		schema string
		msg    any
	}{
		{"subscribe.schema.json", observerproto.SubscribeMsg{
			Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version,
			Position: [3]float64{1.5, 70, -3}, ViewDistance: 8, Occlusion: &on,
		}},
		{"visible.schema.json", observerproto.VisibleMsg{
			Type: observerproto.TypeVisible, ProtocolVersion: observerproto.Version,
			Pass: 12, Center: [3]int{0, 2, 0}, Chunks: [][3]int{{0, 2, 0}, {1, 2, 0}},
		}},
		{"visible.schema.json", observerproto.VisibleMsg{
			Type: observerproto.TypeVisible, ProtocolVersion: observerproto.Version, Chunks: [][3]int{},
		}},
		{"chunk_voxels.schema.json", observerproto.ChunkVoxelsMsg{
			Type: observerproto.TypeChunkVoxels, ProtocolVersion: observerproto.Version,
			Chunk: [3]int{1, 0, -1}, Encoding: observerproto.EncodingRLE, Data: "AIACAA==",
		}},
		{"bootstrap.schema.json", observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version, WorldID: "overworld",
			WorldParams:  observerproto.WorldParams{ChunkSize: [3]int{32, 32, 32}, ViewDistance: 8, MinChunkY: -4, MaxChunkY: 11, Occlusion: true},
			BlockPalette: []string{"AIR", "STONE"},
		}},
	}
	for _, tc := range cases {
		if err := compile(t, tc.schema).Validate(roundTrip(t, tc.msg)); err != nil {
			t.Fatalf("%s: %v", tc.schema, err)
		}
	}
}

func TestSchemas_RejectBadSubscribe(t *testing.T) {
	s := compile(t, "subscribe.schema.json")
	var bad any
	_ = json.Unmarshal([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1","position":[1,2]}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("two-component position should be rejected")
	}
	_ = json.Unmarshal([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1","position":[1,2,3],"view_distance":500}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("view distance over the limit should be rejected")
	}
}
