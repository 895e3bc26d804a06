package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/value"
)

func TestEncodeDecode(t *testing.T) {
	schemaProp, err := NewAddSchemaProperty(hdr, personSc, personSc, "Name", nameProp)
	require.NoError(t, err)
	schemaRel, err := NewAddSchemaRelationship(hdr, testLink())
	require.NoError(t, err)
	rp, err := NewRemoveProperty(hdr, testRef(), value.List{value.Int(1)})
	require.NoError(t, err)
	raised, err := NewRaised(hdr, "Audited", value.Map{"by": value.String("alice")})
	require.NoError(t, err)

	events := []Event{schemaProp, schemaRel, rp, raised}
	for _, ev := range reversibles(t) {
		events = append(events, ev)
	}

	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			data, err := Encode(ev)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ev, decoded)
		})
	}
}

func TestEncodeIsCanonical(t *testing.T) {
	add, err := NewAddEntity(hdr, personID, personSc)
	require.NoError(t, err)

	data, err := Encode(add)
	require.NoError(t, err)
	assert.Equal(t,
		`{"header":{"correlation_id":"s-1","domain_model":"hr","extension_name":"","top_level":true,"version":3},"kind":"AddEntity","payload":{"id":"hr:p1","schema_id":"hr:Person"}}`,
		string(data))
}

type opaque struct{ Header }

func (opaque) Kind() Kind                { return "Opaque" }
func (o opaque) WithMeta(h Header) Event { o.Header = h; return o }

func TestEncodeUnknownTypeFails(t *testing.T) {
	_, err := Encode(opaque{Header: hdr})
	assert.Error(t, err)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	_, err := Decode([]byte(`[1]`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"kind":"AddEntity","header":{"domain_model":"hr","correlation_id":"s"},"payload":{"id":"bad"}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"kind":"AddEntity","header":{"domain_model":"hr","correlation_id":"s"},"payload":{}}`))
	assert.True(t, IsInvalidEvent(err))
}
