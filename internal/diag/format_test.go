package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lattice/internal/value"
)

type fakeElement struct {
	id     value.ID
	schema value.ID
	props  map[string]value.Value
}

func (e fakeElement) ID() value.ID        { return e.id }
func (e fakeElement) SchemaID() value.ID  { return e.schema }
func (e fakeElement) DomainModel() string { return e.id.Domain }
func (e fakeElement) PropertyValue(name string) (value.Value, bool) {
	v, ok := e.props[name]
	return v, ok
}

func newFake() fakeElement {
	return fakeElement{
		id:     value.NewID("hr", "42"),
		schema: value.NewID("hr", "Person"),
		props: map[string]value.Value{
			"Name": value.String("X"),
			"Age":  value.Int(7),
			"Nick": value.Null{},
			"City": value.String("Zürich"),
		},
	}
}

func TestFormatWithoutElement(t *testing.T) {
	assert.Equal(t, "{Name} is {{odd", Format("{Name} is {{odd", nil))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "property", template: "Name is {Name}", want: "Name is X"},
		{name: "reserved names", template: "{Id}/{DomainModel}/{SchemaInfo}", want: "hr:42/hr/hr:Person"},
		{name: "unknown property", template: "[{Missing}]", want: "[]"},
		{name: "null property", template: "[{Nick}]", want: "[]"},
		{name: "int property", template: "age {Age}", want: "age 7"},
		{name: "right aligned", template: "[{Name,4}]", want: "[   X]"},
		{name: "left aligned", template: "[{Name,-3}]", want: "[X  ]"},
		{name: "aligned by rune", template: "[{City,8}][{City,-7}]", want: "[  Zürich][Zürich ]"},
		{name: "zero padded", template: "{Age:D3}", want: "007"},
		{name: "upper case", template: "{Name:L}{Name:U}", want: "xX"},
		{name: "fmt verb", template: "{Name:%q}", want: `"X"`},
		{name: "escaped braces", template: "{{Name}} = {Name}", want: "{Name} = X"},
		{name: "not a placeholder", template: "{ Name } {", want: "{ Name } {"},
		{name: "unterminated", template: "x {Name", want: "x {Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, newFake()))
		})
	}
}

func TestFormatDedupAsymmetry(t *testing.T) {
	rewritten, names := compile("{Name} {Name} {Id} {Id}")

	// Name occurrences share slot 0; each Id occurrence gets its own slot.
	assert.Equal(t, "{0} {0} {1} {2}", rewritten)
	assert.Equal(t, []string{"Name", "Id", "Id"}, names)

	assert.Equal(t, "X X hr:42 hr:42", Format("{Name} {Name} {Id} {Id}", newFake()))
}

func TestFormatReservedNamesWithVerbs(t *testing.T) {
	rewritten, names := compile("{SchemaInfo,5}{Name:U}{SchemaInfo}{Name,2}")
	assert.Equal(t, "{0,5}{1:U}{2}{1,2}", rewritten)
	assert.Equal(t, []string{"SchemaInfo", "Name", "SchemaInfo"}, names)
}

func TestFormatCapsWidth(t *testing.T) {
	el := newFake()

	right := Format("{Name,999999999}", el)
	assert.Len(t, right, maxWidth)
	assert.Equal(t, "X", right[maxWidth-1:])

	left := Format("{Name,-999999999}", el)
	assert.Len(t, left, maxWidth)
	assert.Len(t, Format("{Age:D999999999}", el), maxWidth)
}
