package content

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownTypes(t *testing.T) {
	body, err := Decode(TypeHero, Document{
		"title":       "Trattoria Nonna",
		"subtitle":    "Fresh pasta daily",
		"buttonLabel": "Book a table",
		"buttonHref":  "/bookings",
	})
	require.NoError(t, err)

	hero, ok := body.(Hero)
	require.True(t, ok)
	assert.Equal(t, "Trattoria Nonna", hero.Title)
	assert.Equal(t, "Fresh pasta daily", hero.Subtitle)
	assert.Equal(t, "/bookings", hero.ButtonHref)
	assert.Equal(t, TypeHero, body.Kind())
}

func TestDecode_WeaklyTyped(t *testing.T) {
	body, err := Decode(TypeMenuHighlights, Document{
		"heading": "Chef's picks",
		"items": []interface{}{
			map[string]interface{}{"name": "Cacio e pepe", "price": "14.50"},
			map[string]interface{}{"name": "Tiramisu", "price": 7},
		},
	})
	require.NoError(t, err)

	menu := body.(MenuHighlights)
	require.Len(t, menu.Items, 2)
	assert.InDelta(t, 14.5, menu.Items[0].Price, 0.001)
	assert.InDelta(t, 7.0, menu.Items[1].Price, 0.001)
}

func TestDecode_MalformedFieldDegradesToZero(t *testing.T) {
	body, err := Decode(TypeHero, Document{
		"title":    map[string]interface{}{"nested": true},
		"subtitle": "still here",
	})
	assert.Error(t, err)

	hero, ok := body.(Hero)
	require.True(t, ok)
	assert.Empty(t, hero.Title)
	assert.Equal(t, "still here", hero.Subtitle)
}

func TestDecode_EmptyDocument(t *testing.T) {
	for _, typ := range KnownTypes {
		t.Run(typ, func(t *testing.T) {
			body, err := Decode(typ, nil)
			require.NoError(t, err)
			require.NotNil(t, body)
			assert.Equal(t, typ, body.Kind())
		})
	}
}

func TestDecode_UnknownTypeIsUnrecognized(t *testing.T) {
	raw := Document{"anything": []interface{}{1, 2}}
	body, err := Decode("retired-carousel", raw)
	require.NoError(t, err)

	u, ok := body.(Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "retired-carousel", u.Kind())
	assert.True(t, raw.Equal(u.Raw))
	assert.False(t, IsKnownType("retired-carousel"))
	assert.True(t, IsKnownType(TypeCTA))
}

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Document
		wantErr bool
	}{
		{name: "json object", raw: `{"title": "Hello", "count": 2}`, want: Document{"title": "Hello", "count": 2}},
		{name: "yaml mapping", raw: "title: Hello\nitems:\n  - a\n  - b\n", want: Document{"title": "Hello", "items": []interface{}{"a", "b"}}},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "scalar", raw: "just text", wantErr: true},
		{name: "list", raw: "[1, 2]", wantErr: true},
		{name: "broken json", raw: `{"title": "Hello"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocument(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	orig := Document{
		"heading": "Gallery",
		"images":  []interface{}{map[string]interface{}{"url": "/a.jpg"}},
	}
	clone := orig.Clone()

	clone["heading"] = "Changed"
	clone["images"].([]interface{})[0].(map[string]interface{})["url"] = "/b.jpg"

	assert.Equal(t, "Gallery", orig["heading"])
	assert.Equal(t, "/a.jpg", orig["images"].([]interface{})[0].(map[string]interface{})["url"])
	assert.NotNil(t, Document(nil).Clone())
}

func TestDecodeJSON(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", doc["title"])

	doc, err = DecodeJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, doc)

	_, err = DecodeJSON([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestDecodeJSON_KeepsLargeIntegers(t *testing.T) {
	doc, err := DecodeJSON([]byte(`{"bookingId":9007199254740993,"price":12.5}`))
	require.NoError(t, err)

	assert.Equal(t, "9007199254740993", fmt.Sprint(doc["bookingId"]))
	assert.True(t, doc.Equal(Document{"bookingId": int64(9007199254740993), "price": 12.5}))

	body, err := Decode(TypeMenuHighlights, Document{"items": []interface{}{
		map[string]interface{}{"name": "Cacio e pepe", "price": doc["price"]},
	}})
	require.NoError(t, err)
	assert.Equal(t, 12.5, body.(MenuHighlights).Items[0].Price)
}
