package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeDoc(t *testing.T, s string) map[string]any {
	t.Helper()
	v, err := DecodeGeneric([]byte(s))
	require.NoError(t, err)
	return v.(map[string]any)
}

func encodeDoc(t *testing.T, doc map[string]any) string {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

// =========================================================================
// MUTATION TESTS
// =========================================================================

func TestMutation_SetNestedPathCreatesMaps(t *testing.T) {
	doc := decodeDoc(t, `{"unreadCount":{}}`)

	require.NoError(t, SetField("unreadCount.u1", 0).Apply(doc))
	require.NoError(t, SetField("meta.seen.by", "u2").Apply(doc))

	assert.JSONEq(t, `{"unreadCount":{"u1":0},"meta":{"seen":{"by":"u2"}}}`, encodeDoc(t, doc))
}

func TestMutation_IncrementMissingFieldStartsAtZero(t *testing.T) {
	doc := decodeDoc(t, `{"followersCount":2}`)

	require.NoError(t, Increment("followersCount", 1).Apply(doc))
	require.NoError(t, Increment("followingCount", -1).Apply(doc))

	assert.JSONEq(t, `{"followersCount":3,"followingCount":-1}`, encodeDoc(t, doc))
}

func TestMutation_IncrementRejectsNonNumber(t *testing.T) {
	doc := decodeDoc(t, `{"likes":"many"}`)

	assert.Error(t, Increment("likes", 1).Apply(doc))
}

func TestMutation_ArrayUnionIsASet(t *testing.T) {
	doc := decodeDoc(t, `{"following":["a"]}`)

	require.NoError(t, ArrayUnion("following", "b").Apply(doc))
	require.NoError(t, ArrayUnion("following", "b").Apply(doc))
	require.NoError(t, ArrayUnion("following", "a").Apply(doc))

	assert.JSONEq(t, `{"following":["a","b"]}`, encodeDoc(t, doc))
}

func TestMutation_ArrayRemove(t *testing.T) {
	doc := decodeDoc(t, `{"followers":["a","b","a"]}`)

	require.NoError(t, ArrayRemove("followers", "a").Apply(doc))
	assert.JSONEq(t, `{"followers":["b"]}`, encodeDoc(t, doc))

	// removing from a missing array leaves an empty one
	require.NoError(t, ArrayRemove("following", "x").Apply(doc))
	assert.JSONEq(t, `{"followers":["b"],"following":[]}`, encodeDoc(t, doc))
}

func TestMutation_LargeIntegersSurvive(t *testing.T) {
	doc := decodeDoc(t, `{"createdAt":1714564800000001,"likes":0}`)

	require.NoError(t, Increment("likes", 1).Apply(doc))

	assert.JSONEq(t, `{"createdAt":1714564800000001,"likes":1}`, encodeDoc(t, doc))
}

// =========================================================================
// QUERY TESTS
// =========================================================================

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"plain collection", Query{Collection: "posts"}, false},
		{"equality filter", Query{Collection: "users", Filters: []Filter{Where("email", OpEqual, "a@x.com")}}, false},
		{"ordered", Query{Collection: "posts", OrderBy: "createdAt", Descending: true}, false},
		{"missing collection", Query{}, true},
		{"empty field", Query{Collection: "users", Filters: []Filter{Where("", OpEqual, 1)}}, true},
		{"bad operator", Query{Collection: "users", Filters: []Filter{Where("a", Op(">"), 1)}}, true},
		{"injection attempt", Query{Collection: "users", OrderBy: `a"]`}, true},
		{"double dot", Query{Collection: "users", OrderBy: "a..b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."email"`, JSONPath("email"))
	assert.Equal(t, `$."unreadCount"."u1"`, JSONPath("unreadCount.u1"))
}
