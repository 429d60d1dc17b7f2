package bearer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromHeader(t *testing.T) {
	t.Parallel()
	cases := []struct {
		header string
		want   string
		found  bool
	}{
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer    ", "", false},
		{"Bearer abc", "abc", true},
		{"bearer   abc.def ", "abc.def", true},
		{"BEARER x", "x", true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		tok, found := FromHeader(r)
		require.Equal(t, tc.found, found, tc.header)
		require.Equal(t, tc.want, tok, tc.header)
	}
}
