package shared

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedRequest struct {
	Name  string `validate:"required"`
	Count int    `validate:"gte=1"`
}

type selfValidating struct {
	err error
}

func (s selfValidating) Validate() error { return s.err }

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"Name": "boots", "Count": 2}`))

	var got taggedRequest
	require.NoError(t, DecodeJSON(r, &got))
	assert.Equal(t, "boots", got.Name)
	assert.Equal(t, 2, got.Count)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	assert.Error(t, DecodeJSON(r, &got))
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	t.Run("struct tags", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, ValidateRequest(taggedRequest{Name: "boots", Count: 1}))
		assert.Error(t, ValidateRequest(taggedRequest{Count: 1}))
		assert.Error(t, ValidateRequest(taggedRequest{Name: "boots", Count: 0}))
	})

	t.Run("prefers the type's own Validate method", func(t *testing.T) {
		t.Parallel()

		sentinel := errors.New("bad request")
		assert.ErrorIs(t, ValidateRequest(selfValidating{err: sentinel}), sentinel)
		assert.NoError(t, ValidateRequest(selfValidating{}))
	})
}
