package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOr(t *testing.T) {
	assert.True(t, Or(nil, true))
	assert.False(t, Or(Ptr(false), true))
	assert.Equal(t, "x", Or(Ptr("x"), ""))
}
