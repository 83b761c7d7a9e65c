package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug", "json")
	assert.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger("loud", "console")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "abcd****", Mask("abcdefgh"))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "api_key", Secret("api_key", "abcdefgh").Key)
}
