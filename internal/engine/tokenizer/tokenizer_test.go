package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Run("lowercases and splits on non-alphanumerics", func(t *testing.T) {
		assert.Equal(t,
			[]string{"hello", "world", "42"},
			Tokenize("Hello, World! 42"),
		)
	})

	t.Run("punctuation only yields no tokens", func(t *testing.T) {
		assert.Empty(t, Tokenize("... --- !!!"))
	})

	t.Run("empty input yields no tokens", func(t *testing.T) {
		assert.Empty(t, Tokenize(""))
	})

	t.Run("keeps duplicate terms", func(t *testing.T) {
		assert.Equal(t,
			[]string{"go", "go", "go"},
			Tokenize("go go go"),
		)
	})

	t.Run("digits inside words are kept", func(t *testing.T) {
		assert.Equal(t,
			[]string{"utf8", "v2"},
			Tokenize("UTF8/v2"),
		)
	})

	t.Run("unicode letters survive", func(t *testing.T) {
		assert.Equal(t,
			[]string{"café", "über"},
			Tokenize("Café über"),
		)
	})
}
