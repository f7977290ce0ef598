package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMust(t *testing.T) {
	t.Run("returns value when error is nil", func(t *testing.T) {
		assert.Equal(t, 42, Must(42, nil))
	})
	t.Run("panics when error is not nil", func(t *testing.T) {
		assert.Panics(t, func() {
			Must(0, fmt.Errorf("test error"))
		})
	})
}

func TestMustWithoutOutput(t *testing.T) {
	t.Run("should not panic when error is nil", func(t *testing.T) {
		MustWithoutOutput(nil)
	})
	t.Run("should panic when error is not nil", func(t *testing.T) {
		assert.Panics(t, func() {
			MustWithoutOutput(fmt.Errorf("test error"))
		})
	})
}

func TestToPtr(t *testing.T) {
	p := ToPtr("hello")
	assert.Equal(t, "hello", *p)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 37.5, Clamp(37.5, 0, 100))
}
