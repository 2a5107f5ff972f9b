package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = NewStd("sentinel")

func TestBuildKeepsCategoryAndContext(t *testing.T) {
	ee := Newf("location %q: %w", "main", errSentinel).
		Component("catalog").
		Category(CategoryNotFound).
		Context("location", "main").
		Build()

	assert.Equal(t, "catalog", ee.GetComponent())
	assert.Equal(t, CategoryNotFound, ee.Category)
	assert.Equal(t, map[string]any{"location": "main"}, ee.GetContext())
	assert.True(t, Is(ee, errSentinel), "wrapped sentinel should stay matchable")
	assert.True(t, IsNotFound(ee))
	assert.False(t, IsCategory(ee, CategoryConflict))
}

func TestCategoryOfWrappedError(t *testing.T) {
	ee := New(NewStd("duplicate")).Category(CategoryConflict).Build()
	wrapped := fmt.Errorf("while adding: %w", ee)

	assert.Equal(t, CategoryConflict, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(NewStd("plain")))
	assert.Equal(t, CategoryGeneric, CategoryOf(nil))
}

type selfCategorized struct{}

func (selfCategorized) Error() string                { return "self" }
func (selfCategorized) ErrorCategory() ErrorCategory { return CategoryVersion }

func TestDetectCategoryFromCategorizedError(t *testing.T) {
	ee := New(selfCategorized{}).Build()
	assert.Equal(t, CategoryVersion, ee.Category)
}

func TestComponentDefaultsToUnknownOutsideRegistry(t *testing.T) {
	ee := New(NewStd("boom")).Build()
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
}

func TestHooksReceiveBuiltErrors(t *testing.T) {
	t.Cleanup(ClearErrorHooks)

	var seen []ErrorCategory
	AddErrorHook(func(ee *EnhancedError) {
		seen = append(seen, ee.Category)
	})

	_ = ValidationError("bad input")
	_ = NotFoundError("tag", "a/b")
	_ = FileError(NewStd("missing"), "/tmp/x")

	require.Len(t, seen, 3)
	assert.Equal(t, []ErrorCategory{CategoryValidation, CategoryNotFound, CategoryFileIO}, seen)
}
