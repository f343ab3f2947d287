package errors

import (
	"fmt"
	"github.com/stretchr/testify/require"
	"log/slog"
	"slices"
	"testing"
)

func TestAnnotatedError(t *testing.T) {
	err := New("test error", slog.String("id", "123"))
	require.Equal(t, "test error", err.Error())

	// Assert that wrapping sentinel errors work as expected.
	sentinel := NewSentinel("test error")
	require.NotErrorIs(t, err, NewSentinel("test error"))
	wrapped := Wrap(sentinel, "wrapped", slog.String("phase", "meta"))
	require.ErrorIs(t, wrapped, sentinel)
	require.Equal(t, "wrapped: test error", wrapped.Error())

	// Ensure log values are coming through.
	var annotated AnnotatedError
	require.ErrorAs(t, err, &annotated)
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("id", "123"))

	// Assert there's a valid source
	sourceIdx := slices.IndexFunc(group, func(attr slog.Attr) bool {
		return attr.Key == "source"
	})
	source := group[sourceIdx]
	require.Contains(t, source.Value.String(), "annotatederror_test.go")
}

func TestWrap_nil(t *testing.T) {
	require.NoError(t, Wrap(nil, "nothing to wrap"))
}

func TestWrap_keepsInnerAttrs(t *testing.T) {
	inner := New("inner", slog.Int("suspect", 2))
	outer := Wrap(inner, "outer", slog.String("phase", "suspects"))

	var annotated AnnotatedError
	require.ErrorAs(t, outer, &annotated)
	group := annotated.LogValue().Group()
	require.Contains(t, group, slog.String("phase", "suspects"))
	require.Contains(t, group, slog.Int("suspect", 2))
}

func TestSlogError(t *testing.T) {
	plain := SlogError(fmt.Errorf("plain"))
	require.Equal(t, "error", plain.Key)
	require.Equal(t, "plain", plain.Value.String())

	annotated := SlogError(New("annotated"))
	require.Equal(t, slog.KindGroup, annotated.Value.Resolve().Kind())
}
