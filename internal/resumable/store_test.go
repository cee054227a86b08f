package resumable_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelimg/imagepipeline/internal/resumable"
)

func TestSaveAndLookup(t *testing.T) {
	s := resumable.NewStore()
	s.Save("http://x/a.jpg", resumable.Data{Validator: "etag-1", Bytes: []byte("abcde")})

	d, ok := s.Lookup("http://x/a.jpg")
	require.True(t, ok)
	require.Equal(t, "etag-1", d.Validator)
	require.Len(t, d.Bytes, 5)
}

func TestEmptyBytesNeverSaved(t *testing.T) {
	s := resumable.NewStore()
	s.Save("http://x/a.jpg", resumable.Data{Validator: "etag-1"})

	_, ok := s.Lookup("http://x/a.jpg")
	require.False(t, ok)
}

func TestClearRemovesRecord(t *testing.T) {
	s := resumable.NewStore()
	s.Save("http://x/a.jpg", resumable.Data{Validator: "etag-1", Bytes: []byte("abcde")})
	s.Clear("http://x/a.jpg")

	_, ok := s.Lookup("http://x/a.jpg")
	require.False(t, ok)
}
