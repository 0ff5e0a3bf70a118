package rowstore

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/testutil"
)

type FileSuite struct {
	testutil.StoreSuite
}

func TestFileSuite(t *testing.T) {
	suite.Run(t, new(FileSuite))
}

func (s *FileSuite) create(name string) *File {
	f, err := Create(s.Context(), s.Store(), name)
	s.Require().NoError(err)
	return f
}

func (s *FileSuite) TestObjectReplacesTreeOfSameName() {
	f := s.create("c")
	tree, bufs := newEventTree(s.T())
	fillEvent(s.T(), tree, bufs, 1, 5)
	s.Require().NoError(f.WriteTree(tree))
	s.Require().NoError(f.WriteObject("Events", &Object{Class: "TNamed", Data: []byte("now an object")}))
	s.Require().NoError(f.Close(s.Context()))

	s.Equal([]string{"c/manifest.json", "c/objects/Events.bin"}, s.Blobs("c/"))

	in, err := Open(s.Context(), s.Store(), "c")
	s.Require().NoError(err)
	s.Require().Len(in.Keys(), 1)
	s.False(in.Keys()[0].IsTree())
	_, err = in.GetTree("Events")
	s.True(errors.IsType(err, errors.ErrorTypeData))
}

func (s *FileSuite) TestClosedContainerRejectsWrites() {
	f := s.create("c")
	s.Require().NoError(f.Close(s.Context()))
	s.Require().NoError(f.Close(s.Context()))

	err := f.WriteObject("late", &Object{Data: []byte("x")})
	s.True(errors.IsType(err, errors.ErrorTypeState))
	err = f.WriteTree(NewTree("Late", ""))
	s.True(errors.IsType(err, errors.ErrorTypeState))

	s.Equal([]string{"c/manifest.json"}, s.Blobs("c/"))
}

func (s *FileSuite) TestOpenedContainerIsReadOnly() {
	f := s.create("c")
	s.Require().NoError(f.WriteObject("info", &Object{Class: "TNamed", Data: []byte("v1")}))
	s.Require().NoError(f.Close(s.Context()))

	in, err := Open(s.Context(), s.Store(), "c")
	s.Require().NoError(err)
	s.False(in.Writable())
	err = in.WriteObject("info", &Object{Data: []byte("v2")})
	s.True(errors.IsType(err, errors.ErrorTypeState))

	obj, err := in.GetObject("info")
	s.Require().NoError(err)
	obj.Data[0] = 'X'
	again, err := in.GetObject("info")
	s.Require().NoError(err)
	s.Equal([]byte("v1"), again.Data)
	s.NoError(in.Close(s.Context()))
}

func (s *FileSuite) TestContainersShareAStore() {
	a := s.create("a")
	b := s.create("a-b")
	s.Require().NoError(a.WriteObject("x", &Object{Data: []byte("1")}))
	s.Require().NoError(b.WriteObject("y", &Object{Data: []byte("2")}))
	s.Require().NoError(a.Close(s.Context()))
	s.Require().NoError(b.Close(s.Context()))

	s.Equal([]string{"a/manifest.json", "a/objects/x.bin"}, s.Blobs("a/"))
	s.Equal([]string{"a-b/manifest.json", "a-b/objects/y.bin"}, s.Blobs("a-b/"))
}
