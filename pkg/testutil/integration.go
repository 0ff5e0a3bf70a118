package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
)

// StoreSuite gives every test a fresh on-disk blob store.
type StoreSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	store     *blobstore.LocalStore
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *StoreSuite) SetupSuite() {
	s.startTime = time.Now()
}

// SetupTest creates the store and the test context.
func (s *StoreSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.store = blobstore.NewLocalStore(s.T().TempDir())
	TestLogger(s.T())
}

// TearDownTest cancels the test context.
func (s *StoreSuite) TearDownTest() {
	s.cancel()
}

// TearDownSuite runs after all tests in the suite
func (s *StoreSuite) TearDownSuite() {
	s.T().Logf("suite completed in %v", time.Since(s.startTime))
}

// Context returns the test context
func (s *StoreSuite) Context() context.Context {
	return s.ctx
}

// Store returns the test's blob store.
func (s *StoreSuite) Store() *blobstore.LocalStore {
	return s.store
}

// Blobs lists every blob below prefix.
func (s *StoreSuite) Blobs(prefix string) []string {
	names, err := s.store.List(s.ctx, prefix)
	s.Require().NoError(err)
	return names
}
