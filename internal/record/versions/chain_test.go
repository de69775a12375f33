package versions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"curator/internal/record/models"
	"curator/internal/record/store"
	id "curator/pkg/domain"
)

type ChainSuite struct {
	suite.Suite
	records  *store.InMemoryRecordStore
	versions *store.InMemoryVersionStore
	chain    *Chain
	parentID id.ParentID
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.records = store.NewInMemoryRecordStore()
	s.versions = store.NewInMemoryVersionStore()
	s.chain = NewChain(s.records, s.versions)
	s.parentID = id.NewParentID()
}

// publish creates a record and runs it through OnPublish.
func (s *ChainSuite) publish() *models.Record {
	rec := &models.Record{
		ID:        id.NewRecordID(),
		ParentID:  s.parentID,
		Status:    models.StatusPublished,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.chain.OnPublish(context.Background(), s.parentID, rec))
	s.Require().NoError(s.records.Create(context.Background(), rec))
	return rec
}

// markDeleted flips the stored record to deleted without touching the chain.
func (s *ChainSuite) markDeleted(rec *models.Record) {
	agent, err := models.UserAgent("u-1")
	s.Require().NoError(err)
	ts, err := models.NewTombstone(models.TombstoneInput{}, agent, time.Now())
	s.Require().NoError(err)

	stored, err := s.records.Get(context.Background(), rec.ID)
	s.Require().NoError(err)
	stored.ApplyDeletion(ts, time.Now())
	s.Require().NoError(s.records.Update(context.Background(), stored))
	rec.Status = models.StatusDeleted
}

func (s *ChainSuite) markRestored(rec *models.Record) {
	stored, err := s.records.Get(context.Background(), rec.ID)
	s.Require().NoError(err)
	stored.ApplyRestore(time.Now())
	s.Require().NoError(s.records.Update(context.Background(), stored))
	rec.Status = models.StatusPublished
}

func (s *ChainSuite) state() *models.VersionsState {
	state, err := s.versions.Get(context.Background(), s.parentID)
	s.Require().NoError(err)
	return state
}

func (s *ChainSuite) TestOnPublish_AssignsMonotonicIndexes() {
	v1 := s.publish()
	s.Equal(1, v1.VersionIndex)

	v2 := s.publish()
	s.Equal(2, v2.VersionIndex)

	state := s.state()
	s.Equal(v2.ID, state.LatestID)
	s.Equal(2, state.LatestIndex)
}

func (s *ChainSuite) TestOnDelete_LatestFallsBackToLowerVersion() {
	v1 := s.publish()
	v2 := s.publish()

	s.markDeleted(v2)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v2))

	state := s.state()
	s.Equal(v1.ID, state.LatestID)
	s.Equal(1, state.LatestIndex, "latest index decreases to the surviving version")
}

func (s *ChainSuite) TestOnDelete_NonLatestLeavesPointerAlone() {
	v1 := s.publish()
	v2 := s.publish()

	s.markDeleted(v1)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v1))

	state := s.state()
	s.Equal(v2.ID, state.LatestID)
	s.Equal(2, state.LatestIndex)
}

func (s *ChainSuite) TestOnDelete_SoleVersionKeepsPointer() {
	v1 := s.publish()

	s.markDeleted(v1)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v1))

	// No surviving sibling: the pointer stays on the deleted record.
	state := s.state()
	s.Equal(v1.ID, state.LatestID)
	s.Equal(1, state.LatestIndex)
}

func (s *ChainSuite) TestOnRestore_HigherVersionBecomesLatest() {
	v1 := s.publish()
	v2 := s.publish()

	s.markDeleted(v2)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v2))
	s.Equal(v1.ID, s.state().LatestID)

	s.markRestored(v2)
	require.NoError(s.T(), s.chain.OnRestore(context.Background(), s.parentID, v2))

	state := s.state()
	s.Equal(v2.ID, state.LatestID)
	s.Equal(2, state.LatestIndex)
}

func (s *ChainSuite) TestOnRestore_LowerVersionLeavesLatest() {
	v1 := s.publish()
	v2 := s.publish()

	s.markDeleted(v1)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v1))

	s.markRestored(v1)
	require.NoError(s.T(), s.chain.OnRestore(context.Background(), s.parentID, v1))

	state := s.state()
	s.Equal(v2.ID, state.LatestID, "restoring an older version never demotes the latest")
	s.Equal(2, state.LatestIndex)
}

func (s *ChainSuite) TestOnRestore_OnlyVersionBecomesLatest() {
	v1 := s.publish()

	s.markDeleted(v1)
	require.NoError(s.T(), s.chain.OnDelete(context.Background(), s.parentID, v1))

	s.markRestored(v1)
	require.NoError(s.T(), s.chain.OnRestore(context.Background(), s.parentID, v1))

	state := s.state()
	s.Equal(v1.ID, state.LatestID)
}
