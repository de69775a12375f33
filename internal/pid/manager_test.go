package pid_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"curator/internal/pid"
	"curator/internal/pid/mocks"
	"curator/internal/record/models"
	"curator/internal/record/store"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
)

type managerFixture struct {
	provider *mocks.MockProvider
	records  *store.InMemoryRecordStore
	parents  *store.InMemoryParentStore
	manager  *pid.Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("datacite").AnyTimes()

	registry := pid.NewRegistry()
	require.NoError(t, registry.Register("doi", provider))

	records := store.NewInMemoryRecordStore()
	parents := store.NewInMemoryParentStore()
	manager := pid.NewManager(registry, records, parents, pid.Config{
		RequiredSchemes: []string{"doi"},
		LinkTemplates:   map[string]string{"doi": "https://repo.example.org/records/{id}"},
	})

	return &managerFixture{provider: provider, records: records, parents: parents, manager: manager}
}

func (f *managerFixture) seedParent(t *testing.T, status models.PIDStatus) *models.Parent {
	t.Helper()
	parent := &models.Parent{
		ID:        id.NewParentID(),
		OwnerID:   id.UserID("user-7"),
		CreatedAt: time.Now(),
	}
	parent.SetPID(models.PID{
		Scheme: "doi", Identifier: "10.1234/parent", Provider: "datacite", Status: status,
	})
	require.NoError(t, f.parents.Create(context.Background(), parent))
	return parent
}

func (f *managerFixture) seedVersion(t *testing.T, parent *models.Parent, index int, doi string, status models.DeletionStatus) *models.Record {
	t.Helper()
	rec := &models.Record{
		ID:           id.NewRecordID(),
		ParentID:     parent.ID,
		VersionIndex: index,
		Status:       status,
	}
	rec.SetPID(models.PID{
		Scheme: "doi", Identifier: doi, Provider: "datacite", Status: models.PIDStatusRegistered,
	})
	require.NoError(t, f.records.Create(context.Background(), rec))
	return rec
}

func TestManagerRegisterOrUpdateRecord(t *testing.T) {
	t.Run("registers a reserved pid and persists the transition", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)

		rec := &models.Record{
			ID:           id.NewRecordID(),
			ParentID:     parent.ID,
			VersionIndex: 1,
			Status:       models.StatusPublished,
		}
		rec.SetPID(models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Provider: "datacite",
			Status: models.PIDStatusReserved,
		})
		require.NoError(t, f.records.Create(context.Background(), rec))

		var got pid.RegistrationRequest
		f.provider.EXPECT().
			Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req pid.RegistrationRequest) error {
				got = req
				return nil
			})

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", false))

		assert.Equal(t, "https://repo.example.org/records/"+rec.ID.String(), got.URL)
		require.Len(t, got.Payload.Relations, 1)
		assert.Equal(t, pid.RelationIsVersionOf, got.Payload.Relations[0].Type)
		assert.Equal(t, "10.1234/parent", got.Payload.Relations[0].Identifier)

		stored, err := f.records.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		p, ok := stored.PIDValue("doi")
		require.True(t, ok)
		assert.Equal(t, models.PIDStatusRegistered, p.Status)
	})

	t.Run("updates a registered pid without re-registering", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)
		rec := f.seedVersion(t, parent, 1, "10.1234/abcd-0001", models.StatusPublished)

		f.provider.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", false))
	})

	t.Run("repeated calls on unchanged state send identical payloads", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)
		rec := f.seedVersion(t, parent, 1, "10.1234/abcd-0001", models.StatusPublished)

		var payloads []pid.Payload
		f.provider.EXPECT().
			Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req pid.RegistrationRequest) error {
				payloads = append(payloads, req.Payload)
				return nil
			}).
			Times(2)

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", false))
		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", false))

		require.Len(t, payloads, 2)
		assert.Equal(t, payloads[0], payloads[1])
	})

	t.Run("provider failure leaves local state untouched", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)

		rec := &models.Record{
			ID:           id.NewRecordID(),
			ParentID:     parent.ID,
			VersionIndex: 1,
			Status:       models.StatusPublished,
		}
		rec.SetPID(models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Provider: "datacite",
			Status: models.PIDStatusReserved,
		})
		require.NoError(t, f.records.Create(context.Background(), rec))

		outage := pid.NewProviderError(pid.ErrorOutage, "datacite", "doi",
			"10.1234/abcd-0001", "status 503", nil)
		f.provider.EXPECT().Register(gomock.Any(), gomock.Any()).Return(outage)

		err := f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", false)
		require.Error(t, err)
		assert.True(t, pid.IsRetryable(err))

		stored, err := f.records.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		p, _ := stored.PIDValue("doi")
		assert.Equal(t, models.PIDStatusReserved, p.Status)
	})
}

func TestManagerRegisterOrUpdateParent(t *testing.T) {
	t.Run("aggregates active versions newest first", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)
		f.seedVersion(t, parent, 1, "10.1234/version-x", models.StatusPublished)
		y := f.seedVersion(t, parent, 2, "10.1234/version-y", models.StatusPublished)

		var got pid.RegistrationRequest
		f.provider.EXPECT().
			Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req pid.RegistrationRequest) error {
				got = req
				return nil
			})

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), y.ID, "doi", true))

		require.Len(t, got.Payload.Relations, 2)
		assert.Equal(t, pid.RelationHasVersion, got.Payload.Relations[0].Type)
		assert.Equal(t, "10.1234/version-y", got.Payload.Relations[0].Identifier)
		assert.Equal(t, "10.1234/version-x", got.Payload.Relations[1].Identifier)
		assert.Equal(t, "https://repo.example.org/records/"+parent.ID.String(), got.URL)
	})

	t.Run("deleted versions drop out of the aggregate", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusRegistered)
		f.seedVersion(t, parent, 1, "10.1234/version-x", models.StatusDeleted)
		y := f.seedVersion(t, parent, 2, "10.1234/version-y", models.StatusPublished)

		var got pid.RegistrationRequest
		f.provider.EXPECT().
			Update(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req pid.RegistrationRequest) error {
				got = req
				return nil
			})

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), y.ID, "doi", true))

		require.Len(t, got.Payload.Relations, 1)
		assert.Equal(t, "10.1234/version-y", got.Payload.Relations[0].Identifier)
	})

	t.Run("registers an unregistered parent pid and persists it", func(t *testing.T) {
		f := newManagerFixture(t)
		parent := f.seedParent(t, models.PIDStatusReserved)
		rec := f.seedVersion(t, parent, 1, "10.1234/version-x", models.StatusPublished)

		f.provider.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil)

		require.NoError(t, f.manager.RegisterOrUpdate(context.Background(), rec.ID, "doi", true))

		stored, err := f.parents.Get(context.Background(), parent.ID)
		require.NoError(t, err)
		p, _ := stored.PIDValue("doi")
		assert.Equal(t, models.PIDStatusRegistered, p.Status)
	})
}

func TestManagerReserveAll(t *testing.T) {
	t.Run("rejects a draft missing a required scheme", func(t *testing.T) {
		f := newManagerFixture(t)
		draft := &models.Record{ID: id.NewRecordID(), Status: models.StatusPublished}

		err := f.manager.ReserveAll(context.Background(), draft)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("reserves each new identifier and advances its status", func(t *testing.T) {
		f := newManagerFixture(t)
		draft := &models.Record{ID: id.NewRecordID(), Status: models.StatusPublished}
		draft.SetPID(models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Provider: "datacite",
			Status: models.PIDStatusNew,
		})

		f.provider.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return(nil)

		require.NoError(t, f.manager.ReserveAll(context.Background(), draft))
		p, _ := draft.PIDValue("doi")
		assert.Equal(t, models.PIDStatusReserved, p.Status)
	})

	t.Run("skips identifiers already past reservation", func(t *testing.T) {
		f := newManagerFixture(t)
		draft := &models.Record{ID: id.NewRecordID(), Status: models.StatusPublished}
		draft.SetPID(models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Provider: "datacite",
			Status: models.PIDStatusReserved,
		})

		require.NoError(t, f.manager.ReserveAll(context.Background(), draft))
	})
}

func TestManagerDiscard(t *testing.T) {
	t.Run("hard-deletes an unregistered identifier", func(t *testing.T) {
		f := newManagerFixture(t)
		f.provider.EXPECT().Discard(gomock.Any(), "doi", "10.1234/abcd-0001").Return(nil)

		err := f.manager.Discard(context.Background(), models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Status: models.PIDStatusReserved,
		})
		require.NoError(t, err)
	})

	t.Run("hides a registered identifier instead of deleting", func(t *testing.T) {
		f := newManagerFixture(t)
		f.provider.EXPECT().Hide(gomock.Any(), "10.1234/abcd-0001").Return(nil)

		err := f.manager.Discard(context.Background(), models.PID{
			Scheme: "doi", Identifier: "10.1234/abcd-0001", Status: models.PIDStatusRegistered,
		})
		require.NoError(t, err)
	})

	t.Run("discard all with soft delete hides registered identifiers", func(t *testing.T) {
		f := newManagerFixture(t)
		f.provider.EXPECT().Hide(gomock.Any(), "10.1234/live").Return(nil)

		err := f.manager.DiscardAll(context.Background(), map[string]models.PID{
			"doi": {Scheme: "doi", Identifier: "10.1234/live", Status: models.PIDStatusRegistered},
		}, true)
		require.NoError(t, err)
	})

	t.Run("discard all hard-deletes identifiers never registered", func(t *testing.T) {
		f := newManagerFixture(t)
		f.provider.EXPECT().Discard(gomock.Any(), "doi", "10.1234/draft").Return(nil)

		err := f.manager.DiscardAll(context.Background(), map[string]models.PID{
			"doi": {Scheme: "doi", Identifier: "10.1234/draft", Status: models.PIDStatusNew},
		}, false)
		require.NoError(t, err)
	})
}

func TestManagerCreate(t *testing.T) {
	t.Run("unbound scheme is rejected", func(t *testing.T) {
		f := newManagerFixture(t)
		draft := &models.Record{ID: id.NewRecordID()}

		_, err := f.manager.Create(context.Background(), draft, "handle")
		require.ErrorIs(t, err, pid.ErrNoProvider)
	})

	t.Run("allocates through the scheme provider", func(t *testing.T) {
		f := newManagerFixture(t)
		draft := &models.Record{ID: id.NewRecordID()}
		minted := models.PID{
			Scheme: "doi", Identifier: "10.1234/new-0001", Provider: "datacite",
			Status: models.PIDStatusNew,
		}
		f.provider.EXPECT().Create(gomock.Any(), draft).Return(minted, nil)

		p, err := f.manager.Create(context.Background(), draft, "doi")
		require.NoError(t, err)
		assert.Equal(t, minted, p)
	})
}
