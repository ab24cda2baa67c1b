package declarations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/commissariat/internal/apperrors"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/models"
	"github.com/xelth-com/commissariat/internal/policy"
	"github.com/xelth-com/commissariat/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) record(event string, d *models.Declaration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+d.ID)
}

func (r *recordingNotifier) DeclarationCreated(d *models.Declaration) { r.record("created", d) }
func (r *recordingNotifier) DeclarationStatusChanged(d *models.Declaration) {
	r.record("status", d)
}
func (r *recordingNotifier) DeclarationDeleted(d *models.Declaration) { r.record("deleted", d) }

type fixture struct {
	svc      *Service
	store    *store.Memory
	notifier *recordingNotifier
	clock    time.Time

	stationA, stationB string
	owner, other       policy.Actor
	agentA, agentB     policy.Actor
	admin              policy.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    store.NewMemory(),
		notifier: &recordingNotifier{},
		clock:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		stationA: "station-a",
		stationB: "station-b",
	}

	require.NoError(t, f.store.CreateStation(ctx, &models.Station{ID: f.stationA, Name: "Central", City: "Dakar", Address: "1 Main St"}))
	require.NoError(t, f.store.CreateStation(ctx, &models.Station{ID: f.stationB, Name: "Harbor", City: "Dakar", Address: "2 Port Rd"}))

	addAccount := func(id string, role models.Role, station *string) policy.Actor {
		require.NoError(t, f.store.CreateAccount(ctx, &models.Account{
			ID: id, FirstName: id, LastName: "Test", Email: id + "@example.com", Role: role, StationID: station,
		}))
		return policy.Actor{ID: id, Role: role, StationID: station}
	}
	a, b := f.stationA, f.stationB
	f.owner = addAccount("owner", models.RoleDeclarant, nil)
	f.other = addAccount("other", models.RoleDeclarant, nil)
	f.agentA = addAccount("agent-a", models.RoleStationAgent, &a)
	f.agentB = addAccount("agent-b", models.RoleStationAgent, &b)
	f.admin = addAccount("admin", models.RoleAdmin, nil)

	f.svc = NewService(f.store, Options{
		Notifier:  f.notifier,
		Logger:    logger.Discard(),
		PublicURL: "http://localhost:5000/",
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
	return f
}

func (f *fixture) objectInput() CreateInput {
	value := decimal.RequireFromString("899.99")
	return CreateInput{
		StationID:    f.stationA,
		Kind:         models.KindObject,
		IncidentDate: time.Date(2024, 2, 28, 18, 30, 0, 0, time.UTC),
		Location:     "Market square",
		Description:  "Lost my phone near the fountain",
		Photos:       []string{"/uploads/photo_1.jpg", " "},
		Details: models.ObjectDetails{
			ObjectName:     "iPhone",
			ObjectCategory: "telephone",
			EstimatedValue: &value,
		},
	}
}

func validPerson() models.PersonDetails {
	return models.PersonDetails{
		FirstName:           "Awa",
		LastName:            "Diop",
		DateOfBirth:         time.Date(2010, 5, 4, 0, 0, 0, 0, time.UTC),
		Gender:              "female",
		Height:              140,
		Weight:              35,
		ClothingDescription: "Blue dress",
		LastSeenLocation:    "School gate",
	}
}

func (f *fixture) create(t *testing.T) *models.Declaration {
	t.Helper()
	d, err := f.svc.Create(context.Background(), f.owner, f.objectInput())
	require.NoError(t, err)
	return d
}

func TestCreateObjectDeclaration(t *testing.T) {
	f := newFixture(t)

	d := f.create(t)

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, models.StatusPending, d.Status)
	assert.Equal(t, f.owner.ID, d.OwnerID)
	assert.Equal(t, []string{"/uploads/photo_1.jpg"}, []string(d.Photos))
	obj, ok := d.ObjectDetails()
	require.True(t, ok)
	assert.Equal(t, "iPhone", obj.ObjectName)
	assert.Equal(t, "telephone", obj.ObjectCategory)
	_, isPerson := d.PersonDetails()
	assert.False(t, isPerson)

	require.NotNil(t, d.Station)
	assert.Equal(t, "Central", d.Station.Name)
	require.NotNil(t, d.Owner)
	assert.Equal(t, "owner@example.com", d.Owner.Email)

	assert.Equal(t, []string{"created:" + d.ID}, f.notifier.events)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingStation", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.StationID = ""
		_, err := f.svc.Create(ctx, f.owner, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})

	t.Run("UnknownStation", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.StationID = "nowhere"
		_, err := f.svc.Create(ctx, f.owner, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("MissingCommonFields", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.Location = "  "
		in.IncidentDate = time.Time{}
		_, err := f.svc.Create(ctx, f.owner, in)
		require.True(t, apperrors.Is(err, apperrors.ErrValidation))
		fields := apperrors.FieldsOf(err)
		assert.Contains(t, fields, "location")
		assert.Contains(t, fields, "incidentDate")
	})

	t.Run("PersonMissingRequiredFields", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.Kind = models.KindPerson
		person := validPerson()
		person.LastSeenLocation = ""
		person.Height = 0
		in.Details = person
		_, err := f.svc.Create(ctx, f.owner, in)
		require.True(t, apperrors.Is(err, apperrors.ErrValidation))
		assert.Contains(t, apperrors.FieldsOf(err), "lastSeenLocation")
		assert.Contains(t, apperrors.FieldsOf(err), "height")
	})

	t.Run("DetailsKindMismatch", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.Details = validPerson()
		_, err := f.svc.Create(ctx, f.owner, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})

	t.Run("UnknownKind", func(t *testing.T) {
		f := newFixture(t)
		in := f.objectInput()
		in.Kind = "vehicle"
		_, err := f.svc.Create(ctx, f.owner, in)
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})

	t.Run("AgentCannotFile", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(ctx, f.agentA, f.objectInput())
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})
}

func TestCreatePersonDeclaration(t *testing.T) {
	f := newFixture(t)
	in := f.objectInput()
	in.Kind = models.KindPerson
	in.Details = validPerson()

	d, err := f.svc.Create(context.Background(), f.owner, in)
	require.NoError(t, err)

	p, ok := d.PersonDetails()
	require.True(t, ok)
	assert.Equal(t, "Awa", p.FirstName)
}

func TestGetAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.create(t)

	_, err := f.svc.Get(ctx, f.owner, d.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.agentA, d.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.admin, d.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.other, d.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden), "another declarant must be refused")
	_, err = f.svc.Get(ctx, f.agentB, d.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden), "an agent of another station must be refused")

	_, err = f.svc.Get(ctx, f.admin, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListByStation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.create(t)
	second := f.create(t)

	list, err := f.svc.ListByStation(ctx, f.agentA, f.stationA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, first.ID, list[1].ID)

	_, err = f.svc.ListByStation(ctx, f.agentB, f.stationA)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	list, err = f.svc.ListByStation(ctx, f.admin, f.stationA)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.ListByStation(ctx, f.owner, f.stationA)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.ListByStation(ctx, f.admin, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListOwnHidesHidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	kept := f.create(t)
	hidden := f.create(t)

	_, err := f.svc.Hide(ctx, f.owner, hidden.ID)
	require.NoError(t, err)

	own, err := f.svc.ListOwn(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, kept.ID, own[0].ID)

	otherList, err := f.svc.ListOwn(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, otherList)

	station, err := f.svc.ListByStation(ctx, f.agentA, f.stationA)
	require.NoError(t, err)
	assert.Len(t, station, 2, "staff still see hidden declarations")

	_, err = f.svc.Hide(ctx, f.other, kept.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.create(t)
	in := f.objectInput()
	in.StationID = f.stationB
	_, err := f.svc.Create(ctx, f.other, in)
	require.NoError(t, err)

	all, err := f.svc.ListAll(ctx, f.admin, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := f.svc.ListAll(ctx, f.admin, Filter{StationID: f.stationA})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, d.ID, filtered[0].ID)

	_, err = f.svc.ListAll(ctx, f.admin, Filter{Status: "lost"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = f.svc.ListAll(ctx, f.agentA, Filter{})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Workflow", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		for _, st := range []models.Status{models.StatusProcessing, models.StatusProcessed, models.StatusClosed} {
			updated, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: st})
			require.NoError(t, err, "to %s", st)
			assert.Equal(t, st, updated.Status)
			assert.NotNil(t, updated.ProcessedAt)
		}
		assert.Len(t, f.notifier.events, 4)
	})

	t.Run("RejectRequiresReason", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusRejected, RejectReason: "  "})
		require.True(t, apperrors.Is(err, apperrors.ErrValidation))
		assert.Contains(t, apperrors.FieldsOf(err), "rejectReason")

		updated, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusRejected, RejectReason: "duplicate"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, updated.Status)
		assert.Equal(t, "duplicate", updated.RejectReason)
	})

	t.Run("RejectAfterClose", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		for _, st := range []models.Status{models.StatusProcessing, models.StatusProcessed, models.StatusClosed} {
			_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: st})
			require.NoError(t, err, "to %s", st)
		}
		updated, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusRejected, RejectReason: "returned item was not the declared one"})
		require.NoError(t, err, "rejection is reachable from closed")
		assert.Equal(t, models.StatusRejected, updated.Status)

		_, err = f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusProcessing})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "rejected never moves forward again")
	})

	t.Run("SameStatusIsIdempotent", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		first, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusProcessing})
		require.NoError(t, err)
		second, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusProcessing})
		require.NoError(t, err)

		assert.Equal(t, models.StatusProcessing, second.Status)
		assert.True(t, second.ProcessedAt.After(*first.ProcessedAt))
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusClosed})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

		_, err = f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: "archived"})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})

	t.Run("Access", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateStatus(ctx, f.owner, d.ID, StatusInput{Status: models.StatusProcessing})
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
		_, err = f.svc.UpdateStatus(ctx, f.agentB, d.ID, StatusInput{Status: models.StatusProcessing})
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
		_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, StatusInput{Status: models.StatusProcessing})
		assert.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, f.admin, "missing", StatusInput{Status: models.StatusProcessing})
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("AssignAgent", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		agentA, agentB, owner, missing := f.agentA.ID, f.agentB.ID, f.owner.ID, "missing"

		_, err := f.svc.UpdateStatus(ctx, f.admin, d.ID, StatusInput{Status: models.StatusProcessing, AgentID: &agentB})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "agent of another station")
		_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, StatusInput{Status: models.StatusProcessing, AgentID: &owner})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "not an agent")
		_, err = f.svc.UpdateStatus(ctx, f.admin, d.ID, StatusInput{Status: models.StatusProcessing, AgentID: &missing})
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

		updated, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusProcessing, AgentID: &agentA})
		require.NoError(t, err)
		require.NotNil(t, updated.AgentID)
		assert.Equal(t, agentA, *updated.AgentID)
		require.NotNil(t, updated.Agent)
		assert.Equal(t, "agent-a@example.com", updated.Agent.Email)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerWhilePending", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		require.NoError(t, f.svc.Delete(ctx, f.owner, d.ID))
		_, err := f.svc.Get(ctx, f.owner, d.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
		assert.Contains(t, f.notifier.events, "deleted:"+d.ID)
	})

	t.Run("OwnerAfterProcessing", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)
		for _, st := range []models.Status{models.StatusProcessing, models.StatusProcessed} {
			_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: st})
			require.NoError(t, err)
		}

		err := f.svc.Delete(ctx, f.owner, d.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

		require.NoError(t, f.svc.Delete(ctx, f.admin, d.ID), "admins delete in any status")
	})

	t.Run("OthersRefused", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		assert.True(t, apperrors.Is(f.svc.Delete(ctx, f.other, d.ID), apperrors.ErrForbidden))
		assert.True(t, apperrors.Is(f.svc.Delete(ctx, f.agentA, d.ID), apperrors.ErrForbidden))
		assert.True(t, apperrors.Is(f.svc.Delete(ctx, f.admin, "missing"), apperrors.ErrNotFound))
	})
}

func TestUpdateContent(t *testing.T) {
	ctx := context.Background()
	str := func(s string) *string { return &s }

	t.Run("OwnerWhilePending", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)
		photos := []string{}

		updated, err := f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{
			Location: str("Bus station"),
			Photos:   &photos,
		})
		require.NoError(t, err)
		assert.Equal(t, "Bus station", updated.Location)
		assert.Equal(t, d.Description, updated.Description, "absent fields are unchanged")
		assert.Empty(t, updated.Photos)
	})

	t.Run("OwnerAfterPending", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)
		_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusProcessing})
		require.NoError(t, err)

		_, err = f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{Location: str("Elsewhere")})
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})

	t.Run("OwnerCannotSetNotes", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{Notes: str("internal")})
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})

	t.Run("StaffNotes", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		updated, err := f.svc.UpdateContent(ctx, f.agentA, d.ID, Patch{Notes: str("called the owner")})
		require.NoError(t, err)
		assert.Equal(t, "called the owner", updated.Notes)

		_, err = f.svc.UpdateContent(ctx, f.agentB, d.ID, Patch{Notes: str("x")})
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})

	t.Run("RequiredFieldsStayRequired", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{Description: str("")})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	})

	t.Run("DetailsMustMatchKind", func(t *testing.T) {
		f := newFixture(t)
		d := f.create(t)

		_, err := f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{Details: validPerson()})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

		updated, err := f.svc.UpdateContent(ctx, f.owner, d.ID, Patch{Details: models.ObjectDetails{ObjectName: "Wallet"}})
		require.NoError(t, err)
		obj, _ := updated.ObjectDetails()
		assert.Equal(t, "Wallet", obj.ObjectName)
	})
}

func TestIssueReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.create(t)

	_, err := f.svc.Receipt(ctx, f.owner, d.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound), "no receipt before issuing")

	_, err = f.svc.IssueReceipt(ctx, f.owner, d.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	issued, err := f.svc.IssueReceipt(ctx, f.agentA, d.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^REC-20240301-[0-9A-F]{6}$`, issued.ReceiptNumber)
	assert.Equal(t, "http://localhost:5000/api/declarations/"+d.ID+"/receipt", issued.ReceiptURL)

	again, err := f.svc.IssueReceipt(ctx, f.admin, d.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.ReceiptNumber, again.ReceiptNumber)

	doc, err := f.svc.Receipt(ctx, f.owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.ReceiptNumber, doc.ReceiptNumber)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t)
	d := f.create(t)
	_, err := f.svc.UpdateStatus(ctx, f.agentA, d.ID, StatusInput{Status: models.StatusRejected, RejectReason: "spam"})
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, f.agentA, f.stationA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusRejected])

	_, err = f.svc.Stats(ctx, f.agentB, f.stationA)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}
