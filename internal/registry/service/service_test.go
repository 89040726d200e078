package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Guard,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dab/internal/guard"
	registrymetrics "dab/internal/registry/metrics"
	"dab/internal/registry/models"
	"dab/internal/registry/service/mocks"
	"dab/internal/registry/store"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	audit "dab/pkg/platform/audit"
)

const (
	alice id.Identity = "alice"
	bob   id.Identity = "bob"
	xtc   id.Identity = "aanaa-xaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaa"
)

func xtcDescriptor() *models.CanisterDescriptor {
	return &models.CanisterDescriptor{Name: "xtc", TargetID: xtc, Standard: "Dank"}
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// Mock-backed suite
// =============================================================================
// Verifies store error translation, audit emission and metrics without a
// real backend.

type ServiceMockSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	mockGuard *mocks.MockGuard
	mockAudit *mocks.MockAuditPublisher
	metrics   *registrymetrics.Metrics
	service   *Service
}

func TestServiceMockSuite(t *testing.T) {
	suite.Run(t, new(ServiceMockSuite))
}

func (s *ServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockGuard = mocks.NewMockGuard(s.ctrl)
	s.mockAudit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = registrymetrics.New(prometheus.NewRegistry())
	var err error
	s.service, err = New(s.mockGuard, s.mockStore,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.mockAudit),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func (s *ServiceMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceMockSuite) TestNew() {
	s.Run("nil guard returns error", func() {
		_, err := New(nil, s.mockStore)
		s.Require().Error(err)
		s.Contains(err.Error(), "guard is required")
	})

	s.Run("nil store returns error", func() {
		_, err := New(s.mockGuard, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "registry store is required")
	})

	s.Run("options are applied", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc, err := New(s.mockGuard, s.mockStore, WithLogger(logger), WithAuditPublisher(s.mockAudit))
		s.Require().NoError(err)
		s.Equal(logger, svc.logger)
		s.Equal(s.mockAudit, svc.auditPublisher)
	})
}

func (s *ServiceMockSuite) TestAdd() {
	ctx := context.Background()

	s.Run("denied caller emits security event and never touches the store", func() {
		s.mockGuard.EXPECT().IsController(bob).Return(false)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(string(audit.EventMutationDenied), event.Action)
				s.Equal(bob, event.Actor)
				s.Equal("xtc", event.Subject)
				return nil
			})

		err := s.service.Add(ctx, bob, xtcDescriptor())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(MsgNotAuthorized, err.Error())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.DeniedMutations))
	})

	s.Run("authorization is checked before validation", func() {
		s.mockGuard.EXPECT().IsController(bob).Return(false)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		long := &models.CanisterDescriptor{Name: strings.Repeat("a", 121)}
		err := s.service.Add(ctx, bob, long)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("store failure maps to internal", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

		err := s.service.Add(ctx, alice, xtcDescriptor())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("success emits canister_added and updates gauges", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().Save(gomock.Any(), xtcDescriptor()).Return(nil)
		s.mockStore.EXPECT().Count(gomock.Any()).Return(1, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(string(audit.EventCanisterAdded), event.Action)
				s.False(event.Timestamp.IsZero())
				return nil
			})

		s.Require().NoError(s.service.Add(ctx, alice, xtcDescriptor()))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Entries))
	})

	s.Run("audit failure does not fail the call", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		s.mockStore.EXPECT().Count(gomock.Any()).Return(1, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		s.NoError(s.service.Add(ctx, alice, xtcDescriptor()))
	})
}

func (s *ServiceMockSuite) TestRemove() {
	ctx := context.Background()

	s.Run("absent name maps store not found", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().Delete(gomock.Any(), "xtc").Return(store.ErrNotFound)

		err := s.service.Remove(ctx, alice, "xtc")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(MsgNoSuchEntry, err.Error())
	})

	s.Run("store failure maps to internal", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().Delete(gomock.Any(), "xtc").Return(errors.New("timeout"))

		err := s.service.Remove(ctx, alice, "xtc")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceMockSuite) TestEdit() {
	ctx := context.Background()

	s.Run("empty request is rejected before lookup", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)

		err := s.service.Edit(ctx, alice, "xtc", models.EditRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(MsgEditEmpty, err.Error())
	})

	s.Run("lookup failure maps to internal", func() {
		s.mockGuard.EXPECT().IsController(alice).Return(true)
		s.mockStore.EXPECT().FindByName(gomock.Any(), "xtc").Return(nil, errors.New("boom"))

		err := s.service.Edit(ctx, alice, "xtc", models.EditRequest{Standard: ptr("DIP721")})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceMockSuite) TestReads() {
	ctx := context.Background()

	s.Run("get does not consult the guard", func() {
		s.mockStore.EXPECT().FindByName(gomock.Any(), "xtc").Return(xtcDescriptor(), nil)

		d, err := s.service.Get(ctx, "xtc")
		s.Require().NoError(err)
		s.Equal(xtcDescriptor(), d)
	})

	s.Run("get all failure maps to internal", func() {
		s.mockStore.EXPECT().ListAll(gomock.Any()).Return(nil, errors.New("boom"))

		_, err := s.service.GetAll(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

// =============================================================================
// Behavior suite
// =============================================================================
// Runs against the real guard and in-memory store.

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	var err error
	s.service, err = New(guard.MustNew(alice), s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) count() int {
	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *ServiceSuite) TestName() {
	s.Equal("NFT Registry Canister", s.service.Name())
}

func (s *ServiceSuite) TestNonControllerMutationsLeaveMapUnchanged() {
	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))

	err := s.service.Add(s.ctx, bob, &models.CanisterDescriptor{Name: "other"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.Remove(s.ctx, bob, "xtc")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.Edit(s.ctx, bob, "xtc", models.EditRequest{Standard: ptr("DIP721")})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.Edit(s.ctx, bob, "missing", models.EditRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "authorization precedes validation and existence")

	all, err := s.service.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Equal([]*models.CanisterDescriptor{xtcDescriptor()}, all)
}

func (s *ServiceSuite) TestAddOverwrites() {
	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))
	replacement := &models.CanisterDescriptor{Name: "xtc", TargetID: "ryjl3-tyaaa-aaaaa-aaaba-cai", Standard: "EXT"}
	s.Require().NoError(s.service.Add(s.ctx, alice, replacement))

	s.Equal(1, s.count())
	got, err := s.service.Get(s.ctx, "xtc")
	s.Require().NoError(err)
	s.Equal(replacement, got)
}

func (s *ServiceSuite) TestAddDoesNotAliasCallerValue() {
	d := xtcDescriptor()
	s.Require().NoError(s.service.Add(s.ctx, alice, d))
	d.Standard = "mutated"

	got, err := s.service.Get(s.ctx, "xtc")
	s.Require().NoError(err)
	s.Equal("Dank", got.Standard)
}

func (s *ServiceSuite) TestAddNameLength() {
	s.Run("121 characters rejected", func() {
		err := s.service.Add(s.ctx, alice, &models.CanisterDescriptor{Name: strings.Repeat("n", 121)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("The name of this canister has exceeded the limitation of 120 characters.", err.Error())
		s.Equal(0, s.count())
	})

	s.Run("120 characters accepted", func() {
		s.NoError(s.service.Add(s.ctx, alice, &models.CanisterDescriptor{Name: strings.Repeat("n", 120)}))
	})

	s.Run("multibyte names count characters", func() {
		s.NoError(s.service.Add(s.ctx, alice, &models.CanisterDescriptor{Name: strings.Repeat("é", 120)}))
	})

	s.Run("empty name accepted", func() {
		s.NoError(s.service.Add(s.ctx, alice, &models.CanisterDescriptor{Name: ""}))
	})
}

func (s *ServiceSuite) TestRemoveIsIdempotentNotFound() {
	err := s.service.Remove(s.ctx, alice, "absent")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))
	s.Require().NoError(s.service.Remove(s.ctx, alice, "xtc"))
	err = s.service.Remove(s.ctx, alice, "xtc")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(0, s.count())
}

func (s *ServiceSuite) TestEdit() {
	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))

	s.Run("neither field is a validation error", func() {
		err := s.service.Edit(s.ctx, alice, "xtc", models.EditRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("absent name is not found", func() {
		err := s.service.Edit(s.ctx, alice, "absent", models.EditRequest{Standard: ptr("EXT")})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(MsgEditNotFound, err.Error())
	})

	s.Run("standard only", func() {
		s.Require().NoError(s.service.Edit(s.ctx, alice, "xtc", models.EditRequest{Standard: ptr("DIP20")}))
		got, err := s.service.Get(s.ctx, "xtc")
		s.Require().NoError(err)
		s.Equal(xtc, got.TargetID)
		s.Equal("DIP20", got.Standard)
	})

	s.Run("target only", func() {
		s.Require().NoError(s.service.Edit(s.ctx, alice, "xtc", models.EditRequest{TargetID: ptr(id.Identity("new-target"))}))
		got, err := s.service.Get(s.ctx, "xtc")
		s.Require().NoError(err)
		s.Equal(id.Identity("new-target"), got.TargetID)
		s.Equal("DIP20", got.Standard)
	})

	s.Run("both fields applies only the target", func() {
		s.Require().NoError(s.service.Edit(s.ctx, alice, "xtc", models.EditRequest{
			TargetID: ptr(id.Identity("winner")),
			Standard: ptr("ignored"),
		}))
		got, err := s.service.Get(s.ctx, "xtc")
		s.Require().NoError(err)
		s.Equal(id.Identity("winner"), got.TargetID)
		s.Equal("DIP20", got.Standard)
	})
}

func (s *ServiceSuite) TestXTCScenario() {
	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))

	got, err := s.service.Get(s.ctx, "xtc")
	s.Require().NoError(err)
	s.Equal(xtcDescriptor(), got)

	_, err = s.service.Get(s.ctx, "dab")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.Add(s.ctx, bob, xtcDescriptor())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.Remove(s.ctx, alice, "xtc"))
	err = s.service.Remove(s.ctx, alice, "xtc")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetAllSortedByName() {
	for _, name := range []string{"xtc", "dab", "wicp"} {
		s.Require().NoError(s.service.Add(s.ctx, alice, &models.CanisterDescriptor{Name: name}))
	}
	all, err := s.service.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("dab", all[0].Name)
	s.Equal("wicp", all[1].Name)
	s.Equal("xtc", all[2].Name)
}

func (s *ServiceSuite) TestConcurrentEditsSerialize() {
	s.Require().NoError(s.service.Add(s.ctx, alice, xtcDescriptor()))

	done := make(chan struct{})
	for i := range 50 {
		go func() {
			defer func() { done <- struct{}{} }()
			if i%2 == 0 {
				_ = s.service.Edit(s.ctx, alice, "xtc", models.EditRequest{Standard: ptr("EXT")})
				return
			}
			_, _ = s.service.Get(s.ctx, "xtc")
		}()
	}
	for range 50 {
		<-done
	}
	got, err := s.service.Get(s.ctx, "xtc")
	s.Require().NoError(err)
	s.Equal("EXT", got.Standard)
}
