// Copyright 2025 James Ross
package access

import (
	"context"
	"path/filepath"
	"time"

	"github.com/adaspeas/deliveryd/internal/messenger"
	"github.com/adaspeas/deliveryd/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeMessenger struct {
	sent []struct {
		chatID int64
		text   string
	}
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, struct {
		chatID int64
		text   string
	}{chatID, text})
	return nil
}

func (f *fakeMessenger) SendFile(ctx context.Context, chatID int64, localPath, caption string) (messenger.Handle, error) {
	return messenger.Handle{}, nil
}

func (f *fakeMessenger) SendByHandle(ctx context.Context, chatID int64, handle messenger.Handle, caption string) (messenger.Handle, error) {
	return messenger.Handle{}, nil
}

var _ = Describe("Access control state machine", func() {
	var (
		s    *store.Store
		ctrl *Controller
		fm   *fakeMessenger
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error
		s, err = store.Open(filepath.Join(GinkgoT().TempDir(), "access.sqlite"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)
		fm = &fakeMessenger{}
		ctrl = New(s, fm, true, 30, 24*time.Hour, []int64{999}, nil)
		ctx = context.Background()
	})

	It("moves a guest through the full lifecycle", func() {
		_, err := s.UpsertUser(ctx, 1)
		Expect(err).NotTo(HaveOccurred())

		err = ctrl.EnsureActive(ctx, 1)
		Expect(err).To(HaveOccurred())
		var denied *ErrDenied
		Expect(err).To(BeAssignableToTypeOf(denied))

		Expect(ctrl.RequestAccess(ctx, 1)).To(Succeed())
		u, err := s.FetchUser(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(u.Status).To(Equal(store.StatusPending))

		Expect(ctrl.Activate(ctx, u.ID, 10)).To(Succeed())
		Expect(ctrl.EnsureActive(ctx, 1)).To(Succeed())
	})

	It("always allows admins regardless of status", func() {
		_, err := s.UpsertUser(ctx, 999)
		Expect(err).NotTo(HaveOccurred())
		ctrl2 := New(s, fm, true, 30, 24*time.Hour, []int64{999}, nil)
		Expect(ctrl2.EnsureActive(ctx, 999)).To(Succeed())
	})

	It("warns once per grant and fans out to admins", func() {
		id, err := s.UpsertUser(ctx, 5)
		Expect(err).NotTo(HaveOccurred())
		soon := time.Now().UTC().Add(10 * time.Minute)
		Expect(s.SetUserStatus(ctx, id, store.StatusActive, &soon)).To(Succeed())

		Expect(ctrl.SweepOnce(ctx)).To(Succeed())
		Expect(fm.sent).To(HaveLen(2)) // user + one admin

		fm.sent = nil
		Expect(ctrl.SweepOnce(ctx)).To(Succeed())
		Expect(fm.sent).To(BeEmpty())
	})

	It("expires users past their expiry and clears warned_at", func() {
		id, err := s.UpsertUser(ctx, 6)
		Expect(err).NotTo(HaveOccurred())
		past := time.Now().UTC().Add(-time.Minute)
		Expect(s.SetUserStatus(ctx, id, store.StatusActive, &past)).To(Succeed())

		Expect(ctrl.SweepOnce(ctx)).To(Succeed())
		u, err := s.FetchUserByID(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(u.Status).To(Equal(store.StatusExpired))
		Expect(u.WarnedAt.Valid).To(BeFalse())
	})
})
