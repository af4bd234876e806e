package users_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/logger"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/users"
	testutils "github.com/papercomputeco/swarm/pkg/utils/test"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		db      *storage.DB
		tokens  *auth.Tokens
		service *users.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, _, err = testutils.NewSQLiteDB(ctx)
		Expect(err).NotTo(HaveOccurred())

		tokens, err = auth.NewTokens("s3cret", time.Hour, nil)
		Expect(err).NotTo(HaveOccurred())
		service = users.NewService(db, users.Config{Tokens: tokens, Logger: logger.Nop()})
	})

	AfterEach(func() {
		db.Close()
	})

	It("creates the default user once", func() {
		id, err := service.EnsureDefaultUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(users.DefaultUserID))

		again, err := service.EnsureDefaultUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(users.DefaultUserID))
	})

	It("registers and logs in", func() {
		session, err := service.Register(ctx, "ada@example.com", "pw", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.UserID).To(HavePrefix("u_"))

		sub, err := tokens.Verify(session.Token)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub).To(Equal(session.UserID))

		login, err := service.Login(ctx, "ada@example.com", "pw")
		Expect(err).NotTo(HaveOccurred())
		Expect(login.UserID).To(Equal(session.UserID))
		Expect(login.Name).To(Equal("ada"))
	})

	It("rejects duplicate emails", func() {
		_, err := service.Register(ctx, "ada@example.com", "pw", "Ada")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.Register(ctx, "ada@example.com", "other", "Ada")
		Expect(err).To(MatchError(users.ErrEmailTaken))
	})

	It("requires credentials", func() {
		_, err := service.Register(ctx, "", "pw", "")
		Expect(err).To(MatchError(users.ErrMissingCredentials))
		_, err = service.Login(ctx, "ada@example.com", "")
		Expect(err).To(MatchError(users.ErrMissingCredentials))
	})

	It("rejects bad credentials as unauthenticated", func() {
		_, err := service.Register(ctx, "ada@example.com", "pw", "")
		Expect(err).NotTo(HaveOccurred())

		_, err = service.Login(ctx, "ada@example.com", "nope")
		Expect(err).To(MatchError(auth.ErrUnauthenticated))
		_, err = service.Login(ctx, "bob@example.com", "pw")
		Expect(err).To(MatchError(auth.ErrUnauthenticated))
	})

	It("keeps the existing first user as the default", func() {
		session, err := service.Register(ctx, "ada@example.com", "pw", "")
		Expect(err).NotTo(HaveOccurred())

		id, err := service.EnsureDefaultUser(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(session.UserID))
	})
})
