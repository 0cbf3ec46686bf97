// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/extmgr/internal/extension"
	"github.com/holomush/extmgr/internal/store"
	"github.com/holomush/extmgr/pkg/errutil"
)

var _ = Describe("Postgres install store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		pool      *pgxpool.Pool
		repo      *store.Postgres
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("extmgr_test"),
			postgres.WithUsername("extmgr"),
			postgres.WithPassword("extmgr"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.OpenPostgres(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		repo = store.NewPostgres(pool)
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("reports an unmigrated database", func() {
		_, err := repo.Get(ctx, "foo")
		Expect(errutil.Code(err)).To(Equal(store.CodeStoreNotMigrated))
	})

	It("migrates up", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
	})

	It("round-trips install records", func() {
		ext := &extension.Installable{
			ID:           "foo",
			Name:         "Foo",
			Dependencies: []string{},
			InstalledRelease: &extension.Release{
				Version:    "v1.0.0",
				Archive:    "https://x.test/foo.zip",
				SourceRepo: "acme/foo",
			},
		}
		Expect(repo.Upsert(ctx, ext)).To(Succeed())

		ext.InstalledRelease.Version = "v1.1.0"
		Expect(repo.Upsert(ctx, ext)).To(Succeed())

		got, err := repo.Get(ctx, "foo")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(ext))

		all, err := repo.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))

		Expect(repo.Delete(ctx, "foo")).To(Succeed())
		_, err = repo.Get(ctx, "foo")
		Expect(errors.Is(err, extension.ErrNotFound)).To(BeTrue())
	})

	It("migrates down", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = migrator.Close() }()

		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(0)))
	})
})
