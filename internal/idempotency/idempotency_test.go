package idempotency_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/paygate/internal/idempotency"
	"github.com/frahmantamala/paygate/internal/idempotency/postgres"
)

var _ = Describe("Cache", func() {
	var (
		ctx   context.Context
		db    *gorm.DB
		now   time.Time
		cache *idempotency.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).ToNot(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).ToNot(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&idempotency.Key{})).To(Succeed())

		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cache = idempotency.NewCache(postgres.NewIdempotencyRepository(db), slog.New(slog.NewTextHandler(io.Discard, nil))).
			WithClock(func() time.Time { return now })
	})

	It("misses for an unknown key", func() {
		_, hit, err := cache.Lookup(ctx, "key-1", "merchant_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeFalse())
	})

	It("replays the stored response byte for byte", func() {
		first := []byte(`{"id":"pay_aaaaaaaaaaaaaaaa","status":"pending"}`)
		stored, err := cache.Store(ctx, "key-1", "merchant_1", first)
		Expect(err).ToNot(HaveOccurred())
		Expect(stored).To(MatchJSON(first))

		now = now.Add(23 * time.Hour)
		cached, hit, err := cache.Lookup(ctx, "key-1", "merchant_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeTrue())
		Expect(cached).To(MatchJSON(first))
	})

	It("scopes keys to the merchant", func() {
		_, err := cache.Store(ctx, "key-1", "merchant_1", []byte(`{"id":"pay_1"}`))
		Expect(err).ToNot(HaveOccurred())

		_, hit, err := cache.Lookup(ctx, "key-1", "merchant_2")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeFalse())
	})

	It("keeps the first response when the key is stored twice", func() {
		_, err := cache.Store(ctx, "key-1", "merchant_1", []byte(`{"id":"pay_1"}`))
		Expect(err).ToNot(HaveOccurred())

		winner, err := cache.Store(ctx, "key-1", "merchant_1", []byte(`{"id":"pay_2"}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(winner).To(MatchJSON(`{"id":"pay_1"}`))

		var count int64
		Expect(db.Model(&idempotency.Key{}).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(1)))
	})

	It("expires entries after 24 hours and accepts a new response", func() {
		_, err := cache.Store(ctx, "key-1", "merchant_1", []byte(`{"id":"pay_1"}`))
		Expect(err).ToNot(HaveOccurred())

		now = now.Add(idempotency.TTL)
		_, hit, err := cache.Lookup(ctx, "key-1", "merchant_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeFalse())

		stored, err := cache.Store(ctx, "key-1", "merchant_1", []byte(`{"id":"pay_2"}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(stored).To(MatchJSON(`{"id":"pay_2"}`))

		cached, hit, err := cache.Lookup(ctx, "key-1", "merchant_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeTrue())
		Expect(cached).To(MatchJSON(`{"id":"pay_2"}`))
	})

	It("bypasses the cache without a key", func() {
		resp := []byte(`{"id":"pay_1"}`)
		stored, err := cache.Store(ctx, "", "merchant_1", resp)
		Expect(err).ToNot(HaveOccurred())
		Expect(stored).To(Equal(resp))

		_, hit, err := cache.Lookup(ctx, "", "merchant_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(hit).To(BeFalse())
	})
})
