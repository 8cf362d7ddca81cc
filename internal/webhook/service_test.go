package webhook_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/webhook"
	"github.com/frahmantamala/paygate/internal/webhook/postgres"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		repo    *postgres.WebhookRepository
		q       *recordingQueue
		service *webhook.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewWebhookRepository(newTestDB())
		q = &recordingQueue{}
		service = webhook.NewService(repo, q, discardLogger)
	})

	seed := func(merchantID, status string, attempts int) *webhook.Log {
		row := &webhook.Log{
			ID:         uuid.NewString(),
			MerchantID: merchantID,
			Event:      "payment.success",
			Payload:    datatypes.JSON(`{"payment":{"id":"pay_1"}}`),
			Status:     status,
			Attempts:   attempts,
		}
		Expect(repo.Create(ctx, row)).To(Succeed())
		return row
	}

	expectNotFound := func(err error) {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeNotFound))
	}

	Describe("List", func() {
		It("pages through the merchant's logs only", func() {
			for i := 0; i < 3; i++ {
				seed("merchant_1", webhook.StatusSuccess, 1)
			}
			seed("merchant_2", webhook.StatusSuccess, 1)

			result, err := service.List(ctx, "merchant_1", 2, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Total).To(Equal(int64(3)))
			Expect(result.Data).To(HaveLen(2))
			Expect(result.Limit).To(Equal(2))

			result, err = service.List(ctx, "merchant_1", 2, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Data).To(HaveLen(1))
			Expect(result.Offset).To(Equal(2))
		})

		It("clamps the limit", func() {
			result, err := service.List(ctx, "merchant_1", 500, -3)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Limit).To(Equal(webhook.MaxListLimit))
			Expect(result.Offset).To(BeZero())
			Expect(result.Data).ToNot(BeNil())

			result, err = service.List(ctx, "merchant_1", 0, 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Limit).To(Equal(webhook.DefaultListLimit))
		})
	})

	Describe("Get", func() {
		It("hides other merchants' logs", func() {
			row := seed("merchant_2", webhook.StatusSuccess, 1)
			_, err := service.Get(ctx, "merchant_1", row.ID)
			expectNotFound(err)

			got, err := service.Get(ctx, "merchant_2", row.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(got.ID).To(Equal(row.ID))
		})
	})

	Describe("Retry", func() {
		It("resets a failed log and enqueues it", func() {
			row := seed("merchant_1", webhook.StatusFailed, webhook.MaxAttempts)

			resp, err := service.Retry(ctx, "merchant_1", row.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.ID).To(Equal(row.ID))
			Expect(resp.Status).To(Equal(webhook.StatusPending))

			stored, err := repo.GetByID(ctx, row.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(webhook.StatusPending))
			Expect(stored.Attempts).To(BeZero())
			Expect(stored.NextRetryAt).ToNot(BeNil())
			Expect(*stored.NextRetryAt).To(BeTemporally("~", time.Now(), 5*time.Second))

			jobs := q.Jobs()
			Expect(jobs).To(HaveLen(1))
			var dj webhook.DeliveryJob
			Expect(jobs[0].Decode(&dj)).To(Succeed())
			Expect(dj.WebhookLogID).To(Equal(row.ID))
		})

		It("returns not found for unknown or foreign logs", func() {
			row := seed("merchant_2", webhook.StatusFailed, 5)

			_, err := service.Retry(ctx, "merchant_1", row.ID)
			expectNotFound(err)
			_, err = service.Retry(ctx, "merchant_1", "missing")
			expectNotFound(err)
			Expect(q.Jobs()).To(BeEmpty())
		})
	})
})
