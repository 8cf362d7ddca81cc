package refund_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/frahmantamala/paygate/internal/refund"
	"github.com/frahmantamala/paygate/internal/refund/postgres"
)

var _ = Describe("Refund Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    *postgres.RefundRepository
		q       *recordingQueue
		service *refund.Service
	)

	seedPayment := func(id, status string, amount int64) {
		Expect(db.Create(&payment.Payment{
			ID:         id,
			OrderID:    "order_1",
			MerchantID: "merchant_1",
			Amount:     amount,
			Currency:   "INR",
			Method:     payment.MethodUPI,
			Status:     status,
		}).Error).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = newTestDB()
		repo = postgres.NewRefundRepository(db)
		q = &recordingQueue{}
		service = refund.NewService(repo, q, discardLogger)
		seedPayment("pay_success", payment.StatusSuccess, 10000)
	})

	expectCode := func(err error, code internal.ErrorCode, status int, description string) {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
		Expect(appErr.Code).To(Equal(code))
		Expect(appErr.StatusCode).To(Equal(status))
		if description != "" {
			Expect(appErr.Message).To(Equal(description))
		}
	}

	It("creates a pending refund and enqueues its settlement", func() {
		reason := "customer request"
		r, err := service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 4000, Reason: &reason})
		Expect(err).ToNot(HaveOccurred())
		Expect(r.ID).To(MatchRegexp(`^rfnd_[0-9a-f]{16}$`))
		Expect(r.Status).To(Equal(refund.StatusPending))

		jobs := q.Jobs()
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].Queue).To(Equal(queue.RefundSettlement))
		Expect(string(jobs[0].Payload)).To(MatchJSON(`{"refundId":"` + r.ID + `"}`))
	})

	It("never refunds more than the payment amount", func() {
		_, err := service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 6000})
		Expect(err).ToNot(HaveOccurred())

		_, err = service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 4001})
		expectCode(err, internal.ErrCodeBadRequest, 400, "Refund amount exceeds available amount")

		_, err = service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 4000})
		Expect(err).ToNot(HaveOccurred())

		_, err = service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 1})
		expectCode(err, internal.ErrCodeBadRequest, 400, "Refund amount exceeds available amount")
	})

	It("rejects refunds of unsettled payments", func() {
		seedPayment("pay_pending", payment.StatusPending, 10000)
		_, err := service.Create(ctx, "merchant_1", "pay_pending", refund.CreateRefundDTO{Amount: 100})
		expectCode(err, internal.ErrCodeBadRequest, 400, "Payment not refundable")
	})

	It("rejects non-positive amounts", func() {
		_, err := service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 0})
		expectCode(err, internal.ErrCodeBadRequest, 400, "")
	})

	It("hides payments of other merchants", func() {
		_, err := service.Create(ctx, "merchant_2", "pay_success", refund.CreateRefundDTO{Amount: 100})
		expectCode(err, internal.ErrCodeNotFound, 404, "Payment not found")

		_, err = service.Create(ctx, "merchant_1", "pay_missing", refund.CreateRefundDTO{Amount: 100})
		expectCode(err, internal.ErrCodeNotFound, 404, "Payment not found")
	})

	It("releases the refunded amount when settlement cannot be queued", func() {
		q.err = errors.New("redis down")
		_, err := service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 10000})
		expectCode(err, internal.ErrCodeQueueFull, 503, "")

		q.err = nil
		_, err = service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 10000})
		Expect(err).ToNot(HaveOccurred())
	})

	It("returns refunds only to their merchant", func() {
		r, err := service.Create(ctx, "merchant_1", "pay_success", refund.CreateRefundDTO{Amount: 100})
		Expect(err).ToNot(HaveOccurred())

		got, err := service.Get(ctx, "merchant_1", r.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Amount).To(Equal(int64(100)))

		_, err = service.Get(ctx, "merchant_2", r.ID)
		expectCode(err, internal.ErrCodeNotFound, 404, "Refund not found")
	})
})
