package refund_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/paygate/internal/core/events"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/frahmantamala/paygate/internal/refund"
	"github.com/frahmantamala/paygate/internal/refund/postgres"
)

var _ = Describe("Refund Settler", func() {
	var (
		ctx       context.Context
		repo      *postgres.RefundRepository
		bus       *events.EventBus
		published []*events.MerchantEvent
		refundID  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		db := newTestDB()
		repo = postgres.NewRefundRepository(db)
		bus = events.NewEventBus(discardLogger)
		published = nil
		bus.Subscribe(events.EventTypeRefundProcessed, func(_ context.Context, e events.Event) error {
			published = append(published, e.(*events.MerchantEvent))
			return nil
		})

		Expect(db.Create(&payment.Payment{
			ID: "pay_1", OrderID: "order_1", MerchantID: "merchant_1",
			Amount: 5000, Currency: "INR", Method: payment.MethodCard, Status: payment.StatusSuccess,
		}).Error).To(Succeed())

		r := &refund.Refund{ID: "rfnd_0123456789abcdef", PaymentID: "pay_1", MerchantID: "merchant_1", Amount: 500, Status: refund.StatusPending}
		Expect(repo.CreateWithinLimit(ctx, r)).To(Succeed())
		refundID = r.ID
	})

	It("marks the refund processed and publishes refund.processed", func() {
		settler := refund.NewSettler(repo, instantDelay{}, bus, discardLogger)

		r, err := settler.Settle(ctx, refundID)
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Status).To(Equal(refund.StatusProcessed))
		Expect(r.ProcessedAt).ToNot(BeNil())

		Expect(published).To(HaveLen(1))
		Expect(published[0].MerchantID).To(Equal("merchant_1"))
		snapshot := published[0].Data["refund"].(*refund.Refund)
		Expect(snapshot.ID).To(Equal(refundID))
		Expect(snapshot.Status).To(Equal(refund.StatusProcessed))
	})

	It("ignores duplicate jobs", func() {
		settler := refund.NewSettler(repo, instantDelay{}, bus, discardLogger)
		_, err := settler.Settle(ctx, refundID)
		Expect(err).ToNot(HaveOccurred())
		_, err = settler.Settle(ctx, refundID)
		Expect(err).ToNot(HaveOccurred())
		Expect(published).To(HaveLen(1))
	})

	It("dead-letters unknown refunds", func() {
		settler := refund.NewSettler(repo, instantDelay{}, bus, discardLogger)
		_, err := settler.Settle(ctx, "rfnd_missing")
		Expect(queue.IsPermanent(err)).To(BeTrue())
		Expect(errors.Is(err, refund.ErrRefundNotFound)).To(BeTrue())
	})

	It("stays pending when shut down mid-delay", func() {
		settler := refund.NewSettler(repo, instantDelay{d: time.Minute}, bus, discardLogger)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := settler.Settle(cctx, refundID)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())

		r, err := repo.GetByID(ctx, refundID)
		Expect(err).ToNot(HaveOccurred())
		Expect(r.Status).To(Equal(refund.StatusPending))
	})

	It("republishes refund.processed when a retried job finds the refund processed", func() {
		failures := 1
		bus.Subscribe(events.EventTypeRefundProcessed, func(context.Context, events.Event) error {
			if failures > 0 {
				failures--
				return errors.New("webhook store down")
			}
			return nil
		})
		settler := refund.NewSettler(repo, instantDelay{}, bus, discardLogger)
		job, err := queue.NewJob(queue.RefundSettlement, refund.SettlementJob{RefundID: refundID})
		Expect(err).ToNot(HaveOccurred())

		err = settler.Handle(ctx, job)
		Expect(err).To(HaveOccurred())
		Expect(queue.IsPermanent(err)).To(BeFalse())

		job.Attempts = 1
		Expect(settler.Handle(ctx, job)).To(Succeed())
		Expect(published).To(HaveLen(2))
		Expect(published[1].Key).To(Equal(events.SettlementKey(events.EventTypeRefundProcessed, refundID)))

		// a plain duplicate still announces nothing
		_, err = settler.Settle(ctx, refundID)
		Expect(err).ToNot(HaveOccurred())
		Expect(published).To(HaveLen(2))
	})

	It("handles queue jobs", func() {
		job, err := queue.NewJob(queue.RefundSettlement, refund.SettlementJob{RefundID: refundID})
		Expect(err).ToNot(HaveOccurred())
		Expect(refund.NewSettler(repo, instantDelay{}, bus, discardLogger).Handle(ctx, job)).To(Succeed())
		Expect(published).To(HaveLen(1))
	})
})
