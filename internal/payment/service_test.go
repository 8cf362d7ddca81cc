package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/idempotency"
	idempotencyRepo "github.com/frahmantamala/paygate/internal/idempotency/postgres"
	"github.com/frahmantamala/paygate/internal/order"
	orderRepo "github.com/frahmantamala/paygate/internal/order/postgres"
	"github.com/frahmantamala/paygate/internal/payment"
	"github.com/frahmantamala/paygate/internal/payment/postgres"
	"github.com/frahmantamala/paygate/internal/queue"
)

var _ = Describe("Payment Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		repo     *postgres.PaymentRepository
		orders   *orderRepo.OrderRepository
		q        *recordingQueue
		now      time.Time
		service  *payment.Service
		orderID  string
		nextYear int
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newTestDB()
		repo = postgres.NewPaymentRepository(db)
		orders = orderRepo.NewOrderRepository(db)
		q = &recordingQueue{}
		now = time.Now().UTC()
		nextYear = now.Year() + 1

		cache := idempotency.NewCache(idempotencyRepo.NewIdempotencyRepository(db), discardLogger).
			WithClock(func() time.Time { return now })

		sqlDB, err := db.DB()
		Expect(err).ToNot(HaveOccurred())
		stats := postgres.NewStatsRepository(sqlx.NewDb(sqlDB, "sqlite3"))

		service = payment.NewService(repo, orders, cache, q, stats, discardLogger)

		orderID = "order_AAAAAAAAAAAAAAAA"
		Expect(orders.Create(ctx, &order.Order{
			ID:         orderID,
			MerchantID: "merchant_1",
			Amount:     50000,
			Currency:   "INR",
			Status:     "created",
		})).To(Succeed())
	})

	cardRequest := func() payment.CreatePaymentDTO {
		return payment.CreatePaymentDTO{
			OrderID: orderID,
			Method:  payment.MethodCard,
			Card: &payment.CardDTO{
				Number:      "4111 1111 1111 1111",
				ExpiryMonth: 12,
				ExpiryYear:  payment.FlexibleInt(nextYear),
				CVV:         "123",
				HolderName:  "Test User",
			},
		}
	}

	decode := func(body []byte) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal(body, &out)).To(Succeed())
		return out
	}

	expectCode := func(err error, code internal.ErrorCode, status int) {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
		Expect(appErr.Code).To(Equal(code))
		Expect(appErr.StatusCode).To(Equal(status))
	}

	countPayments := func() int64 {
		var n int64
		Expect(db.Model(&payment.Payment{}).Count(&n).Error).To(Succeed())
		return n
	}

	Describe("Create", func() {
		It("stores a pending card payment and enqueues its settlement", func() {
			result, err := service.Create(ctx, "merchant_1", "", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Replayed).To(BeFalse())

			body := decode(result.Body)
			Expect(body["id"]).To(MatchRegexp(`^pay_[A-Za-z0-9]{16}$`))
			Expect(body["status"]).To(Equal("pending"))
			Expect(body["amount"]).To(BeNumerically("==", 50000))
			Expect(body["card_network"]).To(Equal("visa"))
			Expect(body["card_last4"]).To(Equal("1111"))
			Expect(string(result.Body)).ToNot(ContainSubstring("4111111111111111"))

			jobs := q.Jobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Queue).To(Equal(queue.PaymentSettlement))
			var sj payment.SettlementJob
			Expect(jobs[0].Decode(&sj)).To(Succeed())
			Expect(sj.PaymentID).To(Equal(body["id"]))
		})

		It("accepts a valid VPA", func() {
			result, err := service.Create(ctx, "merchant_1", "", payment.CreatePaymentDTO{
				OrderID: orderID,
				Method:  payment.MethodUPI,
				VPA:     "user.name@okbank",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(decode(result.Body)["vpa"]).To(Equal("user.name@okbank"))
		})

		DescribeTable("rejects invalid method details",
			func(mutate func(*payment.CreatePaymentDTO), code internal.ErrorCode) {
				dto := cardRequest()
				mutate(&dto)
				_, err := service.Create(ctx, "merchant_1", "", dto)
				expectCode(err, code, 400)
				Expect(countPayments()).To(BeZero())
				Expect(q.Jobs()).To(BeEmpty())
			},
			Entry("malformed VPA", func(d *payment.CreatePaymentDTO) {
				d.Method = payment.MethodUPI
				d.VPA = "not a vpa"
			}, internal.ErrCodeInvalidVPA),
			Entry("Luhn failure", func(d *payment.CreatePaymentDTO) {
				d.Card.Number = "4111111111111112"
			}, internal.ErrCodeInvalidCard),
			Entry("missing card", func(d *payment.CreatePaymentDTO) {
				d.Card = nil
			}, internal.ErrCodeInvalidCard),
			Entry("expired card", func(d *payment.CreatePaymentDTO) {
				d.Card.ExpiryYear = 2020
			}, internal.ErrCodeExpiredCard),
			Entry("unknown method", func(d *payment.CreatePaymentDTO) {
				d.Method = "netbanking"
			}, internal.ErrCodeBadRequest),
		)

		It("does not reveal orders of other merchants", func() {
			_, err := service.Create(ctx, "merchant_2", "", cardRequest())
			expectCode(err, internal.ErrCodeNotFound, 404)
		})

		It("replays the first response for a repeated idempotency key", func() {
			first, err := service.Create(ctx, "merchant_1", "idem-1", cardRequest())
			Expect(err).ToNot(HaveOccurred())

			second, err := service.Create(ctx, "merchant_1", "idem-1", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Replayed).To(BeTrue())
			Expect(second.Body).To(MatchJSON(first.Body))
			Expect(countPayments()).To(Equal(int64(1)))
			Expect(q.Jobs()).To(HaveLen(1))
		})

		It("creates a new payment once the key has expired", func() {
			first, err := service.Create(ctx, "merchant_1", "idem-1", cardRequest())
			Expect(err).ToNot(HaveOccurred())

			now = now.Add(idempotency.TTL + time.Second)
			second, err := service.Create(ctx, "merchant_1", "idem-1", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Replayed).To(BeFalse())
			Expect(decode(second.Body)["id"]).ToNot(Equal(decode(first.Body)["id"]))
			Expect(countPayments()).To(Equal(int64(2)))
		})

		It("creates a payment per request without a key", func() {
			_, err := service.Create(ctx, "merchant_1", "", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			_, err = service.Create(ctx, "merchant_1", "", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(countPayments()).To(Equal(int64(2)))
		})

		It("fails the payment when settlement cannot be queued", func() {
			q.err = errors.New("redis down")
			_, err := service.Create(ctx, "merchant_1", "", cardRequest())
			expectCode(err, internal.ErrCodeQueueFull, 503)

			payments, err := repo.ListByMerchant(ctx, "merchant_1")
			Expect(err).ToNot(HaveOccurred())
			Expect(payments).To(HaveLen(1))
			Expect(payments[0].Status).To(Equal(payment.StatusFailed))
		})
	})

	Describe("Capture", func() {
		var paymentID string

		BeforeEach(func() {
			result, err := service.Create(ctx, "merchant_1", "", cardRequest())
			Expect(err).ToNot(HaveOccurred())
			paymentID = decode(result.Body)["id"].(string)
		})

		settle := func() {
			_, err := repo.Settle(ctx, paymentID, payment.Settlement{Status: payment.StatusSuccess})
			Expect(err).ToNot(HaveOccurred())
		}

		It("refuses pending payments", func() {
			_, err := service.Capture(ctx, "merchant_1", paymentID, payment.CaptureDTO{})
			expectCode(err, internal.ErrCodeBadRequest, 400)
		})

		It("captures a successful payment once", func() {
			settle()
			p, err := service.Capture(ctx, "merchant_1", paymentID, payment.CaptureDTO{})
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Captured).To(BeTrue())

			_, err = service.Capture(ctx, "merchant_1", paymentID, payment.CaptureDTO{})
			expectCode(err, internal.ErrCodeBadRequest, 400)
		})

		It("requires a matching amount when one is given", func() {
			settle()
			wrong := int64(1)
			_, err := service.Capture(ctx, "merchant_1", paymentID, payment.CaptureDTO{Amount: &wrong})
			expectCode(err, internal.ErrCodeBadRequest, 400)

			right := int64(50000)
			p, err := service.Capture(ctx, "merchant_1", paymentID, payment.CaptureDTO{Amount: &right})
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Captured).To(BeTrue())
		})

		It("hides payments of other merchants", func() {
			_, err := service.Capture(ctx, "merchant_2", paymentID, payment.CaptureDTO{})
			expectCode(err, internal.ErrCodeNotFound, 404)
		})
	})

	Describe("List and Stats", func() {
		It("summarizes the merchant's payments", func() {
			var ids []string
			for i := 0; i < 4; i++ {
				result, err := service.Create(ctx, "merchant_1", "", cardRequest())
				Expect(err).ToNot(HaveOccurred())
				ids = append(ids, decode(result.Body)["id"].(string))
			}
			for _, id := range ids[:3] {
				_, err := repo.Settle(ctx, id, payment.Settlement{Status: payment.StatusSuccess})
				Expect(err).ToNot(HaveOccurred())
			}

			payments, err := service.List(ctx, "merchant_1")
			Expect(err).ToNot(HaveOccurred())
			Expect(payments).To(HaveLen(4))

			stats, err := service.Stats(ctx, "merchant_1")
			Expect(err).ToNot(HaveOccurred())
			Expect(stats.TotalTransactions).To(Equal(int64(4)))
			Expect(stats.TotalAmount).To(Equal(int64(150000)))
			Expect(stats.SuccessRate).To(Equal(75.0))

			empty, err := service.Stats(ctx, "merchant_2")
			Expect(err).ToNot(HaveOccurred())
			Expect(empty.TotalTransactions).To(BeZero())
			Expect(empty.SuccessRate).To(BeZero())
		})
	})
})
