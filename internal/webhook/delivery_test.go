package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/datatypes"

	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/frahmantamala/paygate/internal/webhook"
	"github.com/frahmantamala/paygate/internal/webhook/postgres"
)

type capturedRequest struct {
	signature   string
	contentType string
	body        []byte
}

// flakyRepository fails the next RecordAttempt calls while failRecords > 0.
type flakyRepository struct {
	*postgres.WebhookRepository
	failRecords atomic.Int32
}

var errTransientDB = errors.New("transient db error")

func (f *flakyRepository) RecordAttempt(ctx context.Context, id string, expectedAttempts int, result webhook.AttemptResult) error {
	if f.failRecords.Add(-1) >= 0 {
		return errTransientDB
	}
	return f.WebhookRepository.RecordAttempt(ctx, id, expectedAttempts, result)
}

var _ = Describe("Deliverer", func() {
	const (
		merchantID = "merchant_1"
		secret     = "whsec_test"
		payload    = `{"payment":{"id":"pay_1","status":"success"}}`
	)

	var (
		ctx       context.Context
		repo      *postgres.WebhookRepository
		clk       *testClock
		server    *httptest.Server
		status    atomic.Int32
		respBody  atomic.Value
		received  chan capturedRequest
		hits      atomic.Int32
		merchants fakeMerchants
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewWebhookRepository(newTestDB())
		clk = newTestClock()
		status.Store(http.StatusOK)
		respBody.Store("ok")
		hits.Store(0)
		received = make(chan capturedRequest, 16)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			body, _ := io.ReadAll(r.Body)
			received <- capturedRequest{
				signature:   r.Header.Get(webhook.SignatureHeader),
				contentType: r.Header.Get("Content-Type"),
				body:        body,
			}
			w.WriteHeader(int(status.Load()))
			_, _ = io.WriteString(w, respBody.Load().(string))
		}))

		merchants = fakeMerchants{merchantID: merchantWithWebhook(merchantID, server.URL, secret)}
	})

	AfterEach(func() {
		server.Close()
	})

	newDeliverer := func(testMode bool) *webhook.Deliverer {
		return webhook.NewDeliverer(repo, merchants, webhook.DeliveryConfig{
			Timeout:            time.Second,
			TestRetryIntervals: testMode,
		}, discardLogger).WithClock(clk.Now)
	}

	seedLog := func() *webhook.Log {
		row := &webhook.Log{
			ID:         uuid.NewString(),
			MerchantID: merchantID,
			Event:      "payment.success",
			Payload:    datatypes.JSON(payload),
			Status:     webhook.StatusPending,
		}
		Expect(repo.Create(ctx, row)).To(Succeed())
		return row
	}

	jobFor := func(row *webhook.Log) webhook.DeliveryJob {
		return webhook.DeliveryJob{
			WebhookLogID: row.ID,
			MerchantID:   row.MerchantID,
			Event:        row.Event,
			Payload:      json.RawMessage(row.Payload),
		}
	}

	reload := func(id string) *webhook.Log {
		row, err := repo.GetByID(ctx, id)
		Expect(err).ToNot(HaveOccurred())
		return row
	}

	Context("when the merchant endpoint answers 2xx", func() {
		It("marks the log successful after one attempt", func() {
			row := seedLog()

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeDelivered))
			Expect(res.Attempts).To(Equal(1))

			stored := reload(row.ID)
			Expect(stored.Status).To(Equal(webhook.StatusSuccess))
			Expect(stored.Attempts).To(Equal(1))
			Expect(*stored.ResponseCode).To(Equal(http.StatusOK))
			Expect(*stored.ResponseBody).To(Equal("ok"))
			Expect(stored.LastAttemptAt).ToNot(BeNil())
			Expect(*stored.LastAttemptAt).To(BeTemporally("==", clk.Now()))
			Expect(stored.NextRetryAt).To(BeNil())
			Expect(stored.ClaimedUntil).To(BeNil())
		})

		It("signs exactly the bytes it sends", func() {
			row := seedLog()
			_, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())

			var req capturedRequest
			Eventually(received).Should(Receive(&req))
			Expect(req.contentType).To(Equal("application/json"))
			Expect(req.signature).To(Equal(webhook.Sign(req.body, secret)))
			Expect(webhook.Verify(req.body, secret, req.signature)).To(BeTrue())

			var env webhook.Envelope
			Expect(json.Unmarshal(req.body, &env)).To(Succeed())
			Expect(env.Event).To(Equal("payment.success"))
			Expect(env.Timestamp).To(Equal(clk.Now().Unix()))
			Expect(string(env.Data)).To(MatchJSON(payload))
		})

		It("accepts any 2xx status", func() {
			status.Store(http.StatusAccepted)
			row := seedLog()

			res, err := newDeliverer(false).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeDelivered))
			Expect(*reload(row.ID).ResponseCode).To(Equal(http.StatusAccepted))
		})
	})

	Context("when the merchant endpoint fails", func() {
		It("schedules the next attempt from the test retry table", func() {
			status.Store(http.StatusInternalServerError)
			respBody.Store("boom")
			row := seedLog()

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeRetry))

			stored := reload(row.ID)
			Expect(stored.Status).To(Equal(webhook.StatusPending))
			Expect(stored.Attempts).To(Equal(1))
			Expect(*stored.ResponseCode).To(Equal(http.StatusInternalServerError))
			Expect(*stored.ResponseBody).To(Equal("boom"))
			Expect(stored.NextRetryAt).ToNot(BeNil())
			Expect(*stored.NextRetryAt).To(BeTemporally("==", stored.LastAttemptAt.Add(5*time.Second)))
		})

		It("walks the production schedule and fails after five attempts", func() {
			status.Store(http.StatusServiceUnavailable)
			row := seedLog()
			d := newDeliverer(false)
			expected := []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}

			for attempt := 1; attempt <= webhook.MaxAttempts; attempt++ {
				res, err := d.Deliver(ctx, jobFor(row))
				Expect(err).ToNot(HaveOccurred())
				Expect(res.Attempts).To(Equal(attempt))

				if attempt < webhook.MaxAttempts {
					Expect(res.Outcome).To(Equal(webhook.OutcomeRetry))
					Expect(*res.NextRetryAt).To(BeTemporally("==", clk.Now().Add(expected[attempt-1])))
					clk.Set(*res.NextRetryAt)
					continue
				}
				Expect(res.Outcome).To(Equal(webhook.OutcomeFailed))
			}

			stored := reload(row.ID)
			Expect(stored.Status).To(Equal(webhook.StatusFailed))
			Expect(stored.Attempts).To(Equal(webhook.MaxAttempts))
			Expect(stored.NextRetryAt).To(BeNil())
			Expect(hits.Load()).To(Equal(int32(webhook.MaxAttempts)))

			res, err := d.Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeBusy))
			Expect(hits.Load()).To(Equal(int32(webhook.MaxAttempts)))
		})

		It("exhausts the test schedule as well", func() {
			status.Store(http.StatusInternalServerError)
			row := seedLog()
			d := newDeliverer(true)

			for attempt := 1; attempt <= webhook.MaxAttempts; attempt++ {
				res, err := d.Deliver(ctx, jobFor(row))
				Expect(err).ToNot(HaveOccurred())
				if res.NextRetryAt != nil {
					clk.Set(*res.NextRetryAt)
				}
			}

			stored := reload(row.ID)
			Expect(stored.Status).To(Equal(webhook.StatusFailed))
			Expect(stored.Attempts).To(Equal(5))
		})

		It("does not deliver again before the retry is due", func() {
			status.Store(http.StatusInternalServerError)
			row := seedLog()
			d := newDeliverer(true)

			_, err := d.Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())

			clk.Advance(4 * time.Second)
			res, err := d.Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeBusy))
			Expect(reload(row.ID).Attempts).To(Equal(1))
			Expect(hits.Load()).To(Equal(int32(1)))
		})

		It("records transport errors without a response code", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			deadURL := dead.URL
			dead.Close()
			merchants[merchantID] = merchantWithWebhook(merchantID, deadURL, secret)
			row := seedLog()

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeRetry))

			stored := reload(row.ID)
			Expect(stored.ResponseCode).To(BeNil())
			Expect(stored.ResponseBody).ToNot(BeNil())
			Expect(*stored.ResponseBody).ToNot(BeEmpty())
			Expect(stored.Attempts).To(Equal(1))
		})

		It("gives up on a slow endpoint after the timeout", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}))
			defer slow.Close()
			merchants[merchantID] = merchantWithWebhook(merchantID, slow.URL, secret)
			row := seedLog()

			d := webhook.NewDeliverer(repo, merchants, webhook.DeliveryConfig{
				Timeout:            100 * time.Millisecond,
				TestRetryIntervals: true,
			}, discardLogger).WithClock(clk.Now)

			res, err := d.Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeRetry))

			stored := reload(row.ID)
			Expect(stored.ResponseCode).To(BeNil())
			Expect(*stored.ResponseBody).To(ContainSubstring("deadline exceeded"))
		})
	})

	It("bounds and sanitizes the stored response body", func() {
		respBody.Store("a\x00b" + strings.Repeat("x", 100))
		row := seedLog()

		d := webhook.NewDeliverer(repo, merchants, webhook.DeliveryConfig{
			Timeout:         time.Second,
			MaxResponseBody: 16,
		}, discardLogger).WithClock(clk.Now)

		_, err := d.Deliver(ctx, jobFor(row))
		Expect(err).ToNot(HaveOccurred())

		stored := reload(row.ID)
		Expect(*stored.ResponseBody).To(HavePrefix("ab"))
		Expect(*stored.ResponseBody).ToNot(ContainSubstring("\x00"))
		Expect(len(*stored.ResponseBody)).To(BeNumerically("<=", 16))
	})

	Context("when the merchant has no webhook configured", func() {
		It("skips without touching the log", func() {
			merchants[merchantID] = merchantWithWebhook(merchantID, "", "")
			row := seedLog()

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeSkipped))

			stored := reload(row.ID)
			Expect(stored.Attempts).To(Equal(0))
			Expect(stored.Status).To(Equal(webhook.StatusPending))
			Expect(hits.Load()).To(BeZero())
		})

		It("skips unknown merchants", func() {
			row := seedLog()
			job := jobFor(row)
			job.MerchantID = "merchant_unknown"

			res, err := newDeliverer(true).Deliver(ctx, job)
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeSkipped))
		})
	})

	Context("claiming", func() {
		It("leaves a row claimed by another worker alone", func() {
			row := seedLog()
			claimed, err := repo.Claim(ctx, row.ID, clk.Now(), clk.Now().Add(time.Minute))
			Expect(err).ToNot(HaveOccurred())
			Expect(claimed).To(BeTrue())

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeBusy))
			Expect(hits.Load()).To(BeZero())
		})

		It("takes over an expired claim", func() {
			row := seedLog()
			_, err := repo.Claim(ctx, row.ID, clk.Now(), clk.Now().Add(time.Second))
			Expect(err).ToNot(HaveOccurred())
			clk.Advance(2 * time.Second)

			res, err := newDeliverer(true).Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeDelivered))
		})

		It("releases the claim and keeps the log due when the attempt cannot be recorded", func() {
			row := seedLog()
			flaky := &flakyRepository{WebhookRepository: repo}
			flaky.failRecords.Store(1)
			d := webhook.NewDeliverer(flaky, merchants, webhook.DeliveryConfig{
				Timeout:            time.Second,
				TestRetryIntervals: true,
			}, discardLogger).WithClock(clk.Now)

			_, err := d.Deliver(ctx, jobFor(row))
			Expect(err).To(MatchError(errTransientDB))

			stored := reload(row.ID)
			Expect(stored.Status).To(Equal(webhook.StatusPending))
			Expect(stored.Attempts).To(BeZero())
			Expect(stored.ClaimedUntil).To(BeNil())
			Expect(stored.NextRetryAt).ToNot(BeNil())
			Expect(*stored.NextRetryAt).To(BeTemporally("==", clk.Now()))

			q := &recordingQueue{}
			clk.Advance(time.Hour)
			n, err := webhook.NewPoller(repo, q, nil, webhook.PollerConfig{}, discardLogger).WithClock(clk.Now).Tick(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(1))

			res, err := d.Deliver(ctx, jobFor(row))
			Expect(err).ToNot(HaveOccurred())
			Expect(res.Outcome).To(Equal(webhook.OutcomeDelivered))
			Expect(reload(row.ID).Attempts).To(Equal(1))
		})

		It("lets the poller recover a log whose worker died after claiming it", func() {
			row := seedLog()
			claimed, err := repo.Claim(ctx, row.ID, clk.Now(), clk.Now().Add(10*time.Second))
			Expect(err).ToNot(HaveOccurred())
			Expect(claimed).To(BeTrue())

			q := &recordingQueue{}
			p := webhook.NewPoller(repo, q, nil, webhook.PollerConfig{}, discardLogger).WithClock(clk.Now)
			n, err := p.Tick(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeZero())

			clk.Advance(11 * time.Second)
			n, err = p.Tick(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("does not count an attempt interrupted by shutdown", func() {
			started := make(chan struct{}, 1)
			hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				started <- struct{}{}
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}))
			defer hang.Close()
			merchants[merchantID] = merchantWithWebhook(merchantID, hang.URL, secret)
			row := seedLog()

			runCtx, cancel := context.WithCancel(ctx)
			go func() {
				<-started
				cancel()
			}()

			_, err := newDeliverer(true).Deliver(runCtx, jobFor(row))
			Expect(err).To(MatchError(context.Canceled))

			stored := reload(row.ID)
			Expect(stored.Attempts).To(BeZero())
			Expect(stored.LastAttemptAt).To(BeNil())
			Expect(stored.ClaimedUntil).To(BeNil())
			Expect(stored.Status).To(Equal(webhook.StatusPending))
		})

		It("delivers duplicate jobs for the same log only once", func() {
			row := seedLog()
			d := newDeliverer(true)

			var (
				wg        sync.WaitGroup
				delivered atomic.Int32
			)
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := d.Deliver(ctx, jobFor(row))
					Expect(err).ToNot(HaveOccurred())
					if res.Outcome == webhook.OutcomeDelivered {
						delivered.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(delivered.Load()).To(Equal(int32(1)))
			Expect(hits.Load()).To(Equal(int32(1)))
			Expect(reload(row.ID).Attempts).To(Equal(1))
		})
	})

	It("creates the log row for inline jobs", func() {
		res, err := newDeliverer(true).Deliver(ctx, webhook.DeliveryJob{
			MerchantID: merchantID,
			Event:      "payment.failed",
			Payload:    json.RawMessage(payload),
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.LogID).ToNot(BeEmpty())

		stored := reload(res.LogID)
		Expect(stored.Event).To(Equal("payment.failed"))
		Expect(stored.Status).To(Equal(webhook.StatusSuccess))
	})

	It("dead-letters jobs whose log row is gone", func() {
		_, err := newDeliverer(true).Deliver(ctx, webhook.DeliveryJob{
			WebhookLogID: "missing",
			MerchantID:   merchantID,
			Event:        "payment.success",
		})
		Expect(err).To(HaveOccurred())
		Expect(queue.IsPermanent(err)).To(BeTrue())
	})

	It("handles queue jobs", func() {
		row := seedLog()
		job, err := queue.NewJob(queue.WebhookDelivery, jobFor(row))
		Expect(err).ToNot(HaveOccurred())

		Expect(newDeliverer(true).Handle(ctx, job)).To(Succeed())
		Expect(reload(row.ID).Status).To(Equal(webhook.StatusSuccess))
	})

	It("rejects undecodable queue jobs permanently", func() {
		job := &queue.Job{ID: "job_1", Queue: queue.WebhookDelivery, Payload: json.RawMessage(`"nope"`)}
		err := newDeliverer(true).Handle(ctx, job)
		Expect(queue.IsPermanent(err)).To(BeTrue())
	})
})
