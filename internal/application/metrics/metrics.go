package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the application lifecycle: intake, verification and review.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	ReviewActions      *prometheus.CounterVec
	EmailDispatchFails prometheus.Counter
	UsersProvisioned   prometheus.Counter
	VerifyDuration     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pollworker_applications_submitted_total",
			Help: "Registration form submissions by outcome (created, resent)",
		}, []string{"outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pollworker_verifications_total",
			Help: "Verification link resolutions by outcome",
		}, []string{"outcome"}),
		ReviewActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pollworker_review_actions_total",
			Help: "Admin review actions by kind",
		}, []string{"action"}),
		EmailDispatchFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollworker_verification_email_dispatch_failures_total",
			Help: "Verification emails that could not be handed to the mail queue",
		}),
		UsersProvisioned: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollworker_users_provisioned_total",
			Help: "Accounts created by successful email verification",
		}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollworker_verify_duration_seconds",
			Help:    "Duration of Verify including user provisioning",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementReviewAction(action string) {
	m.ReviewActions.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementDispatchFailure() {
	m.EmailDispatchFails.Inc()
}

func (m *Metrics) IncrementUserProvisioned() {
	m.UsersProvisioned.Inc()
}

// ObserveVerify records the duration of a Verify call started at start.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
