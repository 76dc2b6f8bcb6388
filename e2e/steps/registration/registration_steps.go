package registration

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PostForm(path string, values url.Values) error
	ResponseField(field string) (any, error)
	Save(key, value string)
	Saved(key string) string
}

// RegisterSteps registers the public registration step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}

	ctx.Step(`^I check whether registration is open$`, steps.checkRegistration)
	ctx.Step(`^I submit an application for "([^"]*)" with email "([^"]*)" at "([^"]*)"$`, steps.submitApplication)
	ctx.Step(`^I submit an application as JSON for "([^"]*)" with email "([^"]*)" at "([^"]*)"$`, steps.submitApplicationJSON)
	ctx.Step(`^I follow the verification link with token "([^"]*)"$`, steps.followVerificationLink)
	ctx.Step(`^I request a new verification email for "([^"]*)"$`, steps.requestResend)
}

type registrationSteps struct {
	tc TestContext
}

// expand replaces {unique} with a suffix fixed for the scenario so reruns
// never collide on the unique email constraint.
func (s *registrationSteps) expand(value string) string {
	if !strings.Contains(value, "{unique}") {
		return value
	}
	suffix := s.tc.Saved("unique")
	if suffix == "" {
		suffix = strconv.FormatInt(time.Now().UnixNano(), 36)
		s.tc.Save("unique", suffix)
	}
	return strings.ReplaceAll(value, "{unique}", suffix)
}

func (s *registrationSteps) checkRegistration(ctx context.Context) error {
	return s.tc.GET("/")
}

// submittedEmail expands and remembers the address so later admin steps can
// find the application.
func (s *registrationSteps) submittedEmail(email string) string {
	address := s.expand(email)
	s.tc.Save("submitted_email", address)
	return address
}

func (s *registrationSteps) submitApplication(ctx context.Context, name, email, address string) error {
	return s.tc.PostForm("/", url.Values{
		"name":           {name},
		"email":          {s.submittedEmail(email)},
		"street_address": {address},
	})
}

func (s *registrationSteps) submitApplicationJSON(ctx context.Context, name, email, address string) error {
	return s.tc.POST("/", map[string]string{
		"name":           name,
		"email":          s.submittedEmail(email),
		"street_address": address,
	})
}

func (s *registrationSteps) followVerificationLink(ctx context.Context, token string) error {
	return s.tc.GET("/verify/" + url.PathEscape(token))
}

func (s *registrationSteps) requestResend(ctx context.Context, email string) error {
	return s.tc.POST("/verification/resend/"+url.PathEscape(s.expand(email)), nil)
}
