package review

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PostForm(path string, values url.Values) error
	DELETE(path string) error
	Status() int
	Body() []byte
	ResponseField(field string) (any, error)
	SetAccessToken(token string)
	Save(key, value string)
	Saved(key string) string
	AdminCredentials() (email, password string)
}

// RegisterSteps registers the admin review step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &reviewSteps{tc: tc}

	ctx.Step(`^I sign in as the admin$`, steps.signInAsAdmin)
	ctx.Step(`^I open the admin dashboard$`, steps.openDashboard)
	ctx.Step(`^I open the admin dashboard without signing in$`, steps.openDashboardAnonymously)
	ctx.Step(`^I set registration enabled to "(true|false)"$`, steps.setRegistration)
	ctx.Step(`^I search applications for "([^"]*)"$`, steps.searchApplications)
	ctx.Step(`^I find the submitted application$`, steps.findSubmittedApplication)
	ctx.Step(`^I view the saved application$`, steps.viewApplication)
	ctx.Step(`^I set the residency of the saved application to "([^"]*)"$`, steps.setResidency)
	ctx.Step(`^I assign the party "([^"]*)" to the saved application$`, steps.assignParty)
	ctx.Step(`^I view the history of the saved application$`, steps.viewHistory)
	ctx.Step(`^I export the applications$`, steps.exportApplications)
	ctx.Step(`^I delete the saved application$`, steps.deleteApplication)
}

type reviewSteps struct {
	tc TestContext
}

func (s *reviewSteps) signInAsAdmin(ctx context.Context) error {
	email, password := s.tc.AdminCredentials()
	if email == "" || password == "" {
		return godog.ErrSkip
	}
	if err := s.tc.PostForm("/login", url.Values{"email": {email}, "password": {password}}); err != nil {
		return err
	}
	if s.tc.Status() != 200 {
		return fmt.Errorf("admin sign-in failed with status %d", s.tc.Status())
	}
	token, err := s.tc.ResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(fmt.Sprint(token))
	return nil
}

func (s *reviewSteps) openDashboard(ctx context.Context) error {
	return s.tc.GET("/admin")
}

func (s *reviewSteps) openDashboardAnonymously(ctx context.Context) error {
	s.tc.SetAccessToken("")
	return s.tc.GET("/admin")
}

func (s *reviewSteps) setRegistration(ctx context.Context, enabled string) error {
	value, err := strconv.ParseBool(enabled)
	if err != nil {
		return err
	}
	return s.tc.POST("/admin/toggle-registration", map[string]bool{"enabled": value})
}

func (s *reviewSteps) searchApplications(ctx context.Context, term string) error {
	return s.tc.GET("/admin/applications?search=" + url.QueryEscape(term))
}

// findSubmittedApplication looks the scenario's application up by email,
// since the public form never returns its id.
func (s *reviewSteps) findSubmittedApplication(ctx context.Context) error {
	address := s.tc.Saved("submitted_email")
	if address == "" {
		return fmt.Errorf("no application submitted in this scenario")
	}
	if err := s.searchApplications(ctx, address); err != nil {
		return err
	}
	if s.tc.Status() != 200 {
		return fmt.Errorf("search failed with status %d", s.tc.Status())
	}
	var page struct {
		Items []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"items"`
	}
	if err := json.Unmarshal(s.tc.Body(), &page); err != nil {
		return fmt.Errorf("decode search results: %w", err)
	}
	for _, item := range page.Items {
		if item.Email == address {
			s.tc.Save("application_id", item.ID)
			return nil
		}
	}
	return fmt.Errorf("no application found for %s", address)
}

func (s *reviewSteps) applicationPath(suffix string) (string, error) {
	appID := s.tc.Saved("application_id")
	if appID == "" {
		return "", fmt.Errorf("no application id saved in this scenario")
	}
	return "/admin/applications/" + appID + suffix, nil
}

func (s *reviewSteps) viewApplication(ctx context.Context) error {
	path, err := s.applicationPath("")
	if err != nil {
		return err
	}
	return s.tc.GET(path)
}

func (s *reviewSteps) setResidency(ctx context.Context, status string) error {
	path, err := s.applicationPath("/residency")
	if err != nil {
		return err
	}
	return s.tc.POST(path, map[string]string{"residency_status": status})
}

func (s *reviewSteps) assignParty(ctx context.Context, party string) error {
	path, err := s.applicationPath("/party")
	if err != nil {
		return err
	}
	return s.tc.POST(path, map[string]string{"party_affiliation": party})
}

func (s *reviewSteps) viewHistory(ctx context.Context) error {
	path, err := s.applicationPath("/history")
	if err != nil {
		return err
	}
	return s.tc.GET(path)
}

func (s *reviewSteps) exportApplications(ctx context.Context) error {
	return s.tc.GET("/admin/applications/export")
}

func (s *reviewSteps) deleteApplication(ctx context.Context) error {
	path, err := s.applicationPath("")
	if err != nil {
		return err
	}
	return s.tc.DELETE(path)
}
