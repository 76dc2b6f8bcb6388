package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	Status() int
	Body() []byte
	Header(key string) string
	ResponseField(field string) (any, error)
}

// RegisterSteps registers background and assertion steps shared by every feature
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the portal is running$`, steps.portalIsRunning)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should contain "([^"]*)"$`, steps.fieldShouldContain)
	ctx.Step(`^the response header "([^"]*)" should contain "([^"]*)"$`, steps.headerShouldContain)
	ctx.Step(`^the response body should contain "([^"]*)"$`, steps.bodyShouldContain)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) portalIsRunning(ctx context.Context) error {
	if err := s.tc.GET("/health"); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) statusShouldBe(_ context.Context, expected int) error {
	if got := s.tc.Status(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.Body())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(_ context.Context, field, expected string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldContain(_ context.Context, field, fragment string) error {
	v, err := s.tc.ResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); !strings.Contains(got, fragment) {
		return fmt.Errorf("expected %s to contain %q, got %q", field, fragment, got)
	}
	return nil
}

func (s *commonSteps) headerShouldContain(_ context.Context, key, fragment string) error {
	if got := s.tc.Header(key); !strings.Contains(got, fragment) {
		return fmt.Errorf("expected header %s to contain %q, got %q", key, fragment, got)
	}
	return nil
}

func (s *commonSteps) bodyShouldContain(_ context.Context, fragment string) error {
	if !strings.Contains(string(s.tc.Body()), fragment) {
		return fmt.Errorf("expected body to contain %q: %s", fragment, s.tc.Body())
	}
	return nil
}
