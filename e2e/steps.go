package e2e

import (
	"github.com/cucumber/godog"

	"pollworker/e2e/steps/common"
	"pollworker/e2e/steps/registration"
	"pollworker/e2e/steps/review"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registration.RegisterSteps(ctx, tc)
	review.RegisterSteps(ctx, tc)
}
