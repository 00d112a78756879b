package e2e

import (
	"github.com/cucumber/godog"

	"pollwatch/e2e/steps/common"
	"pollwatch/e2e/steps/results"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic requests and assertions
	common.RegisterSteps(ctx, tc)

	// Result submission, review and aggregation
	results.RegisterSteps(ctx, tc)
}
