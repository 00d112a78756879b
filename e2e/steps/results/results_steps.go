package results

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers result lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &resultSteps{tc: tc}

	ctx.Step(`^I submit results for "([^"]*)" with (\d+) accredited and votes "([^"]*)"$`, steps.submit)
	ctx.Step(`^I (verify|reject) the result for "([^"]*)"$`, steps.review)
	ctx.Step(`^I request the snapshot$`, steps.snapshot)
	ctx.Step(`^I remember the total votes for "([^"]*)"$`, steps.rememberCandidateVotes)

	ctx.Step(`^the submission status should be "([^"]*)"$`, steps.submissionStatusShouldBe)
	ctx.Step(`^the submission should have a "([^"]*)" finding$`, steps.submissionShouldHaveFinding)
	ctx.Step(`^the total votes for "([^"]*)" should have grown by (\d+)$`, steps.candidateVotesGrewBy)
}

type resultSteps struct {
	tc TestContext
	// candidate totals captured before a submission
	remembered map[string]int64
}

// submit posts a result. votes is a comma separated list of candidate=count.
func (s *resultSteps) submit(ctx context.Context, unitID string, accredited int, votes string) error {
	tally := make(map[string]int64)
	for _, pair := range strings.Split(votes, ",") {
		name, count, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("bad vote pair %q", pair)
		}
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return fmt.Errorf("bad vote count %q: %w", count, err)
		}
		tally[name] = n
	}
	return s.tc.POST("/v1/results", map[string]interface{}{
		"unit_id":           unitID,
		"accredited_voters": accredited,
		"votes":             tally,
	})
}

func (s *resultSteps) review(ctx context.Context, action, unitID string) error {
	return s.tc.POST("/v1/results/"+unitID+"/"+action, nil)
}

func (s *resultSteps) snapshot(ctx context.Context) error {
	return s.tc.GET("/v1/snapshot")
}

func (s *resultSteps) rememberCandidateVotes(ctx context.Context, candidate string) error {
	if err := s.snapshot(ctx); err != nil {
		return err
	}
	n, err := s.candidateVotes(candidate)
	if err != nil {
		return err
	}
	if s.remembered == nil {
		s.remembered = make(map[string]int64)
	}
	s.remembered[candidate] = n
	return nil
}

func (s *resultSteps) submissionStatusShouldBe(ctx context.Context, want string) error {
	val, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if val != want {
		return fmt.Errorf("expected status %q, got %v: %s", want, val, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *resultSteps) submissionShouldHaveFinding(ctx context.Context, kind string) error {
	val, err := s.tc.GetResponseField("findings")
	if err != nil {
		return err
	}
	findings, _ := val.([]interface{})
	for _, f := range findings {
		if obj, ok := f.(map[string]interface{}); ok && obj["kind"] == kind {
			return nil
		}
	}
	return fmt.Errorf("no %q finding in %s", kind, s.tc.GetLastResponseBody())
}

func (s *resultSteps) candidateVotesGrewBy(ctx context.Context, candidate string, delta int) error {
	before, ok := s.remembered[candidate]
	if !ok {
		return fmt.Errorf("no remembered total for %q", candidate)
	}
	if err := s.snapshot(ctx); err != nil {
		return err
	}
	after, err := s.candidateVotes(candidate)
	if err != nil {
		return err
	}
	if after-before != int64(delta) {
		return fmt.Errorf("%s grew by %d, expected %d", candidate, after-before, delta)
	}
	return nil
}

func (s *resultSteps) candidateVotes(candidate string) (int64, error) {
	val, err := s.tc.GetResponseField("votes_by_candidate")
	if err != nil {
		return 0, err
	}
	totals, _ := val.(map[string]interface{})
	n, _ := totals[candidate].(float64)
	return int64(n), nil
}
