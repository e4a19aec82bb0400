package bdd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		st := &storageSteps{s: s}
		ctx.Step(`^the stored text of message "([^"]*)" should not contain "([^"]*)"$`, st.theStoredTextShouldNotContain)
		ctx.Step(`^the stored text of message "([^"]*)" should be "([^"]*)"$`, st.theStoredTextShouldBe)
	})
}

type storageSteps struct {
	s *cucumber.TestScenario
}

func (st *storageSteps) raw(messageID string) ([]byte, error) {
	if st.s.Suite.DB == nil {
		return nil, fmt.Errorf("no test database configured")
	}
	id, err := st.s.Expand(messageID)
	if err != nil {
		return nil, err
	}
	return st.s.Suite.DB.RawMessageText(context.Background(), id)
}

func (st *storageSteps) theStoredTextShouldNotContain(messageID, plain string) error {
	raw, err := st.raw(messageID)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("message %s has no stored text", messageID)
	}
	if bytes.Contains(raw, []byte(plain)) {
		return fmt.Errorf("stored text of message %s contains %q in plaintext", messageID, plain)
	}
	return nil
}

func (st *storageSteps) theStoredTextShouldBe(messageID, expected string) error {
	raw, err := st.raw(messageID)
	if err != nil {
		return err
	}
	if string(raw) != expected {
		return fmt.Errorf("stored text of message %s is %q, expected %q", messageID, raw, expected)
	}
	return nil
}
