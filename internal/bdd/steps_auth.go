package bdd

import (
	"regexp"

	"github.com/chirino/chat-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		ctx.Step(`^I am authenticated as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^I authenticate as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^the users? ((?:"[^"]*"(?:, | and )?)+) (?:is|are) registered$`, a.theUsersAreRegistered)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func (a *authSteps) setUser(userID string) {
	a.s.Suite.Mu.Lock()
	defer a.s.Suite.Mu.Unlock()
	if a.s.Users[userID] == nil {
		a.s.Users[userID] = &cucumber.TestUser{
			Name:    userID,
			Subject: userID, // testing mode accepts the user id as the bearer token
		}
	}
	a.s.CurrentUser = userID
}

func (a *authSteps) iAmAuthenticatedAsUser(userID string) error {
	a.setUser(userID)
	a.s.Session().Header.Del("Authorization")
	return nil
}

// theUsersAreRegistered makes each user known to the service by calling
// check-auth as them, then switches back to the current user.
func (a *authSteps) theUsersAreRegistered(list string) error {
	saved := a.s.CurrentUser
	for _, userID := range quotedNames(list) {
		a.setUser(userID)
		if err := a.s.SendHTTPRequestWithJSONBody("GET", "/api/auth/check-auth", nil); err != nil {
			return err
		}
	}
	a.s.CurrentUser = saved
	return nil
}

var quotedName = regexp.MustCompile(`"([^"]*)"`)

func quotedNames(list string) []string {
	var names []string
	for _, m := range quotedName.FindAllStringSubmatch(list, -1) {
		names = append(names, m[1])
	}
	return names
}
