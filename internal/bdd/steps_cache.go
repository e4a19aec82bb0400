package bdd

import (
	"bufio"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/chirino/chat-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

const cacheHitsMetric = "chat_service_cache_hits_total"

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		c := &cacheSteps{s: s}
		ctx.Step(`^I record the current cache metrics$`, c.iRecordTheCurrentCacheMetrics)
		ctx.Step(`^the cache hit count should have increased by at least (\d+)$`, c.theCacheHitCountShouldHaveIncreasedByAtLeast)
	})
}

type cacheSteps struct {
	s              *cucumber.TestScenario
	lastHitCount   float64
	hitCountCached bool
}

func (c *cacheSteps) iRecordTheCurrentCacheMetrics() error {
	hits, err := c.scrapeCounter(cacheHitsMetric)
	if err != nil {
		return err
	}
	c.lastHitCount = hits
	c.hitCountCached = true
	return nil
}

func (c *cacheSteps) theCacheHitCountShouldHaveIncreasedByAtLeast(minIncrease int) error {
	if !c.hitCountCached {
		return fmt.Errorf("cache metrics were not recorded; call 'I record the current cache metrics' first")
	}
	hits, err := c.scrapeCounter(cacheHitsMetric)
	if err != nil {
		return err
	}
	if hits-c.lastHitCount < float64(minIncrease) {
		return fmt.Errorf("cache hits went from %.0f to %.0f, expected an increase of at least %d", c.lastHitCount, hits, minIncrease)
	}
	return nil
}

// scrapeCounter reads one unlabeled-by-dimension counter from the /metrics
// endpoint, summing across constant label sets.
func (c *cacheSteps) scrapeCounter(name string) (float64, error) {
	resp, err := http.Get(c.s.Suite.APIURL + "/metrics")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("metrics endpoint returned %d", resp.StatusCode)
	}

	var total float64
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, name) {
			continue
		}
		rest := strings.TrimPrefix(line, name)
		if rest != "" && rest[0] != '{' && rest[0] != ' ' {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", line, err)
		}
		total += v
	}
	return total, scanner.Err()
}
