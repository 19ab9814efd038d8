package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dyluth/xray/internal/graphql"
	"github.com/dyluth/xray/pkg/projectstore"
	"golang.org/x/time/rate"
)

// Fixed Step A variables.
const (
	TrackViewEvent      = "DIRECT"
	OnboardingKeyFilter = "PROJECT_SPOTLIGHT"
)

// GraphQLClient executes one GraphQL request.
type GraphQLClient interface {
	Query(ctx context.Context, req graphql.Request) (*graphql.Response, error)
}

// RecordWriter persists fetched data onto a project's record.
type RecordWriter interface {
	SaveProjectRecord(ctx context.Context, projectKey string, data map[string]json.RawMessage) error
}

// Step names one of the two queries issued per project.
type Step string

const (
	StepProjectView   Step = "project_view"
	StepStatusHistory Step = "status_history"
)

// Outcome is the settled result of one FetchProject call.
// A nil step error means that step's data was persisted.
type Outcome struct {
	Ref        projectstore.ProjectReference
	ViewErr    error
	HistoryErr error
	Duration   time.Duration
}

// Succeeded reports whether both steps were persisted.
func (o Outcome) Succeeded() bool {
	return o.ViewErr == nil && o.HistoryErr == nil
}

// Options configures an Orchestrator.
type Options struct {
	InstanceName  string
	RatePerSecond float64 // Outbound queries per second across all workers; 0 disables pacing
	Burst         int
}

// Orchestrator runs the two-query fetch for a newly discovered project.
type Orchestrator struct {
	gql          GraphQLClient
	records      RecordWriter
	instanceName string
	limiter      *rate.Limiter
}

// NewOrchestrator creates an orchestrator. It is safe for concurrent use.
func NewOrchestrator(gql GraphQLClient, records RecordWriter, opts Options) *Orchestrator {
	o := &Orchestrator{
		gql:          gql,
		records:      records,
		instanceName: opts.InstanceName,
	}

	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return o
}

// ProjectViewVariables builds the Step A variables for ref.
func ProjectViewVariables(ref projectstore.ProjectReference) map[string]any {
	return map[string]any{
		"key":                  ref.ProjectID,
		"trackViewEvent":       TrackViewEvent,
		"workspaceId":          nil,
		"onboardingKeyFilter":  OnboardingKeyFilter,
		"areMilestonesEnabled": false,
		"cloudId":              ref.CloudID,
		"isNavRefreshEnabled":  true,
	}
}

// StatusHistoryVariables builds the Step B variables for ref.
func StatusHistoryVariables(ref projectstore.ProjectReference) map[string]any {
	return map[string]any{
		"projectKey": ref.ProjectID,
	}
}

// FetchProject queries the project view, then the status history, persisting
// each result under ref.ProjectID. The steps are independent: a failure in the
// first never prevents the second. Failures are logged and reported in the
// Outcome, never returned or retried.
func (o *Orchestrator) FetchProject(ctx context.Context, ref projectstore.ProjectReference) Outcome {
	start := time.Now()
	out := Outcome{Ref: ref}

	out.ViewErr = o.runStep(ctx, ref, StepProjectView, graphql.Request{
		Query:     graphql.ProjectViewQuery,
		Variables: ProjectViewVariables(ref),
	})

	out.HistoryErr = o.runStep(ctx, ref, StepStatusHistory, graphql.Request{
		Query:     graphql.ProjectStatusHistoryQuery,
		Variables: StatusHistoryVariables(ref),
	})

	out.Duration = time.Since(start)
	return out
}

func (o *Orchestrator) runStep(ctx context.Context, ref projectstore.ProjectReference, step Step, req graphql.Request) (err error) {
	start := time.Now()

	// A panicking collaborator fails this step only
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", step, r)
			o.logFailure(ref, step, err, start)
		}
	}()

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("rate limiter: %w", err)
			o.logFailure(ref, step, err, start)
			return err
		}
	}

	resp, err := o.gql.Query(ctx, req)
	if err != nil {
		err = fmt.Errorf("%s query failed: %w", step, err)
		o.logFailure(ref, step, err, start)
		return err
	}

	if err := o.records.SaveProjectRecord(ctx, ref.ProjectID, resp.Data); err != nil {
		err = fmt.Errorf("failed to persist %s data: %w", step, err)
		o.logFailure(ref, step, err, start)
		return err
	}

	log.Printf("[Fetch] %s for %s persisted (fields: %v)", step, ref.ProjectID, fieldNames(resp.Data))
	o.logEvent("fetch_succeeded", map[string]interface{}{
		"project_key": ref.ProjectID,
		"cloud_id":    ref.CloudID,
		"step":        string(step),
		"fields":      fieldNames(resp.Data),
		"latency_ms":  time.Since(start).Milliseconds(),
	})

	return nil
}

func (o *Orchestrator) logFailure(ref projectstore.ProjectReference, step Step, err error, start time.Time) {
	log.Printf("[Fetch] Error in %s for %s: %v", step, ref.ProjectID, err)
	o.logEvent("fetch_failed", map[string]interface{}{
		"project_key": ref.ProjectID,
		"cloud_id":    ref.CloudID,
		"step":        string(step),
		"error":       err.Error(),
		"latency_ms":  time.Since(start).Milliseconds(),
	})
}

// logEvent logs a structured event in JSON format.
func (o *Orchestrator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	if eventType == "fetch_failed" {
		data["level"] = "error"
	}
	data["component"] = "fetch"
	data["event_type"] = eventType
	data["instance"] = o.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Fetch] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func fieldNames(data map[string]json.RawMessage) []string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
