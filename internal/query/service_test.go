package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"go.uber.org/zap"
)

type fakePlanner struct {
	spec models.QuerySpec
	err  error
}

func (f *fakePlanner) PlanQuery(ctx context.Context, question string) (models.QuerySpec, error) {
	return f.spec, f.err
}

type fakeAggregator struct {
	result *models.QueryResult
	err    error
	specs  []models.QuerySpec
}

func (f *fakeAggregator) Aggregate(ctx context.Context, userID string, spec models.QuerySpec) (*models.QueryResult, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeResponder struct {
	answers []*models.QueryResult
	err     error
}

func (f *fakeResponder) NotifyAnswer(ctx context.Context, userID string, result *models.QueryResult) error {
	if f.err != nil {
		return f.err
	}
	f.answers = append(f.answers, result)
	return nil
}

func newTestService(planner *fakePlanner, agg *fakeAggregator, resp *fakeResponder) *Service {
	return NewService(planner, agg, resp, zap.NewNop())
}

func TestHandleQuestionDeliversAnswer(t *testing.T) {
	spec := models.QuerySpec{Intent: models.IntentTotal}
	agg := &fakeAggregator{result: &models.QueryResult{
		Spec:        spec,
		Total:       412.90,
		Count:       7,
		GeneratedAt: time.Now(),
	}}
	resp := &fakeResponder{}
	svc := newTestService(&fakePlanner{spec: spec}, agg, resp)

	if err := svc.HandleQuestion(context.Background(), "u-1", "כמה הוצאתי החודש"); err != nil {
		t.Fatalf("HandleQuestion: %v", err)
	}
	if len(resp.answers) != 1 {
		t.Fatalf("answers delivered: got %d, want 1", len(resp.answers))
	}
	if resp.answers[0].Question != "כמה הוצאתי החודש" {
		t.Errorf("question not echoed: %q", resp.answers[0].Question)
	}
	if len(agg.specs) != 1 || agg.specs[0].Intent != models.IntentTotal {
		t.Error("planned spec not passed to the aggregator")
	}
}

func TestHandleQuestionTransientPlanFailureRedelivers(t *testing.T) {
	planner := &fakePlanner{err: fault.Newf(fault.KindTransient, "llm", "timeout")}
	svc := newTestService(planner, &fakeAggregator{}, &fakeResponder{})

	if err := svc.HandleQuestion(context.Background(), "u-1", "question"); err == nil {
		t.Fatal("transient failure must surface for redelivery")
	}
}

func TestHandleQuestionUnparseableQuestionIsAcked(t *testing.T) {
	planner := &fakePlanner{err: fault.Newf(fault.KindRecoverableExtraction, "query_plan", "no JSON object")}
	resp := &fakeResponder{}
	svc := newTestService(planner, &fakeAggregator{}, resp)

	if err := svc.HandleQuestion(context.Background(), "u-1", "???"); err != nil {
		t.Fatalf("unparseable question must be dropped, got %v", err)
	}
	if len(resp.answers) != 0 {
		t.Error("answer delivered for a dropped question")
	}
}

func TestHandleQuestionStorageFailureRedelivers(t *testing.T) {
	agg := &fakeAggregator{err: errors.New("connection reset")}
	svc := newTestService(&fakePlanner{spec: models.QuerySpec{Intent: models.IntentCount}}, agg, &fakeResponder{})

	err := svc.HandleQuestion(context.Background(), "u-1", "כמה קבלות יש לי")
	if err == nil {
		t.Fatal("aggregation failure must surface for redelivery")
	}
	if kind := fault.KindOf(err); kind != fault.KindStorage {
		t.Errorf("kind: got %s, want storage", kind)
	}
}

func TestHandleQuestionDeliveryFailureRedelivers(t *testing.T) {
	spec := models.QuerySpec{Intent: models.IntentTotal}
	agg := &fakeAggregator{result: &models.QueryResult{Spec: spec}}
	resp := &fakeResponder{err: errors.New("queue unavailable")}
	svc := newTestService(&fakePlanner{spec: spec}, agg, resp)

	if err := svc.HandleQuestion(context.Background(), "u-1", "question"); err == nil {
		t.Fatal("delivery failure must surface for redelivery")
	}
}
