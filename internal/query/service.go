// Package query answers natural-language questions about stored receipts:
// a language model plans the aggregation, the repository executes it and
// the answer goes back through the outbound queue.
package query

import (
	"context"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"go.uber.org/zap"
)

// Planner maps a question onto an aggregation spec.
type Planner interface {
	PlanQuery(ctx context.Context, question string) (models.QuerySpec, error)
}

// Aggregator executes a spec over one user's receipts.
type Aggregator interface {
	Aggregate(ctx context.Context, userID string, spec models.QuerySpec) (*models.QueryResult, error)
}

// Responder delivers the answer to the asking user.
type Responder interface {
	NotifyAnswer(ctx context.Context, userID string, result *models.QueryResult) error
}

type Service struct {
	planner   Planner
	agg       Aggregator
	responder Responder
	logger    *zap.Logger
}

func NewService(planner Planner, agg Aggregator, responder Responder, logger *zap.Logger) *Service {
	return &Service{
		planner:   planner,
		agg:       agg,
		responder: responder,
		logger:    logger,
	}
}

// Answer plans and executes one question.
func (s *Service) Answer(ctx context.Context, userID, question string) (*models.QueryResult, error) {
	spec, err := s.planner.PlanQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	result, err := s.agg.Aggregate(ctx, userID, spec)
	if err != nil {
		return nil, fault.New(fault.KindStorage, "query", err)
	}
	result.Question = question

	s.logger.Info("query answered",
		zap.String("user_id", userID),
		zap.String("intent", string(spec.Intent)),
		zap.Int("receipts", result.Count),
	)
	return result, nil
}

// HandleQuestion is the ingest entry point. Transient and storage failures
// return an error so the transport redelivers; anything else is logged and
// acknowledged, since replaying a question the planner cannot parse only
// loops.
func (s *Service) HandleQuestion(ctx context.Context, userID, question string) error {
	result, err := s.Answer(ctx, userID, question)
	if err != nil {
		if kind := fault.KindOf(err); kind == fault.KindTransient || kind == fault.KindStorage {
			return err
		}
		s.logger.Warn("question dropped",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}

	if err := s.responder.NotifyAnswer(ctx, userID, result); err != nil {
		return err
	}
	return nil
}
