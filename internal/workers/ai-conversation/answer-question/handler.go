// Package answerquestion runs the question pipeline: extract, validate,
// execute, generate. Stages run in order and any failure ends the request.
package answerquestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/metrics"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/common/validation"
	"crm-assistant/internal/models"
	parseuserintent "crm-assistant/internal/workers/ai-conversation/parse-user-intent"
	validateintent "crm-assistant/internal/workers/ai-conversation/validate-intent"
	querypostgresql "crm-assistant/internal/workers/data-access/query-postgresql"
)

const (
	TaskType = "crm-answer-question"
)

type IntentExtractor interface {
	Execute(ctx context.Context, question string) (*parseuserintent.Result, error)
}

type IntentValidator interface {
	Execute(ctx context.Context, intent models.Intent, question string) models.ValidationResult
}

type QueryExecutor interface {
	Execute(ctx context.Context, intent models.Intent, caller models.CallerContext) (*models.QueryResult, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, question string, result *models.QueryResult) (*models.Answer, error)
	GenerateGeneralMessage(ctx context.Context, question string) (string, error)
}

// Stages are the four pipeline steps in execution order.
type Stages struct {
	Extractor IntentExtractor
	Validator IntentValidator
	Executor  QueryExecutor
	Generator AnswerGenerator
}

type Handler struct {
	config       *Config
	stages       Stages
	obs          *observability.Observability
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	newID        func() string
}

func NewHandler(config *Config, stages Stages, obs *observability.Observability, log logger.Logger) *Handler {
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		stages:       stages,
		obs:          obs,
		errorHandler: apperrors.NewErrorHandler(l),
		logger:       l,
		newID:        uuid.NewString,
	}
}

// Execute answers one question. Every error returned is a *StandardError
// carrying the request id in its metadata.
func (h *Handler) Execute(ctx context.Context, req Request) (*models.Answer, error) {
	requestID := h.newID()
	log := h.logger.With(map[string]interface{}{
		"requestId": requestID,
		"callerId":  req.Caller.ID,
	})
	ctx = logger.IntoContext(ctx, log)
	ctx, span := h.obs.StartSpan(ctx, "answer_question", attribute.String("request.id", requestID))
	start := time.Now()

	answer, err := h.run(ctx, req)

	queryType := "none"
	outcome := "success"
	if answer != nil {
		queryType = string(answer.QueryType)
		answer.RequestID = requestID
	}
	if err != nil {
		stdErr := apperrors.Normalize(err).WithMetadata("requestId", requestID)
		err = stdErr
		outcome = string(stdErr.Code)
		if qt, ok := stdErr.Metadata["queryType"].(string); ok {
			queryType = qt
		}
		log.Warn("question failed", map[string]interface{}{
			"code":     outcome,
			"details":  stdErr.Details,
			"duration": time.Since(start).Milliseconds(),
		})
	} else {
		log.Info("question answered", map[string]interface{}{
			"queryType": queryType,
			"source":    string(answer.Source),
			"duration":  time.Since(start).Milliseconds(),
		})
	}

	metrics.QuestionsTotal.WithLabelValues(queryType, outcome).Inc()
	h.obs.RecordRequest(ctx, queryType, outcome, time.Since(start))
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}
	return answer, nil
}

func (h *Handler) run(ctx context.Context, req Request) (*models.Answer, error) {
	req.Question = strings.TrimSpace(req.Question)
	if err := req.Validate(); err != nil {
		return nil, apperrors.NewMalformedRequestError(err.Error())
	}
	logger.FromContext(ctx, h.logger).Debug("question received", map[string]interface{}{"question": req.Question})

	extracted, err := h.stages.Extractor.Execute(ctx, req.Question)
	if err != nil {
		return nil, apperrors.NewExtractionFailedError(err)
	}
	if extracted.Conversation || extracted.Intent == nil {
		return h.converse(ctx, req.Question)
	}

	verdict := h.stages.Validator.Execute(ctx, *extracted.Intent, req.Question)
	if !verdict.Valid {
		if verdict.Code == validateintent.CodeForbiddenMetric {
			return nil, apperrors.NewForbiddenMetricError(verdict.Intent.Metric)
		}
		return nil, apperrors.NewInvalidIntentError(verdict.Error).
			WithMetadata("queryType", string(verdict.Intent.QueryType))
	}
	if verdict.IsConversation {
		return h.converse(ctx, req.Question)
	}
	intent := verdict.Intent

	result, err := h.stages.Executor.Execute(ctx, intent, req.Caller)
	if err != nil {
		stdErr := apperrors.NewQueryExecutionFailedError(err).
			WithMetadata("queryType", string(intent.QueryType))
		var qe *querypostgresql.QueryError
		if errors.As(err, &qe) {
			for k, v := range qe.Metadata() {
				stdErr.WithMetadata(k, v)
			}
		}
		return nil, stdErr
	}

	answer, err := h.stages.Generator.Generate(ctx, req.Question, result)
	if err != nil {
		return nil, apperrors.NewAnswerGenerationFailedError(err).
			WithMetadata("queryType", string(intent.QueryType))
	}
	return answer, nil
}

func (h *Handler) converse(ctx context.Context, question string) (*models.Answer, error) {
	text, err := h.stages.Generator.GenerateGeneralMessage(ctx, question)
	if err != nil {
		return nil, apperrors.NewAnswerGenerationFailedError(err).
			WithMetadata("queryType", string(models.QueryTypeGeneralMessage))
	}
	return &models.Answer{
		Text:      text,
		Source:    models.AnswerSourceModel,
		QueryType: models.QueryTypeGeneralMessage,
	}, nil
}

// Handle serves the crm-answer-question job type.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer func() {
		metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	req, err := ParseJobVariables(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	answer, err := h.Execute(ctx, *req)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, newOutput(answer))
}

// ParseJobVariables checks job variables against the input schema and decodes them.
func ParseJobVariables(variables string) (*Request, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, apperrors.NewMalformedRequestError(fmt.Sprintf("parse variables: %v", err))
	}

	res, err := validation.ValidateInput(raw, jobInputSchema)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !res.Valid {
		return nil, apperrors.NewMalformedRequestError(res.Summary())
	}

	var req Request
	if err := json.Unmarshal([]byte(variables), &req); err != nil {
		return nil, apperrors.NewMalformedRequestError(fmt.Sprintf("decode variables: %v", err))
	}
	return &req, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
