package answerquestion

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "crm-assistant/internal/common/errors"
	"crm-assistant/internal/common/llm"
	"crm-assistant/internal/common/llm/llmtest"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/models"
	llmsynthesis "crm-assistant/internal/workers/ai-conversation/llm-synthesis"
	parseuserintent "crm-assistant/internal/workers/ai-conversation/parse-user-intent"
	validateintent "crm-assistant/internal/workers/ai-conversation/validate-intent"
	querypostgresql "crm-assistant/internal/workers/data-access/query-postgresql"
)

// ==========================
// Test Helper Functions
// ==========================

const testRequestID = "req-0001"

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

var testCaller = models.CallerContext{ID: "u1", Role: "sales", OwnerID: "u1"}

type testPipeline struct {
	handler *Handler
	client  *llmtest.MockChatClient
	sql     sqlmock.Sqlmock
	db      *sql.DB
}

func setupPipeline(t *testing.T) *testPipeline {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := new(llmtest.MockChatClient)
	obs := observability.NewNoop()
	log := logger.NewTestLogger(t)

	stages := Stages{
		Extractor: parseuserintent.NewHandler(&parseuserintent.Config{Temperature: 0, MaxTokens: 256}, client, obs, log),
		Validator: validateintent.NewHandler(log),
		Executor: querypostgresql.NewHandler(&querypostgresql.Config{Timeout: 5 * time.Second, ListLimit: querypostgresql.DefaultListLimit}, db, obs, log).
			WithClock(func() time.Time { return testNow }),
		Generator: llmsynthesis.NewHandler(&llmsynthesis.Config{
			AggregateTemperature: 0,
			RecordTemperature:    0.2,
			GeneralTemperature:   0.7,
			MaxTokens:            256,
		}, client, obs, log),
	}

	h := NewHandler(&Config{Timeout: 10 * time.Second}, stages, obs, log)
	h.newID = func() string { return testRequestID }

	return &testPipeline{handler: h, client: client, sql: sqlMock, db: db}
}

// extraction matches the intent extraction call.
var extraction = mock.MatchedBy(func(msgs []llm.Message) bool {
	return len(msgs) == 2 && msgs[0].Content == parseuserintent.SystemPrompt()
})

// generation matches every answer generation call.
var generation = mock.MatchedBy(func(msgs []llm.Message) bool {
	return len(msgs) == 2 && msgs[0].Content != parseuserintent.SystemPrompt()
})

func (p *testPipeline) expectExtraction(reply string) {
	p.client.On("Chat", mock.Anything, extraction, mock.Anything).Return(reply, nil).Once()
}

func requireStandardError(t *testing.T, err error, code apperrors.ErrorCode) *apperrors.StandardError {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %T: %v", err, err)
	assert.Equal(t, code, stdErr.Code)
	assert.Equal(t, testRequestID, stdErr.Metadata["requestId"])
	return stdErr
}

// ==========================
// Scenario Tests
// ==========================

func TestHandler_Execute_WonLeadsCount(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"aggregate","table":"leads","metric":"lead_count","filters":{"status":"Won"},"scope":"global"}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "leads" WHERE "status" = $1`)).
		WithArgs("Won").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	p.client.On("Chat", mock.Anything, generation, llmtest.Temperature(0)).Return("You have 12 won leads.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "How many won leads?", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "You have 12 won leads.", answer.Text)
	assert.Contains(t, answer.Text, "12")
	assert.Equal(t, models.QueryTypeAggregate, answer.QueryType)
	assert.Equal(t, models.AnswerSourceModel, answer.Source)
	assert.Equal(t, testRequestID, answer.RequestID)
	assert.NoError(t, p.sql.ExpectationsWereMet())
	p.client.AssertExpectations(t)
}

func TestHandler_Execute_WonLeadsTodayInjectsTimeRange(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"aggregate","table":"leads","metric":"won_lead_count","filters":{},"scope":"global"}`)

	start := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	p.sql.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "leads" WHERE "status" = $1 AND "created_at" >= $2 AND "created_at" <= $3`)).
		WithArgs("Won", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	p.client.On("Chat", mock.Anything, generation, mock.Anything).Return("You won 2 leads today.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "How many won leads today?", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "You won 2 leads today.", answer.Text)
	assert.NoError(t, p.sql.ExpectationsWereMet())
}

func TestHandler_Execute_PendingTasksList(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"list","table":"tasks","filters":{"status":"Pending"},"scope":"global"}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`FROM "tasks" WHERE "status" = $1 ORDER BY "created_at" DESC LIMIT 100`)).
		WithArgs("Pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).
			AddRow(int64(1), "Call Acme", "Pending").
			AddRow(int64(2), "Send proposal", "Pending"))

	answer, err := p.handler.Execute(context.Background(), Request{Question: "Show all pending tasks", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "- Call Acme\n- Send proposal", answer.Text)
	assert.Equal(t, models.AnswerSourceData, answer.Source)
	p.client.AssertNumberOfCalls(t, "Chat", 1)
}

func TestHandler_Execute_PendingTasksEmpty(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"list","table":"tasks","filters":{"status":"Pending"}}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`FROM "tasks"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	answer, err := p.handler.Execute(context.Background(), Request{Question: "Show all pending tasks", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, llmsynthesis.NoRecordsAnswer, answer.Text)
}

func TestHandler_Execute_LeadNameByCode(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"field_lookup","table":"leads","field":"lead_name","filters":{"lead_id":"LD-101"}}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`SELECT "lead_name" FROM "leads" WHERE "lead_code" = $1 ORDER BY "created_at" DESC LIMIT 1`)).
		WithArgs("LD-101").
		WillReturnRows(sqlmock.NewRows([]string{"lead_name"}).AddRow("Acme Renewal"))

	answer, err := p.handler.Execute(context.Background(), Request{Question: "What is the lead name of LD-101?", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "Acme Renewal", answer.Text)
	assert.Equal(t, models.QueryTypeFieldLookup, answer.QueryType)
	assert.Equal(t, models.AnswerSourceData, answer.Source)
	assert.NoError(t, p.sql.ExpectationsWereMet())
}

func TestHandler_Execute_UserScopedRecordLookup(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"record_lookup","table":"leads","filters":{},"scope":"user"}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`FROM "leads" WHERE "owner_id" = $1 ORDER BY "created_at" DESC LIMIT 1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lead_name"}).AddRow(int64(5), "Globex Expansion"))
	p.client.On("Chat", mock.Anything, generation, llmtest.Temperature(0.2)).
		Return("Your latest lead is Globex Expansion.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "What is my latest lead?", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "Your latest lead is Globex Expansion.", answer.Text)
	assert.Equal(t, models.AnswerSourceModel, answer.Source)
}

// ==========================
// Policy Tests
// ==========================

func TestHandler_Execute_RevenueMetricForbiddenBeforeQuery(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"aggregate","table":"leads","metric":"total_revenue","filters":{}}`)

	_, err := p.handler.Execute(context.Background(), Request{Question: "What is our total revenue?", Caller: testCaller})

	stdErr := requireStandardError(t, err, apperrors.ErrCodeForbiddenMetric)
	assert.Equal(t, "total_revenue", stdErr.Metadata["metric"])
	assert.NoError(t, p.sql.ExpectationsWereMet())
	p.client.AssertNumberOfCalls(t, "Chat", 1)
}

func TestHandler_Execute_InvalidIntent(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"list","table":"invoices","filters":{}}`)

	_, err := p.handler.Execute(context.Background(), Request{Question: "List invoices", Caller: testCaller})

	requireStandardError(t, err, apperrors.ErrCodeInvalidIntent)
	assert.NoError(t, p.sql.ExpectationsWereMet())
}

// ==========================
// Request Validation Tests
// ==========================

func TestHandler_Execute_MalformedRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty question", Request{Question: "", Caller: testCaller}},
		{"blank question", Request{Question: "   \n", Caller: testCaller}},
		{"missing caller", Request{Question: "How many leads?"}},
		{"too long", Request{Question: strings.Repeat("a", MaxQuestionLength+1), Caller: testCaller}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setupPipeline(t)

			_, err := p.handler.Execute(context.Background(), tt.req)

			requireStandardError(t, err, apperrors.ErrCodeMalformedRequest)
			p.client.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, Request{Question: "How many leads?", Caller: models.CallerContext{ID: "u1"}}.Validate())

	err := Request{Question: "How many leads?", Caller: models.CallerContext{ID: " "}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller.id")
}

// ==========================
// Conversation Tests
// ==========================

func TestHandler_Execute_GeneralMessage(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"type":"conversation"}`)
	p.client.On("Chat", mock.Anything, generation, llmtest.Temperature(0.7)).Return("Hi! How can I help?", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "Hi there", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", answer.Text)
	assert.Equal(t, models.QueryTypeGeneralMessage, answer.QueryType)
}

func TestHandler_Execute_UnsupportedFallsBackToConversation(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"unsupported"}`)
	p.client.On("Chat", mock.Anything, generation, llmtest.Temperature(0.7)).
		Return("I can only answer questions about your CRM data.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "What's the weather?", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, models.QueryTypeGeneralMessage, answer.QueryType)
	assert.NoError(t, p.sql.ExpectationsWereMet())
}

func TestHandler_Execute_SmalltalkRecoversFromBadExtraction(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction("Sure! Hello to you too.")
	p.client.On("Chat", mock.Anything, generation, llmtest.Temperature(0.7)).Return("Hello! Ask me about your leads.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "hello", Caller: testCaller})

	require.NoError(t, err)
	assert.Equal(t, "Hello! Ask me about your leads.", answer.Text)
}

// ==========================
// Failure Tests
// ==========================

func TestHandler_Execute_ExtractionFailed(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction("I think you want the number of leads.")

	_, err := p.handler.Execute(context.Background(), Request{Question: "How many leads do we have?", Caller: testCaller})

	stdErr := requireStandardError(t, err, apperrors.ErrCodeExtractionFailed)
	assert.True(t, errors.Is(stdErr, parseuserintent.ErrMalformedOutput))
}

func TestHandler_Execute_ExtractionBackendDown(t *testing.T) {
	p := setupPipeline(t)
	p.client.On("Chat", mock.Anything, extraction, mock.Anything).Return("", llm.ErrTimeout).Once()

	_, err := p.handler.Execute(context.Background(), Request{Question: "How many leads do we have?", Caller: testCaller})

	stdErr := requireStandardError(t, err, apperrors.ErrCodeExtractionFailed)
	assert.True(t, errors.Is(stdErr, parseuserintent.ErrModelUnavailable))
}

func TestHandler_Execute_QueryFailed(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"aggregate","table":"tasks","metric":"task_count","filters":{}}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "tasks"`)).
		WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := p.handler.Execute(context.Background(), Request{Question: "How many tasks?", Caller: testCaller})

	stdErr := requireStandardError(t, err, apperrors.ErrCodeQueryExecutionFailed)
	assert.Equal(t, apperrors.CategoryDatabaseUnavailable, stdErr.Metadata["category"])
	assert.Equal(t, "tasks", stdErr.Metadata["table"])
	assert.Equal(t, "task_count", stdErr.Metadata["metric"])
	assert.Equal(t, 503, apperrors.HTTPStatus(stdErr))
	p.client.AssertNumberOfCalls(t, "Chat", 1)
}

func TestHandler_Execute_AnswerGenerationNeverSubstitutesValue(t *testing.T) {
	p := setupPipeline(t)
	p.expectExtraction(`{"query_type":"aggregate","table":"leads","metric":"lead_count","filters":{}}`)
	p.sql.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "leads"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(40)))
	p.client.On("Chat", mock.Anything, generation, mock.Anything).Return("You have about forty leads.", nil).Once()

	answer, err := p.handler.Execute(context.Background(), Request{Question: "How many leads?", Caller: testCaller})

	assert.Nil(t, answer)
	requireStandardError(t, err, apperrors.ErrCodeAnswerGenerationFailed)
}

// ==========================
// Job Variable Tests
// ==========================

func TestParseJobVariables(t *testing.T) {
	req, err := ParseJobVariables(`{"question":"How many won leads?","caller":{"id":"u1","role":"sales","ownerId":"o1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "How many won leads?", req.Question)
	assert.Equal(t, "o1", req.Caller.OwnerID)
}

func TestParseJobVariables_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		variables string
	}{
		{"not json", `{question`},
		{"missing question", `{"caller":{"id":"u1"}}`},
		{"missing caller id", `{"question":"hi","caller":{}}`},
		{"wrong type", `{"question":42,"caller":{"id":"u1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobVariables(tt.variables)
			stdErr, ok := apperrors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeMalformedRequest, stdErr.Code)
		})
	}
}

func TestNewOutput(t *testing.T) {
	out := newOutput(&models.Answer{Text: "12", Source: models.AnswerSourceData, QueryType: models.QueryTypeFieldLookup, RequestID: "r1"})
	assert.Equal(t, &Output{Answer: "12", AnswerSource: models.AnswerSourceData, QueryType: models.QueryTypeFieldLookup, RequestID: "r1"}, out)
}
