package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"shared-transactions/internal/config"
	"shared-transactions/internal/server"
	"shared-transactions/pkg/logging"
)

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *tcpostgres.PostgresContainer
	serverInstance    *server.Server
	baseURL           string
	client            *http.Client

	carol, alice, bob, dave member
	transactionID           string
}

type member struct {
	ID    string
	Token string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shared_transactions"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	cfg := config.Default()
	cfg.DBHost = host
	cfg.DBPort = port.Port()
	cfg.ServerPort = "0" // Let OS choose a free port
	cfg.JWTSecret = "integration-test-secret"

	serverInstance, serverPort, err := server.StartServer(ctx, cfg, logging.Discard())
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatalf("Server not ready: %s", err)
	}
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.postgresContainer != nil {
		testcontainers.TerminateContainer(suite.postgresContainer)
	}
}

// call sends body as JSON and returns the status and the decoded envelope.
func (suite *IntegrationTestSuite) call(method, path, token string, body interface{}) (int, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, suite.baseURL+path, &buf)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := suite.client.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var envelope map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			suite.T().Logf("Failed to parse response: %s", raw)
		}
	}
	return resp.StatusCode, envelope
}

func (suite *IntegrationTestSuite) register(username string) member {
	status, envelope := suite.call(http.MethodPost, "/users", "", map[string]string{"username": username})
	suite.Require().Equal(http.StatusCreated, status, "%v", envelope)
	data := envelope["data"].(map[string]interface{})
	return member{ID: data["user_id"].(string), Token: data["token"].(string)}
}

func shares(envelope map[string]interface{}) []map[string]interface{} {
	data := envelope["data"].(map[string]interface{})
	var out []map[string]interface{}
	for _, s := range data["shares"].([]interface{}) {
		out = append(out, s.(map[string]interface{}))
	}
	return out
}

// Helper to compare decimal values properly
func (suite *IntegrationTestSuite) assertDecimalEqual(expected string, actual interface{}, msgAndArgs ...interface{}) {
	expectedDec := decimal.RequireFromString(expected)
	actualDec, err := decimal.NewFromString(fmt.Sprint(actual))
	if err != nil {
		suite.T().Fatalf("Invalid actual decimal: %v", actual)
	}
	assert.True(suite.T(), expectedDec.Equal(actualDec),
		"Decimal values not equal: expected %s, got %v %v", expected, actual, msgAndArgs)
}

func (suite *IntegrationTestSuite) stepHealthCheck() {
	status, envelope := suite.call(http.MethodGet, "/health", "", nil)
	suite.Equal(http.StatusOK, status)
	suite.Equal("healthy", envelope["status"])
}

func (suite *IntegrationTestSuite) stepRegisterUsers() {
	suite.carol = suite.register("carol")
	suite.alice = suite.register("alice")
	suite.bob = suite.register("bob")
	suite.dave = suite.register("dave")

	status, envelope := suite.call(http.MethodPost, "/users", "", map[string]string{"username": "alice"})
	suite.Equal(http.StatusBadRequest, status)
	suite.Equal("invalid_input", envelope["error"].(map[string]interface{})["code"])
}

func (suite *IntegrationTestSuite) stepCreateShared() {
	status, envelope := suite.call(http.MethodPost, "/transactions", suite.carol.Token, map[string]interface{}{
		"amount":      "100.00",
		"kind":        "EXPENSE",
		"description": "dinner",
		"is_shared":   true,
		"participants": []map[string]interface{}{
			{"username": "alice", "amount": "20"},
			{"username": "bob", "amount": "20"},
			{"user_id": suite.dave.ID, "amount": "20"},
			{"name": "Erin", "amount": "10"},
		},
	})
	suite.Require().Equal(http.StatusCreated, status, "%v", envelope)

	suite.transactionID = envelope["data"].(map[string]interface{})["transaction_id"].(string)
	rows := shares(envelope)
	suite.Require().Len(rows, 5)
	suite.assertDecimalEqual("30", rows[0]["base_amount"])
	suite.assertDecimalEqual("50", rows[0]["amount"], "creator and Erin are accepted")
	suite.assertDecimalEqual("50", rows[4]["amount"])
	suite.Equal("PENDING", rows[1]["status"])
}

func (suite *IntegrationTestSuite) stepConcurrentAccepts() {
	_, envelope := suite.call(http.MethodGet, "/transactions/"+suite.transactionID, suite.carol.Token, nil)
	rows := shares(envelope)

	var wg sync.WaitGroup
	for i, m := range []member{suite.alice, suite.bob, suite.dave} {
		path := fmt.Sprintf("/transactions/%s/participants/%s/response", suite.transactionID, rows[i+1]["participant_id"])
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for attempt := 0; attempt < 5; attempt++ {
				status, _ := suite.call(http.MethodPost, path, token, map[string]string{"status": "ACCEPTED"})
				if status != http.StatusConflict {
					assert.Equal(suite.T(), http.StatusOK, status)
					return
				}
			}
			suite.T().Errorf("response kept conflicting")
		}(m.Token)
	}
	wg.Wait()

	status, envelope := suite.call(http.MethodGet, "/transactions/"+suite.transactionID, suite.alice.Token, nil)
	suite.Require().Equal(http.StatusOK, status)
	rows = shares(envelope)

	total := decimal.Zero
	for _, row := range rows {
		suite.Equal("ACCEPTED", row["status"])
		suite.assertDecimalEqual("20", row["amount"])
		total = total.Add(decimal.RequireFromString(row["amount"].(string)))
	}
	suite.True(decimal.NewFromInt(100).Equal(total))
	suite.Equal("You", rows[1]["label"])
	suite.Equal("Creator", rows[0]["label"])
}

func (suite *IntegrationTestSuite) stepEditInvalidatesIDs() {
	_, before := suite.call(http.MethodGet, "/transactions/"+suite.transactionID, suite.carol.Token, nil)
	oldRow := shares(before)[1]["participant_id"]

	status, envelope := suite.call(http.MethodPut, "/transactions/"+suite.transactionID+"/participants", suite.carol.Token, map[string]interface{}{
		"amount":       "99.99",
		"participants": []map[string]interface{}{{"username": "alice", "amount": "33.33"}},
	})
	suite.Require().Equal(http.StatusOK, status, "%v", envelope)
	rows := shares(envelope)
	suite.Require().Len(rows, 2)
	suite.assertDecimalEqual("66.66", rows[0]["base_amount"])
	suite.assertDecimalEqual("99.99", rows[0]["amount"])

	path := fmt.Sprintf("/transactions/%s/participants/%s/response", suite.transactionID, oldRow)
	status, _ = suite.call(http.MethodPost, path, suite.alice.Token, map[string]string{"status": "ACCEPTED"})
	suite.Equal(http.StatusNotFound, status)
}

func (suite *IntegrationTestSuite) stepForeignParticipant() {
	status, envelope := suite.call(http.MethodPost, "/transactions", suite.bob.Token, map[string]interface{}{
		"amount":       "10",
		"is_shared":    true,
		"participants": []map[string]interface{}{{"username": "alice", "amount": "5"}},
	})
	suite.Require().Equal(http.StatusCreated, status)
	foreign := shares(envelope)[1]["participant_id"]

	path := fmt.Sprintf("/transactions/%s/participants/%s/response", suite.transactionID, foreign)
	status, _ = suite.call(http.MethodPost, path, suite.alice.Token, map[string]string{"status": "ACCEPTED"})
	suite.Equal(http.StatusNotFound, status)
}

func (suite *IntegrationTestSuite) stepDelete() {
	status, _ := suite.call(http.MethodDelete, "/transactions/"+suite.transactionID, suite.alice.Token, nil)
	suite.Equal(http.StatusForbidden, status)

	status, _ = suite.call(http.MethodDelete, "/transactions/"+suite.transactionID, suite.carol.Token, nil)
	suite.Equal(http.StatusNoContent, status)

	status, _ = suite.call(http.MethodGet, "/transactions/"+suite.transactionID, suite.carol.Token, nil)
	suite.Equal(http.StatusNotFound, status)
}

func (suite *IntegrationTestSuite) TestFlow() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	suite.stepHealthCheck()
	suite.stepRegisterUsers()
	suite.stepCreateShared()
	suite.stepConcurrentAccepts()
	suite.stepEditInvalidatesIDs()
	suite.stepForeignParticipant()
	suite.stepDelete()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
