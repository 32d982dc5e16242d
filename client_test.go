package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ClientTestSuite struct {
	suite.Suite
	server *httptest.Server
	api    *exportServer
	client *Client
}

func (c *ClientTestSuite) SetupTest() {
	c.api = &exportServer{
		t:      c.T(),
		fields: testFields(),
		rows:   testRows(4),
	}
	c.server = httptest.NewServer(c.api)

	cl, err := New(testConfig(c.server.URL))
	c.Require().NoError(err)
	c.client = cl
}

func (c *ClientTestSuite) TearDownTest() {
	c.client.Close()
	c.server.Close()
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (c *ClientTestSuite) TestNewSessionSharesClientState() {
	session, err := c.client.NewSession(SessionOptions{Query: testQuery(), BlockSize: 2})
	c.Require().NoError(err)

	c.Same(c.client.httpClient.metrics, session.opts.Metrics)
	c.Same(c.client.config.Logger, session.opts.Logger)
	c.Equal(1234567, session.workspaceID)
	c.Equal(StateUninitialized, session.State())
}

func (c *ClientTestSuite) TestNewSessionValidatesOptions() {
	_, err := c.client.NewSession(SessionOptions{Query: testQuery()})

	var valErr *ValidationError
	c.Require().ErrorAs(err, &valErr)
	c.Equal("BlockSize", valErr.Field)
}

func (c *ClientTestSuite) TestSessionsAreSingleUse() {
	session, err := c.client.NewSession(SessionOptions{Query: testQuery(), BlockSize: 3})
	c.Require().NoError(err)

	_, err = session.Run(context.Background(), &recordingEmitter{})
	c.Require().NoError(err)
	c.Equal(StateDone, session.State())

	_, err = session.Run(context.Background(), &recordingEmitter{})
	var stateErr *StateError
	c.Require().ErrorAs(err, &stateErr)
	c.Len(c.api.initRequests, 1)

	second, err := c.client.NewSession(SessionOptions{Query: testQuery(), BlockSize: 3})
	c.Require().NoError(err)
	emitter := &recordingEmitter{}
	_, err = second.Run(context.Background(), emitter)
	c.Require().NoError(err)
	c.Len(c.api.initRequests, 2)
}

func (c *ClientTestSuite) TestMetricsDisabled() {
	config := testConfig(c.server.URL)
	config.EnableMetrics = false

	cl, err := New(config)
	c.Require().NoError(err)
	defer cl.Close()

	c.Nil(cl.GetMetrics())
	c.Nil(cl.MetricsRegistry())
}
