package newsletter_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/interactive-solutions/go-newsletter"
	"github.com/interactive-solutions/go-newsletter/storage/memory"
)

func TestSelector(t *testing.T) {
	suite.Run(t, new(selectorTestSuite))
}

type selectorTestSuite struct {
	suite.Suite

	deps newsletter.Dependencies
}

func (suite *selectorTestSuite) SetupTest() {
	suite.deps = newsletter.Dependencies{
		Stores:    memory.NewStores(),
		Renderer:  newRenderer(suite.T()),
		Transport: &fakeTransport{},
	}
}

func (suite *selectorTestSuite) TestResolvesSimpleBackend() {
	backend, err := newsletter.NewSelector().Resolve("Simple", suite.deps)
	require.NoError(suite.T(), err)

	assert.IsType(suite.T(), &newsletter.SimpleBackend{}, backend)
}

func (suite *selectorTestSuite) TestUnknownBackend() {
	_, err := newsletter.NewSelector().Resolve("sendgrid", suite.deps)

	assert.True(suite.T(), errors.Is(err, newsletter.UnknownBackendErr))
}

func (suite *selectorTestSuite) TestFactoryErrorsAreReturned() {
	suite.deps.Transport = nil

	_, err := newsletter.NewSelector().Resolve(newsletter.BackendSimple, suite.deps)

	assert.True(suite.T(), errors.Is(err, newsletter.ImproperlyConfiguredErr))
}

func (suite *selectorTestSuite) TestRegisteredBackend() {
	selector := newsletter.NewSelector()
	adapter := newFakeAdapter(nil)

	selector.Register(newsletter.BackendMailjet, func(deps newsletter.Dependencies) (newsletter.Backend, error) {
		return newsletter.NewCampaignBackend(adapter, deps.Stores, deps.Renderer, deps.Options...)
	})

	backend, err := selector.Resolve(newsletter.BackendMailjet, suite.deps)
	require.NoError(suite.T(), err)

	assert.IsType(suite.T(), &newsletter.CampaignBackend{}, backend)
	assert.Equal(suite.T(), []newsletter.BackendKind{newsletter.BackendMailjet, newsletter.BackendSimple}, selector.Kinds())
}
